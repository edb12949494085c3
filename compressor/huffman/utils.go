package huffman

import (
	"container/heap"
	"slices"
)

type huffmanTree interface {
	getFrequency() int
	getId() int
}
type huffmanLeaf struct {
	freq, id int
	symbol   int
}
type huffmanNode struct {
	freq, id    int
	left, right huffmanTree
}

type huffmanHeap []huffmanTree

func (hub *huffmanHeap) Push(item any) {
	*hub = append(*hub, item.(huffmanTree))
}

func (hub *huffmanHeap) Pop() any {
	popped := (*hub)[len(*hub)-1]
	(*hub) = (*hub)[:len(*hub)-1]
	return popped
}

func (hub huffmanHeap) Len() int {
	return len(hub)
}

func (hub huffmanHeap) Less(i, j int) bool {
	if hub[i].getFrequency() != hub[j].getFrequency() {
		return hub[i].getFrequency() < hub[j].getFrequency()
	}
	return hub[i].getId() < hub[j].getId()
}

func (hub huffmanHeap) Swap(i, j int) {
	hub[i], hub[j] = hub[j], hub[i]
}

func (leaf huffmanLeaf) getId() int {
	return leaf.id
}

func (leaf huffmanLeaf) getFrequency() int {
	return leaf.freq
}

func (node huffmanNode) getFrequency() int {
	return node.freq
}

func (node huffmanNode) getId() int {
	return node.id
}

// Lengths computes Huffman code lengths for symbolFreq, none longer than
// maxLength. The result always describes a complete code: when fewer than
// two symbols occur, a second symbol is given a one-bit code as well.
func Lengths(symbolFreq []int, maxLength int) ([]uint8, error) {
	if maxLength < 1 || maxLength > MaxCodeLength {
		return nil, ErrInvalidLength
	}
	lengths := make([]uint8, len(symbolFreq))
	var present []int
	for sym, f := range symbolFreq {
		if f > 0 {
			present = append(present, sym)
		}
	}
	if len(symbolFreq) < 2 {
		return nil, ErrTooFewSymbols
	}
	switch len(present) {
	case 0:
		lengths[0], lengths[1] = 1, 1
		return lengths, nil
	case 1:
		partner := 0
		if present[0] == 0 {
			partner = 1
		}
		lengths[present[0]], lengths[partner] = 1, 1
		return lengths, nil
	}
	if len(present) > 1<<maxLength {
		return nil, ErrTooManySymbols
	}

	tree := buildTree(symbolFreq, present)
	var blCount [MaxCodeLength + 2]int
	overflow := false
	walkDepths(tree, 0, func(depth int) {
		if depth > maxLength {
			depth = maxLength
			overflow = true
		}
		blCount[depth]++
	})
	if overflow {
		if err := limitCounts(blCount[:maxLength+1], maxLength); err != nil {
			return nil, err
		}
	}

	// Most frequent symbols take the shortest codes.
	slices.SortStableFunc(present, func(a, b int) int {
		return symbolFreq[b] - symbolFreq[a]
	})
	i := 0
	for l := 1; l <= maxLength; l++ {
		for n := blCount[l]; n > 0; n-- {
			lengths[present[i]] = uint8(l)
			i++
		}
	}
	return lengths, nil
}

func buildTree(symbolFreq []int, present []int) huffmanTree {
	var treehub huffmanHeap
	monoId := 0
	for _, sym := range present {
		treehub = append(treehub, huffmanLeaf{
			freq:   symbolFreq[sym],
			symbol: sym,
			id:     monoId,
		})
		monoId++
	}
	heap.Init(&treehub)
	for treehub.Len() > 1 {
		x := heap.Pop(&treehub).(huffmanTree)
		y := heap.Pop(&treehub).(huffmanTree)
		heap.Push(&treehub, huffmanNode{
			freq:  x.getFrequency() + y.getFrequency(),
			left:  x,
			right: y,
			id:    monoId,
		})
		monoId++
	}
	return heap.Pop(&treehub).(huffmanTree)
}

func walkDepths(tree huffmanTree, depth int, visit func(depth int)) {
	switch t := tree.(type) {
	case huffmanLeaf:
		visit(depth)
	case huffmanNode:
		walkDepths(t.left, depth+1, visit)
		walkDepths(t.right, depth+1, visit)
	}
}

// limitCounts repairs a per-length histogram whose deepest leaves were
// clipped to maxLength. Each step moves a leaf one level down and pairs it
// with a leaf taken from maxLength, shrinking the Kraft sum by exactly one
// unit of 2^-maxLength until the code is complete again.
func limitCounts(blCount []int, maxLength int) error {
	kraft := 0
	for l := 1; l <= maxLength; l++ {
		kraft += blCount[l] << (maxLength - l)
	}
	for kraft > 1<<maxLength {
		bits := maxLength - 1
		for bits > 0 && blCount[bits] == 0 {
			bits--
		}
		if bits == 0 || (blCount[maxLength] == 0 && bits+1 != maxLength) {
			return ErrTooManySymbols
		}
		blCount[bits]--
		blCount[bits+1] += 2
		blCount[maxLength]--
		kraft--
	}
	return nil
}
