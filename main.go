package main

import (
	"bytes"
	stdflate "compress/flate"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	pb "github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/FitrahHaque/flate-engine/config"
	"github.com/FitrahHaque/flate-engine/engine"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Println("ERROR: ", err)
		os.Exit(1)
	}

	logrus.SetLevel(cfg.LogLevel())
	if cfg.CLI.DisableColor {
		color.NoColor = true
	}

	displayConfig(cfg)

	if err := run(context.Background(), cfg); err != nil {
		logrus.Errorf("%s failed: %s", cfg.Command(), err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	switch cfg.Command() {
	case "compress":
		return compressFiles(ctx, cfg)
	case "decompress":
		return decompressFiles(ctx, cfg)
	case "benchmark":
		return benchmarkFiles(ctx, cfg)
	default:
		return errors.Errorf("unknown command %q", cfg.Command())
	}
}

// newEngine returns an engine whose progress drives a bar of total blocks.
func newEngine(cfg *config.Config, size int64) (*engine.Engine, *pb.ProgressBar, error) {
	opts := cfg.EngineOptions()
	var bar *pb.ProgressBar
	if !cfg.CLI.Quiet {
		blocks := (size + int64(opts.BlockSize) - 1) / int64(opts.BlockSize)
		bar = pb.New64(blocks)
		opts.Progress = func(int, int) {
			bar.Increment()
		}
	}
	e, err := engine.New(opts)
	return e, bar, err
}

func compressFiles(ctx context.Context, cfg *config.Config) error {
	cmd := cfg.CLI.Compress
	for _, file := range cmd.Files {
		info, err := os.Stat(file)
		if err != nil {
			return errors.Wrapf(err, "could not open the provided file %s", file)
		}
		e, bar, err := newEngine(cfg, info.Size())
		if err != nil {
			return err
		}
		startBar(bar)
		st, err := e.CompressFile(ctx, file, file+cmd.OutFileExt, cmd.Index)
		finishBar(bar)
		if err != nil {
			return err
		}
		printStats(cfg, "compressed", st)
	}
	if cmd.Delete {
		return deleteFiles(cmd.Files)
	}
	return nil
}

func decompressFiles(ctx context.Context, cfg *config.Config) error {
	cmd := cfg.CLI.Decompress
	e, err := engine.New(cfg.EngineOptions())
	if err != nil {
		return err
	}
	for _, file := range cmd.Files {
		out := outputName(file)
		st, err := e.DecompressFile(ctx, file, out, cmd.Index)
		if err != nil {
			return errors.Wrapf(err, "unable to decompress %s", file)
		}
		printStats(cfg, "decompressed", st)
	}
	if cmd.Delete {
		return deleteFiles(cmd.Files)
	}
	return nil
}

// benchmarkFiles compresses each file in memory and checks the result
// against our decoder, the indexed parallel decoder and compress/flate.
func benchmarkFiles(ctx context.Context, cfg *config.Config) error {
	for _, file := range cfg.CLI.Benchmark.Files {
		content, err := os.ReadFile(file)
		if err != nil {
			return errors.Wrapf(err, "could not open the provided file %s", file)
		}
		e, bar, err := newEngine(cfg, int64(len(content)))
		if err != nil {
			return err
		}

		startBar(bar)
		start := time.Now()
		res, err := e.Compress(ctx, content)
		compressTime := time.Since(start)
		finishBar(bar)
		if err != nil {
			return errors.Wrapf(err, "unable to compress %s", file)
		}

		// The progress bar only tracks compression.
		plain, err := engine.New(cfg.EngineOptions())
		if err != nil {
			return err
		}
		start = time.Now()
		decoded, err := plain.Decompress(ctx, res.Data)
		decompressTime := time.Since(start)
		if err != nil {
			return errors.Wrapf(err, "unable to decompress %s", file)
		}
		indexed, err := plain.DecompressIndexed(ctx, res.Data, res.Index)
		if err != nil {
			return errors.Wrapf(err, "unable to decompress %s by index", file)
		}
		reference, err := io.ReadAll(stdflate.NewReader(bytes.NewReader(res.Data)))
		if err != nil {
			return errors.Wrapf(err, "compress/flate rejected output for %s", file)
		}

		verified := bytes.Equal(decoded, content) && bytes.Equal(indexed, content) && bytes.Equal(reference, content)
		if cfg.CLI.Quiet {
			if !verified {
				return errors.Errorf("round trip mismatch for %s", file)
			}
			continue
		}

		st := &engine.Stats{
			Input:      file,
			RawSize:    int64(len(content)),
			Compressed: int64(len(res.Data)),
			Blocks:     len(res.Index.Blocks),
			Duration:   compressTime,
		}
		for _, b := range res.Index.Blocks {
			if b.Stored {
				st.Stored++
			}
		}
		printStats(cfg, "benchmarked", st)
		fmt.Printf("  decompress: %s (%s)\n", decompressTime, throughput(st.RawSize, decompressTime))
		if verified {
			color.Green("  verify: ok (engine, indexed, compress/flate)")
		} else {
			color.Red("  verify: MISMATCH")
			return errors.Errorf("round trip mismatch for %s", file)
		}
	}
	return nil
}

func printStats(cfg *config.Config, action string, st *engine.Stats) {
	if cfg.CLI.Quiet {
		return
	}
	color.Cyan("%s %s", action, st.Input)
	fmt.Printf("  original size (in bytes): %v\n", st.RawSize)
	fmt.Printf("  compressed size (in bytes): %v\n", st.Compressed)
	if st.Blocks > 0 {
		fmt.Printf("  blocks: %d (%d stored)\n", st.Blocks, st.Stored)
	}
	ratio := color.New(color.FgGreen)
	if st.Ratio() >= 100 {
		ratio = color.New(color.FgYellow)
	}
	ratio.Printf("  compression ratio: %.2f%%\n", st.Ratio())
	fmt.Printf("  time: %s (%s)\n", st.Duration, throughput(st.RawSize, st.Duration))
}

func throughput(n int64, d time.Duration) string {
	if d <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.2f MiB/s", float64(n)/d.Seconds()/(1<<20))
}

func startBar(bar *pb.ProgressBar) {
	if bar != nil {
		bar.Start()
	}
}

func finishBar(bar *pb.ProgressBar) {
	if bar != nil {
		bar.Finish()
	}
}

func outputName(file string) string {
	if ext := config.DefaultOutFileExt; strings.HasSuffix(file, ext) && len(file) > len(ext) {
		return strings.TrimSuffix(file, ext)
	}
	return file + ".out"
}

func deleteFiles(files []string) error {
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			return errors.Wrapf(err, "unable to delete %s", file)
		}
	}
	return nil
}

func displayConfig(cfg *config.Config) {
	if cfg == nil || !cfg.CLI.Debug {
		return
	}

	logrus.Debug("flate settings:")
	logrus.Debug("  [CLI]")
	logrus.Debugf("  version: %s", config.VERSION)
	logrus.Debugf("  command: %s", cfg.Command())
	logrus.Debugf("  config file: %s", cfg.CLI.ConfigFile)
	logrus.Debugf("  disable color: %v", cfg.CLI.DisableColor)
	logrus.Debug("  [ENGINE]")
	logrus.Debugf("  engine.block_size: %d", cfg.TOML.Engine.BlockSize)
	logrus.Debugf("  engine.workers: %d", cfg.TOML.Engine.Workers)
	logrus.Debugf("  engine.min_block_size: %d", cfg.TOML.Engine.MinBlockSize)
	logrus.Debugf("  engine.max_chain: %d", cfg.TOML.Engine.MaxChain)
	logrus.Debugf("  engine.window_size: %d", cfg.TOML.Engine.WindowSize)
	logrus.Debugf("  engine.strategy: %s", cfg.TOML.Engine.Strategy)
}
