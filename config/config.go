package config

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/FitrahHaque/flate-engine/compressor/lz"
	"github.com/FitrahHaque/flate-engine/engine"
)

const (
	EnvVarPrefix = "FLATE"

	DefaultConfigFile = "flate.toml"
	DefaultOutFileExt = ".rsn"
	DefaultLogLevel   = "info"

	MinBlockSize  = 1024
	MaxBlockSize  = 8 * 1024 * 1024
	MinNumWorkers = 1
	MaxNumWorkers = 128
	MinWindowSize = 256
	MaxWindowSize = lz.MaxWindowSize
	MinMaxChain   = 1
	MaxMaxChain   = 4096
)

var (
	// VERSION gets set during build
	VERSION = "0.0.0"

	validStrategies = map[string]struct{}{
		"dynamic": {},
		"stored":  {},
	}
)

type Config struct {
	CLI  *CLI
	TOML *TOML
}

type TOML struct {
	Engine *TOMLEngine `toml:"engine"`
	Log    *TOMLLog    `toml:"log"`
}

type TOMLEngine struct {
	BlockSize    int    `toml:"block_size"`
	Workers      int    `toml:"workers"`
	MinBlockSize int    `toml:"min_block_size"`
	MaxChain     int    `toml:"max_chain"`
	WindowSize   int    `toml:"window_size"`
	Strategy     string `toml:"strategy"`
}

type TOMLLog struct {
	Level string `toml:"level"`
}

type CompressCmd struct {
	Files      []string `kong:"arg,type='path',help='Files to compress'"`
	OutFileExt string   `kong:"help='File extension used for the result',default='.rsn',name='outfileext'"`
	Delete     bool     `kong:"help='Delete input files after compression'"`
	Index      bool     `kong:"help='Write a block index next to each output',short='i'"`
}

type DecompressCmd struct {
	Files  []string `kong:"arg,type='path',help='Files to decompress'"`
	Delete bool     `kong:"help='Delete input files after decompression'"`
	Index  bool     `kong:"help='Use the block index next to each input for parallel decoding',short='i'"`
}

type BenchmarkCmd struct {
	Files []string `kong:"arg,type='path',help='Files to benchmark'"`
}

type CLI struct {
	ConfigFile   string `kong:"help='Path to the TOML config file',type='path',default='flate.toml',short='c'"`
	Workers      int    `kong:"help='Number of parallel block workers (overrides config)',short='w'"`
	BlockSize    int    `kong:"help='Block size in bytes (overrides config)',short='b'"`
	Strategy     string `kong:"help='Block strategy: dynamic or stored (overrides config)',short='s'"`
	DisableColor bool   `kong:"help='Disable color output',short='C'"`

	Debug   bool             `kong:"help='Enable debug output',short='d'"`
	Quiet   bool             `kong:"help='Disable progress and summary output',short='q'"`
	Version kong.VersionFlag `help:"Show version and exit" short:"v" env:"-"`

	Compress   CompressCmd   `kong:"cmd,help='Compress files'"`
	Decompress DecompressCmd `kong:"cmd,help='Decompress files'"`
	Benchmark  BenchmarkCmd  `kong:"cmd,help='Compress, decompress and verify files'"`

	// Internal bits
	Ctx *kong.Context `kong:"-"`
}

func NewConfig() (*Config, error) {
	// Attempt to load .env
	_ = godotenv.Load(".env")

	return newConfig(os.Args[1:], kong.UsageOnError())
}

func newConfig(args []string, options ...kong.Option) (*Config, error) {
	cli, err := readCLIArgs(args, options...)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing CLI args")
	}

	tomlConfig, err := readTOML(cli.ConfigFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	cfg := &Config{
		CLI:  cli,
		TOML: tomlConfig,
	}
	cfg.applyOverrides()

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Command returns the selected command, e.g. "compress".
func (c *Config) Command() string {
	if c.CLI == nil || c.CLI.Ctx == nil || c.CLI.Ctx.Selected() == nil {
		return ""
	}
	return c.CLI.Ctx.Selected().Name
}

// EngineOptions returns engine settings built from the merged config.
func (c *Config) EngineOptions() engine.Options {
	e := c.TOML.Engine
	return engine.Options{
		BlockSize:    e.BlockSize,
		Workers:      e.Workers,
		MinBlockSize: e.MinBlockSize,
		Strategy:     e.Strategy,
		LZ: lz.Options{
			WindowSize: e.WindowSize,
			MaxChain:   e.MaxChain,
		},
	}
}

// LogLevel returns the configured level; --debug wins over the config file.
func (c *Config) LogLevel() logrus.Level {
	if c.CLI != nil && c.CLI.Debug {
		return logrus.DebugLevel
	}
	level, err := logrus.ParseLevel(c.TOML.Log.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func (c *Config) applyOverrides() {
	if c.CLI == nil {
		return
	}
	if c.CLI.Workers != 0 {
		c.TOML.Engine.Workers = c.CLI.Workers
	}
	if c.CLI.BlockSize != 0 {
		c.TOML.Engine.BlockSize = c.CLI.BlockSize
	}
	if c.CLI.Strategy != "" {
		c.TOML.Engine.Strategy = c.CLI.Strategy
	}
}

func setTOMLDefaults(t *TOML) error {
	if t == nil {
		return errors.New("toml config cannot be nil")
	}

	if t.Engine == nil {
		t.Engine = &TOMLEngine{}
	}

	if t.Log == nil {
		t.Log = &TOMLLog{}
	}

	// Set defaults for [engine]
	if t.Engine.BlockSize == 0 {
		t.Engine.BlockSize = engine.DefaultBlockSize
	}

	if t.Engine.Workers == 0 {
		t.Engine.Workers = engine.DefaultWorkers
	}

	if t.Engine.MinBlockSize == 0 {
		t.Engine.MinBlockSize = engine.DefaultMinBlockSize
	}

	if t.Engine.MaxChain == 0 {
		t.Engine.MaxChain = lz.DefaultOptions().MaxChain
	}

	if t.Engine.WindowSize == 0 {
		t.Engine.WindowSize = lz.DefaultOptions().WindowSize
	}

	if t.Engine.Strategy == "" {
		t.Engine.Strategy = engine.DefaultStrategy
	}

	// Set defaults for [log]
	if t.Log.Level == "" {
		t.Log.Level = DefaultLogLevel
	}

	return nil
}

func Validate(c *Config) error {
	if c == nil {
		return errors.New("config cannot be nil")
	}

	if err := validateCLIArgs(c.CLI); err != nil {
		return errors.Wrap(err, "error validating CLI args")
	}

	if err := validateTOML(c.TOML); err != nil {
		return errors.Wrap(err, "error validating toml config")
	}

	return nil
}

func validateTOML(t *TOML) error {
	if t == nil {
		return errors.New("toml config cannot be nil")
	}

	// Validate [engine]
	if err := validateTOMLEngine(t.Engine); err != nil {
		return errors.Wrap(err, "engine error(s)")
	}

	// Validate [log]
	if err := validateTOMLLog(t.Log); err != nil {
		return errors.Wrap(err, "log error(s)")
	}

	return nil
}

func validateTOMLEngine(e *TOMLEngine) error {
	if e == nil {
		return errors.New("engine cannot be empty")
	}

	if e.BlockSize < MinBlockSize || e.BlockSize > MaxBlockSize {
		return errors.Errorf("engine.block_size must be between %d and %d", MinBlockSize, MaxBlockSize)
	}

	if e.Workers < MinNumWorkers || e.Workers > MaxNumWorkers {
		return errors.Errorf("engine.workers must be between %d and %d", MinNumWorkers, MaxNumWorkers)
	}

	if e.MinBlockSize < 0 || e.MinBlockSize > e.BlockSize {
		return errors.Errorf("engine.min_block_size must be between 0 and engine.block_size (%d)", e.BlockSize)
	}

	if e.WindowSize < MinWindowSize || e.WindowSize > MaxWindowSize {
		return errors.Errorf("engine.window_size must be between %d and %d", MinWindowSize, MaxWindowSize)
	}

	if e.MaxChain < MinMaxChain || e.MaxChain > MaxMaxChain {
		return errors.Errorf("engine.max_chain must be between %d and %d", MinMaxChain, MaxMaxChain)
	}

	if _, ok := validStrategies[e.Strategy]; !ok {
		return errors.Errorf("engine.strategy %s is invalid", e.Strategy)
	}

	return nil
}

func validateTOMLLog(l *TOMLLog) error {
	if l == nil {
		return errors.New("log cannot be empty")
	}

	if _, err := logrus.ParseLevel(l.Level); err != nil {
		return errors.Wrapf(err, "log.level %s is invalid", l.Level)
	}

	return nil
}

func readCLIArgs(args []string, options ...kong.Option) (*CLI, error) {
	cli := &CLI{}

	options = append([]kong.Option{
		kong.Name("flate"),
		kong.Description("Parallel DEFLATE compressor"),
		kong.DefaultEnvars(EnvVarPrefix),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		kong.Vars{
			"version": VERSION,
		},
	}, options...)

	parser, err := kong.New(cli, options...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to build CLI parser")
	}

	cli.Ctx, err = parser.Parse(args)
	if err != nil {
		return nil, err
	}

	if err := validateCLIArgs(cli); err != nil {
		return nil, errors.Wrap(err, "error validating args")
	}

	return cli, nil
}

// readTOML loads file if it exists. A missing file yields the defaults.
func readTOML(file string) (*TOML, error) {
	tomlConfig := &TOML{}

	// Attempt to load file
	data, err := os.ReadFile(file)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, errors.Wrap(err, "error reading file")
	default:
		if err := toml.Unmarshal(data, tomlConfig); err != nil {
			return nil, errors.Wrap(err, "error parsing TOML config")
		}
	}

	// Set defaults
	if err := setTOMLDefaults(tomlConfig); err != nil {
		return nil, errors.Wrap(err, "error setting TOML defaults")
	}

	return tomlConfig, nil
}

func validateCLIArgs(cli *CLI) error {
	if cli == nil {
		return errors.New("config cannot be nil")
	}

	if cli.Workers < 0 {
		return errors.New("--workers cannot be negative")
	}

	if cli.BlockSize < 0 {
		return errors.New("--block-size cannot be negative")
	}

	if cli.Quiet && cli.Debug {
		return errors.New("--quiet and --debug are mutually exclusive")
	}

	return nil
}
