package utils

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the sample's settings. Values come from DefaultConfig, then
// an optional YAML file named by -config, then the remaining flags.
type Config struct {
	Title  string `yaml:"title"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`

	VSync bool `yaml:"vsync"`
	// AllowTearing permits an immediate present mode while vsync is off.
	// It is read once at startup.
	AllowTearing bool `yaml:"allow_tearing"`

	FrameCount   int           `yaml:"frame_count"`
	FenceTimeout time.Duration `yaml:"fence_timeout"`

	Validation bool   `yaml:"validation"`
	LogLevel   string `yaml:"log_level"`

	Headless         bool          `yaml:"headless"`
	HeadlessFrames   int           `yaml:"headless_frames"`
	SimulatedLatency time.Duration `yaml:"simulated_latency"`
}

func DefaultConfig() Config {
	return Config{
		Title:            "Hello Triangle",
		Width:            600,
		Height:           600,
		VSync:            true,
		AllowTearing:     true,
		FrameCount:       FrameCount,
		FenceTimeout:     FenceTimeout,
		LogLevel:         "info",
		HeadlessFrames:   600,
		SimulatedLatency: 4 * time.Millisecond,
	}
}

// LoadConfig builds the configuration from command line arguments, without
// the program name.
func LoadConfig(args []string) (*Config, error) {
	cfg := DefaultConfig()
	flagged := DefaultConfig()

	fs := newFlagSet(&flagged)
	configPath := fs.String("config", "", "YAML configuration file")
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, errors.Errorf("unrecognized argument %q", fs.Arg(0))
	}

	if *configPath != "" {
		if err := cfg.loadFile(*configPath); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply(&cfg, &flagged)
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

// Usage writes the flag list.
func Usage(w io.Writer) {
	cfg := DefaultConfig()
	fs := newFlagSet(&cfg)
	fs.String("config", "", "YAML configuration file")
	fs.SetOutput(w)
	fmt.Fprintln(w, "Usage of hello_triangle:")
	fs.PrintDefaults()
}

func newFlagSet(cfg *Config) *flag.FlagSet {
	fs := flag.NewFlagSet("hello_triangle", flag.ContinueOnError)
	fs.StringVar(&cfg.Title, "title", cfg.Title, "window title")
	fs.IntVar(&cfg.Width, "width", cfg.Width, "window width")
	fs.IntVar(&cfg.Height, "height", cfg.Height, "window height")
	fs.BoolVar(&cfg.VSync, "vsync", cfg.VSync, "wait for vertical blank when presenting")
	fs.BoolVar(&cfg.AllowTearing, "allow-tearing", cfg.AllowTearing, "use an immediate present mode when vsync is off")
	fs.IntVar(&cfg.FrameCount, "frames-in-flight", cfg.FrameCount, "swapchain images requested")
	fs.DurationVar(&cfg.FenceTimeout, "fence-timeout", cfg.FenceTimeout, "longest fence wait before giving up")
	fs.BoolVar(&cfg.Validation, "validation", cfg.Validation, "enable VK_LAYER_KHRONOS_validation")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.BoolVar(&cfg.Headless, "headless", cfg.Headless, "pace frames against a simulated gpu without a window")
	fs.IntVar(&cfg.HeadlessFrames, "headless-frames", cfg.HeadlessFrames, "frames rendered in headless mode")
	fs.DurationVar(&cfg.SimulatedLatency, "simulated-latency", cfg.SimulatedLatency, "time the simulated gpu takes per frame")
	return fs
}

var overrides = map[string]func(dst, src *Config){
	"title":             func(dst, src *Config) { dst.Title = src.Title },
	"width":             func(dst, src *Config) { dst.Width = src.Width },
	"height":            func(dst, src *Config) { dst.Height = src.Height },
	"vsync":             func(dst, src *Config) { dst.VSync = src.VSync },
	"allow-tearing":     func(dst, src *Config) { dst.AllowTearing = src.AllowTearing },
	"frames-in-flight":  func(dst, src *Config) { dst.FrameCount = src.FrameCount },
	"fence-timeout":     func(dst, src *Config) { dst.FenceTimeout = src.FenceTimeout },
	"validation":        func(dst, src *Config) { dst.Validation = src.Validation },
	"log-level":         func(dst, src *Config) { dst.LogLevel = src.LogLevel },
	"headless":          func(dst, src *Config) { dst.Headless = src.Headless },
	"headless-frames":   func(dst, src *Config) { dst.HeadlessFrames = src.HeadlessFrames },
	"simulated-latency": func(dst, src *Config) { dst.SimulatedLatency = src.SimulatedLatency },
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to read config file")
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrapf(err, "failed to parse config %s", path)
	}
	return nil
}

// Validate rejects settings the sample cannot run with.
func (c *Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return errors.Errorf("window size %dx%d must be positive", c.Width, c.Height)
	}
	if c.FrameCount < 2 {
		return errors.Errorf("frame_count %d: at least 2 frames are needed", c.FrameCount)
	}
	if c.FenceTimeout <= 0 {
		return errors.Errorf("fence_timeout %s must be positive", c.FenceTimeout)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.Headless {
		if c.HeadlessFrames <= 0 {
			return errors.Errorf("headless_frames %d must be positive", c.HeadlessFrames)
		}
		if c.SimulatedLatency <= 0 {
			return errors.Errorf("simulated_latency %s must be positive", c.SimulatedLatency)
		}
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, errors.Wrapf(err, "log_level %q", c.LogLevel)
	}
	return level, nil
}
