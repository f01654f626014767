// Package config loads vadseg settings from YAML, .env files, VADSEG_*
// environment variables and command-line flags, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"

	"github.com/realtime-ai/vadseg/pkg/logger"
	"github.com/realtime-ai/vadseg/pkg/segment"
	"github.com/realtime-ai/vadseg/pkg/trace"
	"github.com/realtime-ai/vadseg/pkg/vad"
)

// Config is the complete vadseg configuration.
type Config struct {
	Segment segment.Config `yaml:"segment"`
	Prober  ProberConfig   `yaml:"prober"`
	Server  ServerConfig   `yaml:"server"`
	Log     LogConfig      `yaml:"log"`
	Trace   TraceConfig    `yaml:"trace"`
	Runner  RunnerConfig   `yaml:"runner"`
}

// ProberConfig selects the speech probability engine.
type ProberConfig struct {
	// Engine is silero or energy. Empty picks silero when a model is set.
	Engine      string `yaml:"engine"`
	ModelPath   string `yaml:"model_path"`
	ONNXLibrary string `yaml:"onnx_library"`
	Threads     int    `yaml:"threads"`
	// SampleRate is the rate input is decoded to. Zero keeps WAV files at
	// their native rate and decodes everything else to 16 kHz.
	SampleRate int              `yaml:"sample_rate"`
	Energy     vad.EnergyConfig `yaml:"energy"`
}

// ServerConfig configures `vadseg serve`.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// MaxStreams bounds concurrent segmentations; each holds one prober.
	MaxStreams int `yaml:"max_streams"`
	// ReadLimit caps a request body or websocket message in bytes.
	ReadLimit int64 `yaml:"read_limit"`
}

// LogConfig configures pkg/logger.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// TraceConfig configures pkg/trace.
type TraceConfig struct {
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// RunnerConfig configures batch processing.
type RunnerConfig struct {
	// Workers is the number of files processed at once. Zero means one per CPU.
	Workers   int    `yaml:"workers"`
	OutputDir string `yaml:"output_dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	tc := trace.DefaultConfig()
	return &Config{
		Segment: segment.DefaultConfig(),
		Prober: ProberConfig{
			Energy: vad.DefaultEnergyConfig(),
		},
		Server: ServerConfig{
			Addr:       ":8080",
			MaxStreams: 16,
			ReadLimit:  64 << 20,
		},
		Log: LogConfig{Level: "info"},
		Trace: TraceConfig{
			Exporter:     tc.ExporterType,
			Endpoint:     tc.OTLPEndpoint,
			SamplingRate: tc.SamplingRate,
		},
	}
}

// Validate checks cfg and returns every problem found, joined.
func Validate(cfg *Config) error {
	var errs []error

	if err := cfg.Segment.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("segment: %w", err))
	}

	switch cfg.Prober.Engine {
	case "", vad.EngineSilero, vad.EngineEnergy:
	default:
		errs = append(errs, fmt.Errorf("prober.engine %q is invalid; valid values: silero, energy", cfg.Prober.Engine))
	}
	if cfg.Prober.Engine == vad.EngineSilero && cfg.Prober.ModelPath == "" {
		errs = append(errs, errors.New("prober.model_path is required for the silero engine"))
	}
	if cfg.Prober.SampleRate != 0 {
		if _, _, err := segment.Layout(cfg.Prober.SampleRate); err != nil {
			errs = append(errs, fmt.Errorf("prober.sample_rate: %w", err))
		}
	}
	if cfg.Prober.Threads < 0 {
		errs = append(errs, fmt.Errorf("prober.threads must be >= 0, got %d", cfg.Prober.Threads))
	}
	if err := cfg.Prober.Energy.IsValid(); err != nil {
		errs = append(errs, fmt.Errorf("prober.energy: %w", err))
	}

	if cfg.Server.MaxStreams < 1 {
		errs = append(errs, fmt.Errorf("server.max_streams must be >= 1, got %d", cfg.Server.MaxStreams))
	}
	if cfg.Server.ReadLimit < 0 {
		errs = append(errs, fmt.Errorf("server.read_limit must be >= 0, got %d", cfg.Server.ReadLimit))
	}

	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	switch cfg.Trace.Exporter {
	case "", trace.ExporterNone, trace.ExporterStdout, trace.ExporterOTLP:
	default:
		errs = append(errs, fmt.Errorf("trace.exporter %q is invalid; valid values: none, stdout, otlp", cfg.Trace.Exporter))
	}
	if cfg.Trace.SamplingRate < 0 || cfg.Trace.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("trace.sampling_rate must be in [0, 1], got %v", cfg.Trace.SamplingRate))
	}

	if cfg.Runner.Workers < 0 {
		errs = append(errs, fmt.Errorf("runner.workers must be >= 0, got %d", cfg.Runner.Workers))
	}

	return errors.Join(errs...)
}

// EngineConfig converts the prober section for vad.NewFactory.
func (c *Config) EngineConfig() vad.EngineConfig {
	return vad.EngineConfig{
		Engine:      c.Prober.Engine,
		ModelPath:   c.Prober.ModelPath,
		LibraryPath: c.Prober.ONNXLibrary,
		Threads:     c.Prober.Threads,
		Energy:      c.Prober.Energy,
	}
}

// TraceConfig converts the trace section for trace.Initialize.
func (c *Config) TraceConfig(version string) trace.Config {
	tc := trace.DefaultConfig()
	tc.ServiceVersion = version
	tc.ExporterType = c.Trace.Exporter
	tc.OTLPEndpoint = c.Trace.Endpoint
	tc.SamplingRate = c.Trace.SamplingRate
	return tc
}

// Model names the prober for reports.
func (c *Config) Model() string {
	if c.Prober.Engine == vad.EngineEnergy || c.Prober.ModelPath == "" || !vad.Available {
		return vad.EngineEnergy
	}
	return vad.EngineSilero
}
