package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/realtime-ai/vadseg/pkg/segment"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VADSEG_"

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults and validates it.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decode(r, cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored and existing variables are not overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %q: %w", f, err)
		}
	}
	return nil
}

// override binds one setting to an environment variable and a flag.
type override struct {
	name  string
	usage string
	set   func(c *Config, v string) error
}

var overrides = []override{
	{"threshold", "speech probability threshold", float32Field(func(c *Config) *float32 { return &c.Segment.Threshold })},
	{"neg-threshold", "silence threshold (default threshold-0.15)", float32Field(func(c *Config) *float32 { return &c.Segment.NegThreshold })},
	{"min-speech-ms", "minimum kept segment length", intField(func(c *Config) *int { return &c.Segment.MinSpeechDurationMs })},
	{"min-silence-ms", "silence needed to end a segment", intField(func(c *Config) *int { return &c.Segment.MinSilenceDurationMs })},
	{"speech-pad-ms", "padding added on both sides", intField(func(c *Config) *int { return &c.Segment.SpeechPadMs })},
	{"time-resolution", "decimals kept for seconds", intField(func(c *Config) *int { return &c.Segment.TimeResolution })},
	{"units", "timestamp units: samples, seconds or both", func(c *Config, v string) error {
		u, err := segment.ParseUnits(v)
		if err != nil {
			return err
		}
		c.Segment.Units = u
		return nil
	}},
	{"engine", "prober engine: silero or energy", stringField(func(c *Config) *string { return &c.Prober.Engine })},
	{"model", "silero ONNX model path", stringField(func(c *Config) *string { return &c.Prober.ModelPath })},
	{"onnx-library", "onnxruntime shared library path", stringField(func(c *Config) *string { return &c.Prober.ONNXLibrary })},
	{"sample-rate", "decode rate for non-WAV input", intField(func(c *Config) *int { return &c.Prober.SampleRate })},
	{"addr", "listen address for serve", stringField(func(c *Config) *string { return &c.Server.Addr })},
	{"max-streams", "concurrent streams for serve", intField(func(c *Config) *int { return &c.Server.MaxStreams })},
	{"log-level", "debug, info, warn or error", stringField(func(c *Config) *string { return &c.Log.Level })},
	{"log-file", "also write logs to this file", stringField(func(c *Config) *string { return &c.Log.File })},
	{"trace-exporter", "none, stdout or otlp", stringField(func(c *Config) *string { return &c.Trace.Exporter })},
	{"otlp-endpoint", "OTLP gRPC endpoint", stringField(func(c *Config) *string { return &c.Trace.Endpoint })},
	{"workers", "files processed at once", intField(func(c *Config) *int { return &c.Runner.Workers })},
	{"output-dir", "directory for output files", stringField(func(c *Config) *string { return &c.Runner.OutputDir })},
}

// envName maps a flag name to its variable, e.g. min-speech-ms to
// VADSEG_MIN_SPEECH_MS.
func envName(flagName string) string {
	b := []byte(EnvPrefix)
	for i := 0; i < len(flagName); i++ {
		c := flagName[i]
		switch {
		case c == '-':
			c = '_'
		case c >= 'a' && c <= 'z':
			c -= 'a' - 'A'
		}
		b = append(b, c)
	}
	return string(b)
}

// ApplyEnv applies VADSEG_* variables found through lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	for _, o := range overrides {
		key := envName(o.name)
		if v, ok := lookup(key); ok && v != "" {
			if err := o.set(cfg, v); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}
	return errors.Join(errs...)
}

// RegisterFlags adds one string flag per setting to fs. Only flags that
// are set on the command line override the configuration, see ApplyFlags.
func RegisterFlags(fs *flag.FlagSet) {
	for _, o := range overrides {
		fs.String(o.name, "", o.usage)
	}
}

// ApplyFlags applies the flags explicitly set on fs.
func ApplyFlags(cfg *Config, fs *flag.FlagSet) error {
	byName := make(map[string]override, len(overrides))
	for _, o := range overrides {
		byName[o.name] = o
	}
	var errs []error
	fs.Visit(func(f *flag.Flag) {
		o, ok := byName[f.Name]
		if !ok {
			return
		}
		if err := o.set(cfg, f.Value.String()); err != nil {
			errs = append(errs, fmt.Errorf("-%s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

func stringField(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func intField(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func float32Field(field func(*Config) *float32) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return err
		}
		*field(c) = float32(f)
		return nil
	}
}
