package vad

import (
	"fmt"
	"strings"
)

// Engine names accepted by NewFactory.
const (
	EngineSilero = "silero"
	EngineEnergy = "energy"
)

// Factory builds a fresh Prober. Each concurrent stream needs its own.
type Factory func() (Prober, error)

// EngineConfig selects and configures a prober engine.
type EngineConfig struct {
	Engine      string
	ModelPath   string
	LibraryPath string
	Threads     int
	Energy      EnergyConfig
}

// NewFactory returns a Factory for cfg.Engine. An empty engine selects silero
// when it is compiled in and a model path is set, energy otherwise.
func NewFactory(cfg EngineConfig) (Factory, error) {
	engine := strings.ToLower(strings.TrimSpace(cfg.Engine))
	if engine == "" {
		engine = EngineEnergy
		if Available && cfg.ModelPath != "" {
			engine = EngineSilero
		}
	}

	switch engine {
	case EngineSilero:
		dc := DetectorConfig{ModelPath: cfg.ModelPath, LibraryPath: cfg.LibraryPath, Threads: cfg.Threads}
		if err := dc.IsValid(); err != nil {
			return nil, err
		}
		if !Available {
			return nil, ErrNotBuilt
		}
		return func() (Prober, error) {
			d, err := NewDetector(dc)
			if err != nil {
				return nil, err
			}
			return d, nil
		}, nil
	case EngineEnergy:
		ec := cfg.Energy
		if ec == (EnergyConfig{}) {
			ec = DefaultEnergyConfig()
		}
		if err := ec.IsValid(); err != nil {
			return nil, err
		}
		return func() (Prober, error) {
			p, err := NewEnergyProber(ec)
			if err != nil {
				return nil, err
			}
			return p, nil
		}, nil
	}
	return nil, fmt.Errorf("vad: unknown engine %q", cfg.Engine)
}
