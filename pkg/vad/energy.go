package vad

import (
	"fmt"
	"math"
)

// EnergyConfig tunes the EnergyProber.
type EnergyConfig struct {
	// FloorDB is the RMS level (dBFS) mapped to probability 0.
	FloorDB float64 `yaml:"floor_db"`
	// CeilDB is the RMS level (dBFS) mapped to probability 1.
	CeilDB float64 `yaml:"ceil_db"`
	// Smoothing is the weight of the previous probability in [0, 1).
	Smoothing float64 `yaml:"smoothing"`
}

// DefaultEnergyConfig returns settings suitable for close-talk speech.
func DefaultEnergyConfig() EnergyConfig {
	return EnergyConfig{
		FloorDB:   -55,
		CeilDB:    -25,
		Smoothing: 0.4,
	}
}

// IsValid validates the energy configuration.
func (c EnergyConfig) IsValid() error {
	if c.CeilDB <= c.FloorDB {
		return fmt.Errorf("invalid CeilDB: must be above FloorDB (%.1f <= %.1f)", c.CeilDB, c.FloorDB)
	}
	if c.Smoothing < 0 || c.Smoothing >= 1 {
		return fmt.Errorf("invalid Smoothing: %.2f not in [0, 1)", c.Smoothing)
	}
	return nil
}

// EnergyProber scores frames by RMS level with exponential smoothing.
// It needs no model file and is used where ONNX Runtime is unavailable.
type EnergyProber struct {
	cfg EnergyConfig

	guard  rateGuard
	prev   float64
	primed bool
	closed bool
}

// NewEnergyProber creates an EnergyProber.
func NewEnergyProber(cfg EnergyConfig) (*EnergyProber, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &EnergyProber{cfg: cfg}, nil
}

// Process implements Prober.
func (e *EnergyProber) Process(frame []float32, sampleRate int) (float32, error) {
	if e.closed {
		return 0, ErrClosed
	}
	if err := e.guard.check(frame, sampleRate); err != nil {
		return 0, err
	}

	p := e.level(rms(frame))
	if e.primed {
		p = e.cfg.Smoothing*e.prev + (1-e.cfg.Smoothing)*p
	}
	e.prev = p
	e.primed = true
	return float32(p), nil
}

func (e *EnergyProber) level(r float64) float64 {
	if r <= 0 {
		return 0
	}
	db := 20 * math.Log10(r)
	p := (db - e.cfg.FloorDB) / (e.cfg.CeilDB - e.cfg.FloorDB)
	return math.Max(0, math.Min(1, p))
}

// Reset implements Prober.
func (e *EnergyProber) Reset() error {
	e.prev = 0
	e.primed = false
	e.guard.reset()
	return nil
}

// Destroy implements Prober.
func (e *EnergyProber) Destroy() error {
	e.closed = true
	return nil
}

func rms(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(frame)))
}

var _ Prober = (*EnergyProber)(nil)
