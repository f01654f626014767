package vad

import (
	"errors"
	"fmt"
)

// Supported model sample rates.
const (
	SampleRate8k  = 8000
	SampleRate16k = 16000
)

var (
	// ErrUnsupportedSampleRate is returned for any rate the model cannot run at.
	ErrUnsupportedSampleRate = errors.New("vad: unsupported sample rate")
	// ErrInvalidFrameLength is returned when a frame is not WindowSize samples long.
	ErrInvalidFrameLength = errors.New("vad: invalid frame length")
	// ErrSampleRateChanged is returned when the rate differs from the one
	// used since the last Reset.
	ErrSampleRateChanged = errors.New("vad: sample rate changed without reset")
	// ErrClosed is returned by a prober after Destroy.
	ErrClosed = errors.New("vad: prober destroyed")
	// ErrNotBuilt is returned when the binary was built without the vad tag.
	ErrNotBuilt = errors.New("vad: silero detector not built, rebuild with -tags vad")
)

// WindowSize returns the frame length the model expects at sampleRate.
func WindowSize(sampleRate int) (int, error) {
	switch sampleRate {
	case SampleRate16k:
		return 512, nil
	case SampleRate8k:
		return 256, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnsupportedSampleRate, sampleRate)
}

// contextSize is the number of trailing samples of the previous frame the
// Silero model sees in front of each new frame.
func contextSize(sampleRate int) int {
	if sampleRate == SampleRate8k {
		return 32
	}
	return 64
}

// CheckFrame validates a frame against the window size for sampleRate.
func CheckFrame(frame []float32, sampleRate int) error {
	size, err := WindowSize(sampleRate)
	if err != nil {
		return err
	}
	if len(frame) != size {
		return fmt.Errorf("%w: got %d samples, want %d at %d Hz", ErrInvalidFrameLength, len(frame), size, sampleRate)
	}
	return nil
}

// rateGuard pins a prober to the first sample rate it sees after a reset.
type rateGuard struct {
	rate int
}

func (g *rateGuard) check(frame []float32, sampleRate int) error {
	if err := CheckFrame(frame, sampleRate); err != nil {
		return err
	}
	if g.rate != 0 && g.rate != sampleRate {
		return fmt.Errorf("%w: %d -> %d", ErrSampleRateChanged, g.rate, sampleRate)
	}
	g.rate = sampleRate
	return nil
}

func (g *rateGuard) reset() {
	g.rate = 0
}
