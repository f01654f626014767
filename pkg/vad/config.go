package vad

import "fmt"

// DetectorConfig holds configuration for creating a Silero detector.
type DetectorConfig struct {
	// ModelPath is the Silero VAD ONNX model file to load.
	ModelPath string
	// LibraryPath points at libonnxruntime; empty means auto-detect.
	LibraryPath string
	// Threads is the intra-op thread count, 1 when zero.
	Threads int
}

// IsValid validates the detector configuration.
func (c DetectorConfig) IsValid() error {
	if c.ModelPath == "" {
		return fmt.Errorf("invalid ModelPath: should not be empty")
	}
	if c.Threads < 0 {
		return fmt.Errorf("invalid Threads: %d", c.Threads)
	}
	return nil
}
