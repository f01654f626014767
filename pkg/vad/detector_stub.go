//go:build !vad

package vad

// Available reports whether the Silero detector is compiled in.
const Available = false

// Detector is a placeholder when ONNX support is not compiled in.
type Detector struct{}

// InitRuntime always fails without the vad build tag.
func InitRuntime(string) error { return ErrNotBuilt }

// DestroyRuntime is a no-op without the vad build tag.
func DestroyRuntime() error { return nil }

// NewDetector always fails without the vad build tag.
func NewDetector(DetectorConfig) (*Detector, error) { return nil, ErrNotBuilt }

// Process implements Prober.
func (*Detector) Process([]float32, int) (float32, error) { return 0, ErrNotBuilt }

// Reset implements Prober.
func (*Detector) Reset() error { return ErrNotBuilt }

// Destroy implements Prober.
func (*Detector) Destroy() error { return nil }

var _ Prober = (*Detector)(nil)
