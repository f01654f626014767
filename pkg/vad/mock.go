package vad

import "sync"

// MockDetector is a scripted Prober for tests.
// Probabilities come from ProcessFunc if set, otherwise from Sequence in
// order (0 once the sequence is exhausted). Reset rewinds the sequence, so a
// reset mock replays the same stream.
type MockDetector struct {
	// ProcessFunc is called when Process is invoked, with the zero-based
	// index of the frame since the last Reset.
	ProcessFunc func(index int, frame []float32) (float32, error)

	// Sequence holds per-frame probabilities.
	Sequence []float32

	// ProcessCalls records all frames passed to Process.
	ProcessCalls [][]float32

	// ResetCalls counts calls to Reset.
	ResetCalls int

	// DestroyCalled tracks if Destroy was called.
	DestroyCalled bool

	guard rateGuard
	pos   int
	mu    sync.Mutex
}

// NewMockDetector creates a MockDetector that always reports silence.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// NewMockDetectorWithProb creates a MockDetector that returns a fixed probability.
func NewMockDetectorWithProb(prob float32) *MockDetector {
	return &MockDetector{
		ProcessFunc: func(int, []float32) (float32, error) {
			return prob, nil
		},
	}
}

// NewMockDetectorWithSequence creates a MockDetector that returns probs in order.
func NewMockDetectorWithSequence(probs ...float32) *MockDetector {
	return &MockDetector{Sequence: probs}
}

// Process implements Prober.
func (m *MockDetector) Process(frame []float32, sampleRate int) (float32, error) {
	m.mu.Lock()
	if m.DestroyCalled {
		m.mu.Unlock()
		return 0, ErrClosed
	}
	if err := m.guard.check(frame, sampleRate); err != nil {
		m.mu.Unlock()
		return 0, err
	}
	m.ProcessCalls = append(m.ProcessCalls, append([]float32(nil), frame...))
	idx := m.pos
	m.pos++
	fn := m.ProcessFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(idx, frame)
	}
	if idx < len(m.Sequence) {
		return m.Sequence[idx], nil
	}
	return 0, nil
}

// Reset implements Prober.
func (m *MockDetector) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResetCalls++
	m.pos = 0
	m.guard.reset()
	return nil
}

// Destroy implements Prober.
func (m *MockDetector) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DestroyCalled = true
	return nil
}

// CallCount returns the number of frames processed since creation.
func (m *MockDetector) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ProcessCalls)
}

var _ Prober = (*MockDetector)(nil)
