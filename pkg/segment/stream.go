package segment

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/realtime-ai/vadseg/pkg/audio"
)

// ErrStreamClosed is returned by writes after Close, Abort or a failure.
var ErrStreamClosed = errors.New("segment: stream closed")

const maxWindow = 512

// frameBuffer assembles one frame from samples arriving in pieces.
type frameBuffer struct {
	buf  [maxWindow]float32
	size int
	n    int
}

// push appends one sample and reports whether the frame is full.
func (f *frameBuffer) push(v float32) bool {
	f.buf[f.n] = v
	f.n++
	return f.n == f.size
}

// padded zero-fills the unused tail and returns the whole frame.
func (f *frameBuffer) padded() []float32 {
	clear(f.buf[f.n:f.size])
	return f.buf[:f.size]
}

// EventKind is the kind of a live Event.
type EventKind string

const (
	EventStart EventKind = "start"
	EventEnd   EventKind = "end"
)

// Event is a live speech boundary. Start events are padded backwards and
// end events forwards, clamped to the audio seen so far. Live events are
// not duration filtered; Kept reports whether an ended segment will appear
// in the final Result.
type Event struct {
	Kind    EventKind `json:"type"`
	Sample  int       `json:"sample"`
	Seconds float64   `json:"seconds"`
	Kept    bool      `json:"kept,omitempty"`
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithEvents calls fn for every live start and end.
func WithEvents(fn func(Event)) StreamOption {
	return func(s *Stream) { s.onEvent = fn }
}

// Stream segments audio that arrives incrementally. It implements
// io.Writer for encoded bytes; writes may split samples and frames
// anywhere. A Stream is not safe for concurrent use and must be finished
// with Close or Abort to free its Segmenter.
type Stream struct {
	run *run
	enc audio.Encoding

	carry  [4]byte
	carryN int

	frame   frameBuffer
	phase   int
	offset  int
	samples int
	scratch []float32

	onEvent func(Event)
	err     error
}

// NewStream starts an incremental stream at sampleRate.
func (s *Segmenter) NewStream(ctx context.Context, sampleRate int, enc audio.Encoding, opts ...StreamOption) (*Stream, error) {
	if enc == "" {
		enc = audio.PCM16LE
	}
	r, err := s.begin(ctx, sampleRate, "stream")
	if err != nil {
		return nil, err
	}

	st := &Stream{run: r, enc: enc}
	st.frame.size = r.window
	for _, opt := range opts {
		opt(st)
	}
	if st.onEvent != nil {
		r.onStep = st.emit
	}
	return st, nil
}

func (s *Stream) emit(step Step, seen int) {
	r := s.run
	var ev Event
	switch step.Transition {
	case TransitionStart:
		ev = Event{Kind: EventStart, Sample: max(0, step.Segment.Start-r.pad)}
	case TransitionEnd, TransitionDiscard:
		ev = Event{
			Kind:   EventEnd,
			Sample: min(seen, step.Segment.End+r.pad),
			Kept:   step.Transition == TransitionEnd,
		}
	default:
		return
	}
	ev.Seconds = roundTo(float64(ev.Sample)/float64(r.modelRate), r.seg.cfg.TimeResolution)
	ev.Sample *= r.step
	s.onEvent(ev)
}

// Write consumes encoded bytes. A sample split across writes is carried
// over to the next call.
func (s *Stream) Write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}

	width := s.enc.BytesPerSample()
	data := p
	s.scratch = s.scratch[:0]

	if s.carryN > 0 {
		need := width - s.carryN
		if len(data) < need {
			s.carryN += copy(s.carry[s.carryN:], data)
			return len(p), nil
		}
		copy(s.carry[s.carryN:], data[:need])
		s.scratch, _ = s.enc.Append(s.scratch, s.carry[:width])
		s.carryN = 0
		data = data[need:]
	}

	var n int
	s.scratch, n = s.enc.Append(s.scratch, data)
	s.carryN = copy(s.carry[:], data[n:])

	if err := s.WriteSamples(s.scratch); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteSamples consumes normalized samples at the stream's source rate.
func (s *Stream) WriteSamples(samples []float32) error {
	if s.err != nil {
		return s.err
	}
	for _, v := range samples {
		s.samples++
		keep := s.phase == 0
		s.phase++
		if s.phase == s.run.step {
			s.phase = 0
		}
		if !keep || !s.frame.push(v) {
			continue
		}
		if _, err := s.run.process(s.frame.buf[:s.frame.size], s.offset); err != nil {
			return s.fail(err)
		}
		s.offset += s.frame.size
		s.frame.n = 0
	}
	return nil
}

// ReadFrom drains r into the stream, checking the context between reads.
func (s *Stream) ReadFrom(r io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		if err := s.run.ctx.Err(); err != nil {
			return total, s.fail(err)
		}
		n, err := r.Read(buf)
		if n > 0 {
			total += int64(n)
			if _, werr := s.Write(buf[:n]); werr != nil {
				return total, werr
			}
		}
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, s.fail(fmt.Errorf("segment: read input: %w", err))
		}
	}
}

// Close probes any leftover partial frame zero-padded, flushes the
// tracker and returns the result. A dangling partial sample is dropped.
func (s *Stream) Close() (*Result, error) {
	if s.err != nil {
		return nil, s.err
	}

	total := s.offset + s.frame.n
	if s.frame.n > 0 {
		if _, err := s.run.process(s.frame.padded(), s.offset); err != nil {
			return nil, s.fail(err)
		}
		s.frame.n = 0
	}

	s.err = ErrStreamClosed
	return s.run.finish(total, s.samples)
}

// Abort ends the stream without a result.
func (s *Stream) Abort() {
	if s.err != nil {
		return
	}
	s.err = ErrStreamClosed
	s.run.release(0)
}

// State exposes the tracker state, valid after cancellation or failure.
func (s *Stream) State() State {
	return s.run.tracker.State()
}

// Segments returns the unpadded model-rate segments finalized so far.
func (s *Stream) Segments() []Segment {
	return s.run.tracker.Segments()
}

// SampleRate returns the source rate.
func (s *Stream) SampleRate() int {
	return s.run.sourceRate
}

func (s *Stream) fail(err error) error {
	s.err = s.run.abort(err)
	return s.err
}

// DetectReader segments encoded audio read from r until EOF.
func (s *Segmenter) DetectReader(ctx context.Context, r io.Reader, sampleRate int, enc audio.Encoding, opts ...StreamOption) (*Result, error) {
	st, err := s.NewStream(ctx, sampleRate, enc, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := st.ReadFrom(r); err != nil {
		return nil, err
	}
	return st.Close()
}

var _ io.Writer = (*Stream)(nil)
