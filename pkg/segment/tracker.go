// Package segment turns per-frame speech probabilities into speech ranges.
//
// A Tracker is the state machine; Pad widens its output; a Segmenter drives
// a vad.Prober over buffered samples (Detect) or incrementally arriving
// bytes (NewStream) and produces a Result.
package segment

import (
	"errors"
	"fmt"
)

// Unset marks a State offset that holds no value.
const Unset = -1

// ErrOutOfOrder is returned when frame offsets do not strictly increase.
var ErrOutOfOrder = errors.New("segment: frame offsets must strictly increase")

// Segment is a half-open range [Start, End) of sample indices.
type Segment struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of samples covered.
func (s Segment) Len() int {
	return s.End - s.Start
}

// State is the tracker's automaton value.
type State struct {
	// Triggered is true inside a speech segment.
	Triggered bool
	// TempEnd is the candidate end awaiting silence confirmation, or Unset.
	TempEnd int
	// Start is the start of the open segment, or Unset when idle.
	Start int
}

// Idle is the initial state.
func Idle() State {
	return State{TempEnd: Unset, Start: Unset}
}

// PendingEnd reports whether a candidate end is waiting for confirmation.
func (s State) PendingEnd() bool {
	return s.Triggered && s.TempEnd != Unset
}

// Transition names what a frame did to the automaton.
type Transition int

const (
	// TransitionNone leaves the segment list unchanged.
	TransitionNone Transition = iota
	// TransitionStart opens a segment.
	TransitionStart
	// TransitionEnd closes a segment that passed the duration filter.
	TransitionEnd
	// TransitionDiscard closes a segment that was too short to keep.
	TransitionDiscard
)

func (t Transition) String() string {
	switch t {
	case TransitionStart:
		return "start"
	case TransitionEnd:
		return "end"
	case TransitionDiscard:
		return "discard"
	}
	return "none"
}

// Step is the outcome of one observation. Segment.Start is set for every
// transition other than None; Segment.End only for End and Discard.
type Step struct {
	Transition Transition
	Segment    Segment
}

// Tracker is the single-pass segmentation automaton. It is not safe for
// concurrent use.
type Tracker struct {
	p        params
	state    State
	segments []Segment
	last     int
}

// NewTracker creates a tracker for probabilities computed at sampleRate.
func NewTracker(cfg Config, sampleRate int) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("segment: invalid config: %w", err)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("segment: invalid sample rate %d", sampleRate)
	}
	return newTracker(cfg.params(sampleRate)), nil
}

func newTracker(p params) *Tracker {
	return &Tracker{p: p, state: Idle(), last: Unset}
}

// Observe applies one frame's probability. offset is the index of the
// frame's first sample.
func (t *Tracker) Observe(prob float32, offset int) (Step, error) {
	if offset <= t.last {
		return Step{}, fmt.Errorf("%w: %d after %d", ErrOutOfOrder, offset, t.last)
	}
	t.last = offset

	speech := prob >= t.p.threshold

	// speech resumed before the silence was long enough
	if speech && t.state.TempEnd != Unset {
		t.state.TempEnd = Unset
	}

	if speech && !t.state.Triggered {
		t.state.Triggered = true
		t.state.Start = offset
		return Step{Transition: TransitionStart, Segment: Segment{Start: offset, End: Unset}}, nil
	}

	if prob < t.p.negThreshold && t.state.Triggered {
		if t.state.TempEnd == Unset {
			t.state.TempEnd = offset
		}
		if offset-t.state.TempEnd < t.p.minSilence {
			return Step{}, nil
		}
		return t.close(t.state.TempEnd), nil
	}

	return Step{}, nil
}

// Flush closes an open segment at totalSamples, the end of the stream.
func (t *Tracker) Flush(totalSamples int) Step {
	if !t.state.Triggered {
		return Step{}
	}
	return t.close(totalSamples)
}

func (t *Tracker) close(end int) Step {
	seg := Segment{Start: t.state.Start, End: end}
	t.state = Idle()

	if seg.Len() >= t.p.minSpeech {
		t.segments = append(t.segments, seg)
		return Step{Transition: TransitionEnd, Segment: seg}
	}
	return Step{Transition: TransitionDiscard, Segment: seg}
}

// State returns the current automaton value.
func (t *Tracker) State() State {
	return t.state
}

// Segments returns a copy of the finalized, unpadded segments.
func (t *Tracker) Segments() []Segment {
	return append([]Segment(nil), t.segments...)
}

// Reset returns the tracker to its initial state.
func (t *Tracker) Reset() {
	t.state = Idle()
	t.segments = nil
	t.last = Unset
}
