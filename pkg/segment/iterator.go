package segment

import (
	"context"

	"github.com/realtime-ai/vadseg/pkg/audio"
)

// Iterator reports speech boundaries as audio is fed in, for live sources
// such as a microphone.
type Iterator struct {
	seg    *Segmenter
	ctx    context.Context
	rate   int
	stream *Stream
	events []Event
}

// NewIterator starts live segmentation at sampleRate on seg.
func NewIterator(ctx context.Context, seg *Segmenter, sampleRate int) (*Iterator, error) {
	it := &Iterator{seg: seg, ctx: ctx, rate: sampleRate}
	if err := it.open(); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *Iterator) open() error {
	st, err := it.seg.NewStream(it.ctx, it.rate, audio.Float32LE, WithEvents(func(ev Event) {
		it.events = append(it.events, ev)
	}))
	if err != nil {
		return err
	}
	it.stream = st
	return nil
}

// Feed consumes samples of any length and returns the boundaries they
// produced.
func (it *Iterator) Feed(samples []float32) ([]Event, error) {
	it.events = it.events[:0]
	if err := it.stream.WriteSamples(samples); err != nil {
		return nil, err
	}
	if len(it.events) == 0 {
		return nil, nil
	}
	return append([]Event(nil), it.events...), nil
}

// State exposes the tracker state.
func (it *Iterator) State() State {
	return it.stream.State()
}

// Reset drops the current stream and starts over with a reset prober.
func (it *Iterator) Reset() error {
	it.stream.Abort()
	it.events = it.events[:0]
	return it.open()
}

// Close flushes the stream. Events from the flush are returned alongside
// the final result.
func (it *Iterator) Close() (*Result, []Event, error) {
	it.events = it.events[:0]
	res, err := it.stream.Close()
	if err != nil {
		return nil, nil, err
	}
	return res, append([]Event(nil), it.events...), nil
}
