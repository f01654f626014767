package capture

import (
	"context"
	"sync/atomic"

	"github.com/realtime-ai/vadseg/pkg/audio"
	"github.com/realtime-ai/vadseg/pkg/logger"
	"github.com/realtime-ai/vadseg/pkg/segment"
)

// queueSize is the number of capture periods buffered between the device
// callback and the segmenter.
const queueSize = 64

// period is one capture callback's audio. gap counts samples dropped just
// before it while the queue was full.
type period struct {
	pcm []byte
	gap int64
}

// Listen segments src live until ctx is done. onEvent is called for every
// speech start and end, including the end emitted when an open segment is
// flushed at shutdown. The final Result covers everything captured.
//
// Periods dropped while the segmenter is behind are replaced by the same
// number of zero samples, so event offsets stay aligned with capture time.
func Listen(ctx context.Context, seg *segment.Segmenter, src Source, sampleRate int, onEvent func(segment.Event)) (*segment.Result, error) {
	log := logger.WithComponent("capture")

	// The iterator outlives ctx so the final flush still runs.
	it, err := segment.NewIterator(context.WithoutCancel(ctx), seg, sampleRate)
	if err != nil {
		return nil, err
	}

	chunks := make(chan period, queueSize)
	var dropped atomic.Int64
	err = src.Start(func(pcm []byte) {
		gap := dropped.Swap(0)
		select {
		case chunks <- period{pcm: pcm, gap: gap}:
		default:
			dropped.Add(gap + int64(len(pcm)/2))
			log.Warn("segmenter is behind, dropping capture period")
		}
	})
	if err != nil {
		src.Close()
		it.Close()
		return nil, err
	}

	feed := func(samples []float32) error {
		events, err := it.Feed(samples)
		for _, ev := range events {
			onEvent(ev)
		}
		return err
	}
	feedPeriod := func(p period) error {
		if p.gap > 0 {
			if err := feed(make([]float32, p.gap)); err != nil {
				return err
			}
		}
		return feed(audio.PCM16ToFloat32(p.pcm))
	}

loop:
	for {
		select {
		case p := <-chunks:
			if err := feedPeriod(p); err != nil {
				src.Close()
				return nil, err
			}
		case <-ctx.Done():
			break loop
		}
	}

	if err := src.Close(); err != nil {
		log.WithError(err).Warn("close capture source")
	}
drain:
	for {
		select {
		case p := <-chunks:
			if err := feedPeriod(p); err != nil {
				return nil, err
			}
		default:
			break drain
		}
	}
	if gap := dropped.Swap(0); gap > 0 {
		if err := feed(make([]float32, gap)); err != nil {
			return nil, err
		}
	}

	res, events, err := it.Close()
	for _, ev := range events {
		onEvent(ev)
	}
	return res, err
}
