package capture

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtime-ai/vadseg/pkg/segment"
	"github.com/realtime-ai/vadseg/pkg/vad"
)

// fakeSource plays fixed chunks from a goroutine, then signals done.
type fakeSource struct {
	chunks   [][]byte
	done     chan struct{}
	closed   bool
	startErr error
}

func (f *fakeSource) Start(onData func([]byte)) error {
	if f.startErr != nil {
		return f.startErr
	}
	go func() {
		for _, c := range f.chunks {
			onData(c)
		}
		close(f.done)
	}()
	return nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func newSegmenter(t *testing.T, probs ...float32) *segment.Segmenter {
	t.Helper()
	l := logrus.New()
	l.SetOutput(&bytes.Buffer{})
	cfg := segment.Config{
		Threshold:            0.5,
		MinSpeechDurationMs:  64,
		MinSilenceDurationMs: 64,
		SpeechPadMs:          30,
		TimeResolution:       3,
	}
	s, err := segment.New(vad.NewMockDetectorWithSequence(probs...), cfg, segment.WithLogger(logrus.NewEntry(l)))
	require.NoError(t, err)
	return s
}

func TestListen(t *testing.T) {
	// 8 frames of 512 samples in 20 ms periods of 320 samples.
	var chunks [][]byte
	for range 4096 / 320 {
		chunks = append(chunks, make([]byte, 640))
	}
	chunks = append(chunks, make([]byte, 2*(4096%320)))
	src := &fakeSource{chunks: chunks, done: make(chan struct{})}
	seg := newSegmenter(t, 0, 0, 0.9, 0.9, 0, 0, 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-src.done
		cancel()
	}()

	var events []segment.Event
	res, err := Listen(ctx, seg, src, 16000, func(ev segment.Event) {
		events = append(events, ev)
	})
	require.NoError(t, err)

	assert.True(t, src.closed)
	assert.Equal(t, 4096, res.TotalSamples)
	assert.Equal(t, []segment.Segment{{Start: 544, End: 2528}}, res.Segments)
	assert.Equal(t, []segment.Event{
		{Kind: segment.EventStart, Sample: 544, Seconds: 0.034},
		{Kind: segment.EventEnd, Sample: 2528, Seconds: 0.158, Kept: true},
	}, events)
}

func TestListenFlushesOpenSegment(t *testing.T) {
	src := &fakeSource{chunks: [][]byte{make([]byte, 2048)}, done: make(chan struct{})}
	seg := newSegmenter(t, 0.9, 0.9)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-src.done
		cancel()
	}()

	var events []segment.Event
	res, err := Listen(ctx, seg, src, 16000, func(ev segment.Event) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, segment.EventEnd, events[1].Kind)
	assert.Equal(t, []segment.Segment{{Start: 0, End: 1024}}, res.Segments)
}

// burstSource delivers chunks from inside Start before the listener can
// drain them, then one more period from a goroutine.
type burstSource struct {
	burst int
	done  chan struct{}
}

func (b *burstSource) Start(onData func([]byte)) error {
	for range b.burst {
		onData(make([]byte, 640))
	}
	go func() {
		onData(make([]byte, 640))
		close(b.done)
	}()
	return nil
}

func (b *burstSource) Close() error { return nil }

func TestListenKeepsOffsetsWhenPeriodsDrop(t *testing.T) {
	// 71 periods of 320 samples; 6 of the burst overflow the queue.
	src := &burstSource{burst: queueSize + 6, done: make(chan struct{})}
	probs := make([]float32, 45)
	for i := 40; i < len(probs); i++ {
		probs[i] = 0.9
	}
	seg := newSegmenter(t, probs...)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-src.done
		cancel()
	}()

	var events []segment.Event
	res, err := Listen(ctx, seg, src, 16000, func(ev segment.Event) {
		events = append(events, ev)
	})
	require.NoError(t, err)

	assert.Equal(t, 71*320, res.TotalSamples)
	assert.Equal(t, []segment.Segment{{Start: 40*512 - 480, End: 71 * 320}}, res.Segments)
	assert.Equal(t, []segment.Event{
		{Kind: segment.EventStart, Sample: 20000, Seconds: 1.25},
		{Kind: segment.EventEnd, Sample: 22720, Seconds: 1.42, Kept: true},
	}, events)
}

func TestListenStartError(t *testing.T) {
	boom := errors.New("no device")
	seg := newSegmenter(t)

	_, err := Listen(context.Background(), seg, &fakeSource{startErr: boom}, 16000, func(segment.Event) {})
	assert.ErrorIs(t, err, boom)

	_, err = seg.Detect(context.Background(), make([]float32, 512), 16000)
	assert.NoError(t, err, "segmenter is free again")
}
