package segment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtime-ai/vadseg/pkg/vad"
)

func TestIteratorFeed(t *testing.T) {
	mock := vad.NewMockDetectorWithSequence(0, 0, 0.9, 0.9, 0, 0, 0, 0)
	cfg := Config{
		Threshold:            0.5,
		MinSpeechDurationMs:  64,
		MinSilenceDurationMs: 64,
		SpeechPadMs:          30,
		TimeResolution:       3,
	}
	s := newTestSegmenter(t, mock, cfg)

	it, err := NewIterator(context.Background(), s, 16000)
	require.NoError(t, err)

	events, err := it.Feed(make([]float32, 1000))
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = it.Feed(make([]float32, 1100))
	require.NoError(t, err)
	assert.Equal(t, []Event{{Kind: EventStart, Sample: 544, Seconds: 0.034}}, events)
	assert.True(t, it.State().Triggered)

	events, err = it.Feed(make([]float32, 1996))
	require.NoError(t, err)
	assert.Equal(t, []Event{{Kind: EventEnd, Sample: 2528, Seconds: 0.158, Kept: true}}, events)

	res, events, err := it.Close()
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, []Segment{{Start: 544, End: 2528}}, res.Segments)
}

func TestIteratorCloseFlushesOpenSegment(t *testing.T) {
	s := newTestSegmenter(t, vad.NewMockDetectorWithProb(0.9), strictConfig())

	it, err := NewIterator(context.Background(), s, 8000)
	require.NoError(t, err)
	events, err := it.Feed(make([]float32, 720))
	require.NoError(t, err)
	require.Len(t, events, 1)

	res, events, err := it.Close()
	require.NoError(t, err)
	assert.Equal(t, []Event{{Kind: EventEnd, Sample: 720, Seconds: 0.09, Kept: true}}, events)
	assert.Equal(t, []Segment{{Start: 0, End: 720}}, res.Segments)
}

func TestIteratorReset(t *testing.T) {
	mock := vad.NewMockDetectorWithProb(0.9)
	s := newTestSegmenter(t, mock, strictConfig())

	it, err := NewIterator(context.Background(), s, 16000)
	require.NoError(t, err)
	_, err = it.Feed(make([]float32, 1024))
	require.NoError(t, err)
	require.True(t, it.State().Triggered)

	require.NoError(t, it.Reset())
	assert.Equal(t, Idle(), it.State())
	assert.Equal(t, 2, mock.ResetCalls)

	events, err := it.Feed(make([]float32, 512))
	require.NoError(t, err)
	assert.Equal(t, []Event{{Kind: EventStart, Sample: 0, Seconds: 0}}, events)
}
