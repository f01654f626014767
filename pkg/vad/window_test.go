package vad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowSize(t *testing.T) {
	tests := []struct {
		rate    int
		want    int
		wantErr bool
	}{
		{rate: 16000, want: 512},
		{rate: 8000, want: 256},
		{rate: 44100, wantErr: true},
		{rate: 0, wantErr: true},
	}

	for _, tt := range tests {
		got, err := WindowSize(tt.rate)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnsupportedSampleRate, "rate %d", tt.rate)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestCheckFrame(t *testing.T) {
	assert.NoError(t, CheckFrame(make([]float32, 256), SampleRate8k))
	assert.ErrorIs(t, CheckFrame(make([]float32, 512), SampleRate8k), ErrInvalidFrameLength)
	assert.ErrorIs(t, CheckFrame(nil, SampleRate16k), ErrInvalidFrameLength)
}

// A prober is pinned to one rate until it is reset; this holds for every
// implementation that uses rateGuard.
func TestSampleRateChangeRequiresReset(t *testing.T) {
	energy, err := NewEnergyProber(DefaultEnergyConfig())
	require.NoError(t, err)

	probers := map[string]Prober{
		"mock":   NewMockDetector(),
		"energy": energy,
	}

	for name, p := range probers {
		t.Run(name, func(t *testing.T) {
			_, err := p.Process(make([]float32, 512), SampleRate16k)
			require.NoError(t, err)

			_, err = p.Process(make([]float32, 256), SampleRate8k)
			assert.ErrorIs(t, err, ErrSampleRateChanged)

			require.NoError(t, p.Reset())
			_, err = p.Process(make([]float32, 256), SampleRate8k)
			assert.NoError(t, err)
		})
	}
}
