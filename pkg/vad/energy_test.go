package vad

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(n int, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	return out
}

func TestEnergyConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultEnergyConfig().IsValid())
	assert.Error(t, EnergyConfig{FloorDB: -20, CeilDB: -40}.IsValid())
	assert.Error(t, EnergyConfig{FloorDB: -60, CeilDB: -20, Smoothing: 1}.IsValid())
}

func TestEnergyProberLevels(t *testing.T) {
	p, err := NewEnergyProber(EnergyConfig{FloorDB: -60, CeilDB: -20})
	require.NoError(t, err)

	silent, err := p.Process(make([]float32, 512), SampleRate16k)
	require.NoError(t, err)
	assert.Equal(t, float32(0), silent)

	loud, err := p.Process(sine(512, 0.5), SampleRate16k)
	require.NoError(t, err)
	assert.Equal(t, float32(1), loud)

	quiet, err := p.Process(sine(512, 0.001), SampleRate16k)
	require.NoError(t, err)
	assert.Less(t, quiet, float32(0.2))
}

func TestEnergyProberSmoothingAndReset(t *testing.T) {
	p, err := NewEnergyProber(EnergyConfig{FloorDB: -60, CeilDB: -20, Smoothing: 0.5})
	require.NoError(t, err)

	first, err := p.Process(sine(512, 0.5), SampleRate16k)
	require.NoError(t, err)
	assert.Equal(t, float32(1), first)

	second, err := p.Process(make([]float32, 512), SampleRate16k)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, second, 1e-6, "silence after speech decays through the smoother")

	require.NoError(t, p.Reset())
	afterReset, err := p.Process(make([]float32, 512), SampleRate16k)
	require.NoError(t, err)
	assert.Equal(t, float32(0), afterReset)
}

func TestEnergyProberResetIsIdempotent(t *testing.T) {
	p, err := NewEnergyProber(DefaultEnergyConfig())
	require.NoError(t, err)

	run := func() []float32 {
		var out []float32
		for _, amp := range []float64{0.3, 0.01, 0.0, 0.2} {
			prob, err := p.Process(sine(512, amp), SampleRate16k)
			require.NoError(t, err)
			out = append(out, prob)
		}
		return out
	}

	first := run()
	require.NoError(t, p.Reset())
	assert.Equal(t, first, run())
}

func TestEnergyProberDestroy(t *testing.T) {
	p, err := NewEnergyProber(DefaultEnergyConfig())
	require.NoError(t, err)
	require.NoError(t, p.Destroy())

	_, err = p.Process(make([]float32, 512), SampleRate16k)
	assert.ErrorIs(t, err, ErrClosed)
}
