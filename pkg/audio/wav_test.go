package audio

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	samples := []float32{0, 0.25, -0.25, 0.5, -0.5}

	require.NoError(t, Save(context.Background(), FFmpeg{}, path, samples, 16000))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	clip, err := ReadWAV(f)
	require.NoError(t, err)
	assert.Equal(t, 16000, clip.SampleRate)
	assert.Equal(t, samples, clip.Samples)
	assert.InDelta(t, 5.0/16000, clip.Duration(), 1e-9)
}

func TestReadWAVRejectsGarbage(t *testing.T) {
	_, err := ReadWAV(bytes.NewReader([]byte("definitely not riff data")))
	assert.ErrorIs(t, err, ErrNotWAV)
}

func TestLoadWAVAtNativeRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "native.wav")
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = float32(i%100) / 200
	}
	require.NoError(t, Save(context.Background(), FFmpeg{}, path, samples, 8000))

	clip, err := Load(context.Background(), FFmpeg{Binary: "ffmpeg-missing"}, path, 8000)
	require.NoError(t, err)
	assert.Equal(t, 8000, clip.SampleRate)
	assert.Len(t, clip.Samples, 1600)
}

func TestLoadNeedsFFmpegForOtherRates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "native.wav")
	require.NoError(t, Save(context.Background(), FFmpeg{}, path, make([]float32, 80), 8000))

	_, err := Load(context.Background(), FFmpeg{Binary: "ffmpeg-missing"}, path, 16000)
	assert.ErrorIs(t, err, ErrFFmpegNotFound)
}

func TestFFmpegResample(t *testing.T) {
	ff := FFmpeg{}
	if !ff.Available() {
		t.Skip("ffmpeg not installed")
	}

	path := filepath.Join(t.TempDir(), "in.wav")
	require.NoError(t, Save(context.Background(), ff, path, make([]float32, 8000), 8000))

	clip, err := Load(context.Background(), ff, path, 16000)
	require.NoError(t, err)
	assert.Equal(t, 16000, clip.SampleRate)
	assert.InDelta(t, 16000, len(clip.Samples), 64)
}
