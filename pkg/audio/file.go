package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// IsWAV reports whether path has a .wav extension.
func IsWAV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".wav")
}

// DefaultSampleRate is the decode rate when none is requested.
const DefaultSampleRate = 16000

// Load reads a whole file as mono samples at sampleRate. WAV files already
// at that rate are parsed directly; anything else goes through ffmpeg. A
// zero sampleRate keeps a WAV file's own rate and decodes other files at
// DefaultSampleRate.
func Load(ctx context.Context, ff FFmpeg, path string, sampleRate int) (*Clip, error) {
	if IsWAV(path) {
		clip, err := loadWAV(path)
		if err == nil && (sampleRate == 0 || clip.SampleRate == sampleRate) {
			return clip, nil
		}
		if err != nil && !errors.Is(err, ErrNotWAV) {
			return nil, err
		}
	}
	if sampleRate == 0 {
		sampleRate = DefaultSampleRate
	}

	r, err := ff.Open(ctx, path, sampleRate)
	if err != nil {
		return nil, err
	}
	data, readErr := io.ReadAll(r)
	if err := r.Close(); err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, fmt.Errorf("audio: read ffmpeg output: %w", readErr)
	}
	return &Clip{Samples: PCM16ToFloat32(data), SampleRate: sampleRate}, nil
}

func loadWAV(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadWAV(f)
}

// Save writes mono samples to path: WAV natively, other formats via ffmpeg.
func Save(ctx context.Context, ff FFmpeg, path string, samples []float32, sampleRate int) error {
	if !IsWAV(path) {
		return ff.Encode(ctx, path, samples, sampleRate)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWAV(f, samples, sampleRate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
