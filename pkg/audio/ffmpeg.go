package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// ErrFFmpegNotFound is returned when the ffmpeg binary is not on PATH.
var ErrFFmpegNotFound = errors.New("audio: ffmpeg not found")

// FFmpeg decodes and encodes containers by running the ffmpeg binary.
type FFmpeg struct {
	// Binary is the executable, "ffmpeg" when empty.
	Binary string
}

func (f FFmpeg) binary() string {
	if f.Binary == "" {
		return "ffmpeg"
	}
	return f.Binary
}

// Available reports whether the binary can be found.
func (f FFmpeg) Available() bool {
	_, err := exec.LookPath(f.binary())
	return err == nil
}

// Open starts decoding path to mono s16le at sampleRate and returns the
// stdout pipe. Closing the reader waits for ffmpeg and reports its failure.
func (f FFmpeg) Open(ctx context.Context, path string, sampleRate int) (io.ReadCloser, error) {
	if !f.Available() {
		return nil, ErrFFmpegNotFound
	}

	cmd := exec.CommandContext(ctx, f.binary(),
		"-hide_banner",
		"-loglevel", "error",
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"pipe:1",
	)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("audio: ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("audio: start ffmpeg: %w", err)
	}
	return &ffmpegReader{ReadCloser: stdout, cmd: cmd, stderr: stderr}, nil
}

// Encode writes mono samples to path, letting ffmpeg pick the container
// from the file extension.
func (f FFmpeg) Encode(ctx context.Context, path string, samples []float32, sampleRate int) error {
	if !f.Available() {
		return ErrFFmpegNotFound
	}

	cmd := exec.CommandContext(ctx, f.binary(),
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-i", "pipe:0",
		path,
	)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	cmd.Stdin = bytes.NewReader(Float32ToPCM16(samples))

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("audio: ffmpeg encode %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

type ffmpegReader struct {
	io.ReadCloser
	cmd    *exec.Cmd
	stderr *bytes.Buffer

	once sync.Once
	err  error
}

func (r *ffmpegReader) Close() error {
	r.once.Do(func() {
		// drain so ffmpeg is not blocked on a full pipe when closed early
		_, _ = io.Copy(io.Discard, r.ReadCloser)
		if err := r.cmd.Wait(); err != nil {
			r.err = fmt.Errorf("audio: ffmpeg: %w: %s", err, strings.TrimSpace(r.stderr.String()))
		}
	})
	return r.err
}
