package watch

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtime-ai/vadseg/pkg/audio"
	"github.com/realtime-ai/vadseg/pkg/runner"
	"github.com/realtime-ai/vadseg/pkg/segment"
	"github.com/realtime-ai/vadseg/pkg/vad"
)

func startWatcher(t *testing.T, w *Watcher) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	// Give fsnotify time to register the directory.
	time.Sleep(50 * time.Millisecond)
	return cancel
}

func TestWatcherDebouncesAndFilters(t *testing.T) {
	dir := t.TempDir()
	got := make(chan string, 10)
	w := New(dir, []string{"wav", ".MP3"}, 100*time.Millisecond, func(_ context.Context, path string) {
		got <- path
	})
	startWatcher(t, w)

	wav := filepath.Join(dir, "a.wav")
	for i := range 3 {
		require.NoError(t, os.WriteFile(wav, make([]byte, 10*(i+1)), 0o644))
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.mp3"), []byte("x"), 0o644))

	seen := map[string]int{}
	timeout := time.After(3 * time.Second)
	for len(seen) < 2 {
		select {
		case p := <-got:
			seen[filepath.Base(p)]++
		case <-timeout:
			t.Fatalf("handler not called, seen %v", seen)
		}
	}
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, map[string]int{"a.wav": 1, "b.mp3": 1}, seen)
	assert.Empty(t, got)
}

func TestWatcherStopsPendingOnCancel(t *testing.T) {
	dir := t.TempDir()
	called := make(chan string, 1)
	w := New(dir, nil, time.Hour, func(_ context.Context, path string) {
		called <- path
	})
	cancel := startWatcher(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.flac"), []byte("x"), 0o644))
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case p := <-called:
		t.Fatalf("unexpected call for %s", p)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSidecarHandler(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tone.wav")
	samples := make([]float32, 16000)
	for i := 4000; i < 12000; i++ {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*220*float64(i)/16000))
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, audio.WriteWAV(f, samples, 16000))
	require.NoError(t, f.Close())

	factory, err := vad.NewFactory(vad.EngineConfig{Engine: vad.EngineEnergy})
	require.NoError(t, err)
	r, err := runner.New(factory, segment.DefaultConfig(), runner.Options{Workers: 1})
	require.NoError(t, err)
	defer r.Close()

	out := filepath.Join(dir, "out")
	SidecarHandler(r, out)(context.Background(), path)

	data, err := os.ReadFile(filepath.Join(out, "tone.wav"+runner.SidecarSuffix))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"segments"`)
}
