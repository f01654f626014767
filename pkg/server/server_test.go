package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtime-ai/vadseg/pkg/audio"
	"github.com/realtime-ai/vadseg/pkg/segment"
	"github.com/realtime-ai/vadseg/pkg/vad"
)

// amplitudeFactory scores frames by mean absolute amplitude.
func amplitudeFactory() (vad.Prober, error) {
	return &vad.MockDetector{
		ProcessFunc: func(_ int, frame []float32) (float32, error) {
			var sum float64
			for _, s := range frame {
				sum += math.Abs(float64(s))
			}
			return float32(math.Min(1, 4*sum/float64(len(frame)))), nil
		},
	}, nil
}

func twoBursts(rate int) []float32 {
	out := make([]float32, 2*rate)
	for i := range out {
		t := float64(i) / float64(rate)
		amp := 0.001
		if (t >= 0.25 && t < 0.75) || (t >= 1.25 && t < 1.62) {
			amp = 0.5
		}
		out[i] = float32(amp * math.Sin(2*math.Pi*220*t))
	}
	return out
}

func newTestServer(t *testing.T, mutate func(*Config)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.WriteTimeout = 5 * time.Second
	if mutate != nil {
		mutate(cfg)
	}
	l := logrus.New()
	l.SetOutput(&bytes.Buffer{})

	srv, err := New(cfg, amplitudeFactory, segment.DefaultConfig(), WithLogger(logrus.NewEntry(l)))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Stop(context.Background())
	})
	return srv, ts
}

func postSegments(t *testing.T, url string, body []byte) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/octet-stream", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

type resultBody struct {
	Segments   []segment.Segment `json:"segments"`
	SampleRate int               `json:"sampling_rate"`
	Timestamps []json.RawMessage `json:"speech_timestamps"`
}

func TestSegmentsPCM(t *testing.T) {
	_, ts := newTestServer(t, nil)

	pcm := audio.Float32ToPCM16(twoBursts(16000))
	resp, body := postSegments(t, ts.URL+"/v1/segments?sample_rate=16000&units=seconds", pcm)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var res resultBody
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Len(t, res.Segments, 2)
	assert.Equal(t, 16000, res.SampleRate)
	assert.NotContains(t, string(res.Timestamps[0]), "start_seconds")
}

func TestSegmentsWAV(t *testing.T) {
	_, ts := newTestServer(t, nil)

	path := filepath.Join(t.TempDir(), "in.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, audio.WriteWAV(f, twoBursts(8000), 8000))
	require.NoError(t, f.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	resp, body := postSegments(t, ts.URL+"/v1/segments?encoding=wav", data)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var res resultBody
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, 8000, res.SampleRate)
	assert.Len(t, res.Segments, 2)

	resp, _ = postSegments(t, ts.URL+"/v1/segments?encoding=wav", []byte("not a wav file at all"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSegmentsRejectsBadParams(t *testing.T) {
	_, ts := newTestServer(t, nil)

	for _, q := range []string{
		"sample_rate=44100",
		"sample_rate=abc",
		"encoding=opus",
		"threshold=abc",
		"threshold=0.2&neg_threshold=0.5",
		"units=ms",
	} {
		resp, body := postSegments(t, ts.URL+"/v1/segments?"+q, make([]byte, 1024))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		assert.Contains(t, string(body), `"error"`, q)
	}
}

func TestSegmentsReadLimit(t *testing.T) {
	_, ts := newTestServer(t, func(c *Config) { c.ReadLimit = 1000 })

	resp, _ := postSegments(t, ts.URL+"/v1/segments", make([]byte, 4096))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestAuthToken(t *testing.T) {
	_, ts := newTestServer(t, func(c *Config) { c.AuthToken = "secret" })

	resp, _ := postSegments(t, ts.URL+"/v1/segments", make([]byte, 1024))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/segments", bytes.NewReader(make([]byte, 1024)))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream"
	_, resp, err = websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func dialStream(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream?" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, MsgSessionCreated, msg.Type)
	require.NotEmpty(t, msg.SessionID)
	return conn
}

func readUntilResult(t *testing.T, conn *websocket.Conn) ([]Message, *segment.Result) {
	t.Helper()
	var msgs []Message
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		require.NotEqual(t, MsgError, msg.Type, msg.Error)
		if msg.Type == MsgResult {
			return msgs, msg.Result
		}
		msgs = append(msgs, msg)
	}
}

func TestStreamSession(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	pcm := audio.Float32ToPCM16(twoBursts(16000))

	_, body := postSegments(t, ts.URL+"/v1/segments", pcm)
	var want resultBody
	require.NoError(t, json.Unmarshal(body, &want))

	conn := dialStream(t, ts, "sample_rate=16000&encoding=s16le")
	assert.Equal(t, 1, srv.SessionCount())
	for off := 0; off < len(pcm); off += 777 {
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, pcm[off:min(off+777, len(pcm))]))
	}
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"end"}`)))

	events, res := readUntilResult(t, conn)
	require.NotNil(t, res)
	assert.Equal(t, want.Segments, res.Segments)

	var kinds []string
	for _, m := range events {
		kinds = append(kinds, m.Type)
	}
	assert.Equal(t, []string{MsgSpeechStart, MsgSpeechEnd, MsgSpeechStart, MsgSpeechEnd}, kinds)
	assert.Equal(t, res.Segments[0].Start, events[0].Event.Sample)
	assert.True(t, events[1].Event.Kept)
}

func TestStreamReset(t *testing.T) {
	_, ts := newTestServer(t, nil)
	pcm := audio.Float32ToPCM16(twoBursts(16000))

	conn := dialStream(t, ts, "")
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, pcm[:len(pcm)/2]))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("reset")))

	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == MsgSessionReset {
			break
		}
	}

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, make([]byte, 3200)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("end")))
	_, res := readUntilResult(t, conn)
	assert.Empty(t, res.Segments)
	assert.Equal(t, 1600, res.TotalSamples)
}

func TestStreamUnknownCommand(t *testing.T) {
	_, ts := newTestServer(t, nil)

	conn := dialStream(t, ts, "")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("pause")))

	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MsgError, msg.Type)
	assert.Equal(t, "unknown command", msg.Error)
}

func TestStreamRejectsBadParams(t *testing.T) {
	_, ts := newTestServer(t, nil)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream?encoding=wav"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTooManyStreams(t *testing.T) {
	_, ts := newTestServer(t, func(c *Config) { c.MaxStreams = 1 })

	conn := dialStream(t, ts, "")

	resp, body := postSegments(t, ts.URL+"/v1/segments", make([]byte, 1024))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode, string(body))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("end")))
	readUntilResult(t, conn)

	require.Eventually(t, func() bool {
		resp, _ := postSegments(t, ts.URL+"/v1/segments", make([]byte, 1024))
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStopCancelsSessions(t *testing.T) {
	srv, ts := newTestServer(t, nil)

	conn := dialStream(t, ts, "")
	require.NoError(t, srv.Stop(context.Background()))

	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MsgError, msg.Type)
	assert.Equal(t, context.Canceled.Error(), msg.Error)
}

func TestHealthAndMetrics(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health["status"])
	assert.EqualValues(t, 0, health["active_streams"])

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestParseCommand(t *testing.T) {
	for in, want := range map[string]string{
		"end":              CmdEnd,
		" END\n":           CmdEnd,
		`{"type":"reset"}`: CmdReset,
		`{"type":`:         "",
	} {
		assert.Equal(t, want, parseCommand([]byte(in)), fmt.Sprintf("%q", in))
	}
}
