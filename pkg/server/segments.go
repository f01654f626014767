package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/realtime-ai/vadseg/pkg/audio"
	"github.com/realtime-ai/vadseg/pkg/segment"
	"github.com/realtime-ai/vadseg/pkg/trace"
	"github.com/realtime-ai/vadseg/pkg/vad"
)

// handleSegments segments a whole request body and answers with the
// Result as JSON.
func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	p, err := parseParams(r.URL.Query(), s.segCfg, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id := uuid.NewString()
	log := s.log.WithField("request", id)
	seg, release, err := s.segmenter(p.Config, log)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	ctx := r.Context()
	trace.AddEvent(oteltrace.SpanFromContext(ctx), "segments", trace.AudioAttrs(p.SampleRate, p.Encoding)...)

	body := io.Reader(r.Body)
	if s.config.ReadLimit > 0 {
		body = http.MaxBytesReader(w, r.Body, s.config.ReadLimit)
	}
	res, err := detect(ctx, seg, body, p)
	release(err)
	if err != nil {
		log.WithError(err).Warn("segmentation failed")
		writeError(w, statusFor(err), err)
		return
	}
	log.WithField("segments", len(res.Segments)).Debug("segmented request")
	writeJSON(w, http.StatusOK, res)
}

func detect(ctx context.Context, seg *segment.Segmenter, body io.Reader, p streamParams) (*segment.Result, error) {
	if p.Encoding != encodingWAV {
		return seg.DetectReader(ctx, body, p.SampleRate, audio.Encoding(p.Encoding))
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	clip, err := audio.ReadWAV(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return seg.Detect(ctx, clip.Samples, clip.SampleRate)
}

func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, ErrTooManyStreams):
		return http.StatusTooManyRequests
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, audio.ErrNotWAV),
		errors.Is(err, vad.ErrUnsupportedSampleRate):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
