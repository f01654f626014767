package server

import "time"

// Config holds the configuration for the segmentation server.
type Config struct {
	// Addr is the address to listen on (e.g., ":8080").
	Addr string

	// StreamPath is the WebSocket endpoint path.
	StreamPath string

	// SegmentsPath is the one-shot HTTP endpoint path.
	SegmentsPath string

	// AuthToken is the bearer token for authentication.
	// If empty, authentication is disabled.
	AuthToken string

	// MaxStreams bounds concurrent segmentations across both endpoints.
	// Each one holds a prober.
	MaxStreams int

	// ReadLimit caps a request body or a single WebSocket message in bytes.
	// 0 means no limit.
	ReadLimit int64

	// SessionTimeout is the maximum WebSocket session duration.
	// 0 means no timeout.
	SessionTimeout time.Duration

	// WriteTimeout bounds each WebSocket write.
	WriteTimeout time.Duration

	// ReadBufferSize is the WebSocket read buffer size.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	WriteBufferSize int
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8080",
		StreamPath:      "/v1/stream",
		SegmentsPath:    "/v1/segments",
		MaxStreams:      16,
		ReadLimit:       64 << 20,
		SessionTimeout:  30 * time.Minute,
		WriteTimeout:    10 * time.Second,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
}
