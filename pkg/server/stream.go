package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/realtime-ai/vadseg/pkg/audio"
	"github.com/realtime-ai/vadseg/pkg/segment"
	"github.com/realtime-ai/vadseg/pkg/trace"
)

// Server message types.
const (
	MsgSessionCreated = "session.created"
	MsgSessionReset   = "session.reset"
	MsgSpeechStart    = "speech.start"
	MsgSpeechEnd      = "speech.end"
	MsgResult         = "result"
	MsgError          = "error"
)

// Client commands, sent as text frames either bare or as {"type": ...}.
const (
	CmdEnd   = "end"
	CmdReset = "reset"
)

// Message is a server-to-client WebSocket message.
type Message struct {
	Type       string          `json:"type"`
	SessionID  string          `json:"session_id,omitempty"`
	SampleRate int             `json:"sample_rate,omitempty"`
	Encoding   string          `json:"encoding,omitempty"`
	Event      *segment.Event  `json:"event,omitempty"`
	Result     *segment.Result `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// handleStream upgrades to a WebSocket session. Binary frames carry audio
// in the requested encoding; live boundaries are sent as they happen and
// the final Result after an "end" command.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	p, err := parseParams(r.URL.Query(), s.segCfg, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id := uuid.NewString()
	log := s.log.WithField("session", id)
	seg, release, err := s.segmenter(p.Config, log)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		release(nil)
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()
	if s.config.ReadLimit > 0 {
		conn.SetReadLimit(s.config.ReadLimit)
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.config.SessionTimeout > 0 {
		ctx, cancel = context.WithTimeout(r.Context(), s.config.SessionTimeout)
	} else {
		ctx, cancel = context.WithCancel(r.Context())
	}
	defer cancel()

	ctx, span := trace.StartSpan(ctx, "server.session")
	defer span.End()
	span.SetAttributes(trace.SessionAttrs(id)...)
	span.SetAttributes(trace.AudioAttrs(p.SampleRate, p.Encoding)...)

	s.registerSession(id, cancel)
	defer s.unregisterSession(id)
	log.Info("session opened")

	sess := &session{
		id:           id,
		conn:         conn,
		seg:          seg,
		params:       p,
		log:          log,
		writeTimeout: s.config.WriteTimeout,
	}
	err = sess.run(ctx)
	release(err)
	if err != nil {
		trace.RecordError(span, err)
		log.WithError(err).Warn("session ended with error")
		return
	}
	log.Info("session closed")
}

type session struct {
	id           string
	conn         *websocket.Conn
	seg          *segment.Segmenter
	params       streamParams
	log          *logrus.Entry
	writeTimeout time.Duration

	stream   *segment.Stream
	writeErr error
}

func (s *session) open(ctx context.Context) error {
	st, err := s.seg.NewStream(ctx, s.params.SampleRate, audio.Encoding(s.params.Encoding), segment.WithEvents(s.sendEvent))
	if err != nil {
		return err
	}
	s.stream = st
	return nil
}

func (s *session) run(ctx context.Context) error {
	if err := s.open(ctx); err != nil {
		s.send(Message{Type: MsgError, Error: err.Error()})
		return err
	}
	defer func() { s.stream.Abort() }()

	// Unblock ReadMessage when the session is cancelled.
	stop := context.AfterFunc(ctx, func() {
		s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := s.send(Message{
		Type:       MsgSessionCreated,
		SessionID:  s.id,
		SampleRate: s.params.SampleRate,
		Encoding:   s.params.Encoding,
	}); err != nil {
		return err
	}

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				s.send(Message{Type: MsgError, Error: ctx.Err().Error()})
				return ctx.Err()
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.WithError(err).Warn("websocket read error")
			}
			return nil
		}

		switch mt {
		case websocket.BinaryMessage:
			if _, err := s.stream.Write(data); err != nil {
				s.send(Message{Type: MsgError, Error: err.Error()})
				return err
			}
			if s.writeErr != nil {
				return s.writeErr
			}

		case websocket.TextMessage:
			switch parseCommand(data) {
			case CmdEnd:
				return s.finish()
			case CmdReset:
				s.stream.Abort()
				if err := s.open(ctx); err != nil {
					s.send(Message{Type: MsgError, Error: err.Error()})
					return err
				}
				if err := s.send(Message{Type: MsgSessionReset, SessionID: s.id}); err != nil {
					return err
				}
			default:
				if err := s.send(Message{Type: MsgError, Error: "unknown command"}); err != nil {
					return err
				}
			}
		}
	}
}

// finish flushes the stream, sends the result and closes the connection.
func (s *session) finish() error {
	res, err := s.stream.Close()
	if err != nil {
		s.send(Message{Type: MsgError, Error: err.Error()})
		return err
	}
	if err := s.send(Message{Type: MsgResult, SessionID: s.id, Result: res}); err != nil {
		return err
	}
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return nil
}

func (s *session) sendEvent(ev segment.Event) {
	typ := MsgSpeechStart
	if ev.Kind == segment.EventEnd {
		typ = MsgSpeechEnd
	}
	if err := s.send(Message{Type: typ, Event: &ev}); err != nil && s.writeErr == nil {
		s.writeErr = err
	}
}

func (s *session) send(msg Message) error {
	if s.writeTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("server: write message: %w", err)
	}
	return nil
}

// parseCommand accepts "end" or {"type":"end"}.
func parseCommand(data []byte) string {
	text := strings.TrimSpace(string(data))
	if strings.HasPrefix(text, "{") {
		var cmd struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &cmd) == nil {
			return cmd.Type
		}
		return ""
	}
	return strings.ToLower(text)
}
