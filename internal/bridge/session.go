package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"afterhours-agent/internal/events"
	"afterhours-agent/internal/realtime"
	"afterhours-agent/internal/tools"

	"github.com/gorilla/websocket"
)

// Telephony media-stream control frames. The payload is base64 audio and is
// relayed without transformation in either direction.
type mediaMessage struct {
	Event     string      `json:"event"`
	StreamSid string      `json:"streamSid,omitempty"`
	Start     *startFrame `json:"start,omitempty"`
	Media     *mediaFrame `json:"media,omitempty"`
}

type startFrame struct {
	StreamSid string `json:"streamSid"`
	CallSid   string `json:"callSid"`
}

type mediaFrame struct {
	Payload string `json:"payload"`
}

// Backend protocol events worth a durable transport_event record. Audio
// deltas and tool-call frames are handled, not logged.
var loggedEventTypes = map[string]bool{
	"session.created":                   true,
	"session.updated":                   true,
	"response.done":                     true,
	"rate_limits.updated":               true,
	"input_audio_buffer.committed":      true,
	"input_audio_buffer.speech_started": true,
	"input_audio_buffer.speech_stopped": true,
}

// session is one live call. Fully isolated from other sessions; owns the
// backend connection and both event subscriptions, not the sinks.
type session struct {
	log      *slog.Logger
	events   *events.Log
	registry *tools.Registry

	rt   *realtime.Session
	conn *websocket.Conn

	evSub  *realtime.Subscription
	errSub *realtime.Subscription

	writeMu      sync.Mutex
	teardownOnce sync.Once
	ended        atomic.Bool

	mu        sync.Mutex
	streamSID string
	callSID   string
}

func (b *Bridge) newSession(conn *websocket.Conn, rt *realtime.Session) *session {
	return &session{
		log:      b.log,
		events:   b.events,
		registry: b.registry,
		rt:       rt,
		conn:     conn,
	}
}

// run subscribes to the backend and pumps the media stream until either side
// ends the call. Teardown is guaranteed exactly once on every exit path.
func (s *session) run() {
	s.evSub = s.rt.OnEvent(s.handleBackendEvent)
	s.errSub = s.rt.OnError(s.handleBackendError)
	defer s.teardown()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.ended.Load() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("media stream read failed", "err", err)
			}
			return
		}

		var msg mediaMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Warn("malformed media frame", "err", err)
			continue
		}

		switch msg.Event {
		case "connected":
			s.log.Debug("media stream connected")

		case "start":
			if msg.Start != nil {
				s.mu.Lock()
				s.streamSID = msg.Start.StreamSid
				s.callSID = msg.Start.CallSid
				s.mu.Unlock()
				s.log.Info("media stream started", "stream_sid", msg.Start.StreamSid, "call_sid", msg.Start.CallSid)
			}

		case "media":
			if msg.Media == nil {
				continue
			}
			if err := s.rt.AppendAudio(msg.Media.Payload); err != nil {
				if s.ended.Load() {
					return
				}
				s.log.Warn("audio relay to backend failed", "err", err)
			}

		case "stop":
			s.log.Info("media stream stopped")
			return

		default:
			s.log.Debug("unhandled media event", "event", msg.Event)
		}
	}
}

// handleBackendEvent runs on the backend read loop, so appends here keep the
// order in which events arrived.
func (s *session) handleBackendEvent(ev realtime.ServerEvent) {
	switch ev.Type {
	case "response.audio.delta":
		s.sendAudio(ev.Delta)

	case "response.function_call_arguments.done":
		go s.runTool(ev)

	default:
		if loggedEventTypes[ev.Type] || ev.Type == "" {
			tag := ev.Type
			if tag == "" {
				tag = "unknown"
			}
			s.logEvent(events.TypeTransportEvent, map[string]any{"event": tag})
		}
	}
}

// handleBackendError logs the fault, then ends the session. No reconnect.
func (s *session) handleBackendError(err error) {
	s.logEvent(events.TypeSessionError, map[string]any{"error": err.Error()})
	s.log.Error("backend session error", "err", err)
	s.teardown()
}

// runTool executes one tool invocation. The result goes back to the backend's
// internal reasoning only; if the session has ended meanwhile, the result is
// discarded.
func (s *session) runTool(ev realtime.ServerEvent) {
	if s.ended.Load() {
		return
	}

	result, err := s.registry.Dispatch(context.Background(), ev.Name, json.RawMessage(ev.Arguments))

	var body []byte
	if err != nil {
		s.log.Warn("tool call failed", "tool", ev.Name, "err", err)
		body, _ = json.Marshal(map[string]any{"ok": false, "error": err.Error()})
	} else {
		body, _ = json.Marshal(map[string]any{"ok": true, "outcome": result.Outcome, "confirmation": result.Confirmation})
	}

	if s.ended.Load() {
		s.log.Debug("tool result discarded, session ended", "tool", ev.Name)
		return
	}
	if err := s.rt.SendToolResult(ev.CallID, string(body)); err != nil {
		s.log.Debug("tool result discarded", "tool", ev.Name, "err", err)
	}
}

// sendAudio wraps one backend audio payload into a media frame for the
// telephony stream.
func (s *session) sendAudio(payload string) {
	s.mu.Lock()
	sid := s.streamSID
	s.mu.Unlock()
	if sid == "" {
		// Audio before the start frame has nowhere to go.
		return
	}

	msg := mediaMessage{
		Event:     "media",
		StreamSid: sid,
		Media:     &mediaFrame{Payload: payload},
	}
	s.writeMu.Lock()
	err := s.conn.WriteJSON(msg)
	s.writeMu.Unlock()
	if err != nil && !s.ended.Load() {
		s.log.Warn("audio relay to caller failed", "err", err)
	}
}

// logEvent appends best-effort: a log-sink fault degrades, it never raises
// past the session.
func (s *session) logEvent(eventType string, payload map[string]any) {
	if err := s.events.Append(eventType, payload); err != nil {
		s.log.Warn("event append failed", "event_type", eventType, "err", err)
	}
}

// teardown releases the backend connection and both subscriptions. Safe to
// call from any goroutine, any number of times.
func (s *session) teardown() {
	s.teardownOnce.Do(func() {
		s.ended.Store(true)
		s.evSub.Cancel()
		s.errSub.Cancel()
		_ = s.rt.Close()
		_ = s.conn.Close()

		s.mu.Lock()
		callSID := s.callSID
		s.mu.Unlock()
		s.log.Info("call session ended", "call_sid", callSID)
	})
}
