// Package realtime is a low-level client for the voice backend's realtime
// websocket protocol. It owns the connection, a read loop, and listener
// subscriptions; it never interprets audio payloads.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultBaseURL        = "wss://api.openai.com"
	defaultConnectTimeout = 15 * time.Second
)

// Config describes one backend session: persona instructions, voice profile,
// and the tool set offered for the duration of the call.
type Config struct {
	APIKey       string
	Model        string
	Voice        string
	Instructions string
	Tools        []ToolDefinition

	// BaseURL and Dialer are overridable for tests.
	BaseURL string
	Dialer  *websocket.Dialer
}

// ToolDefinition is the declared schema for one callable tool.
type ToolDefinition struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ServerEvent is one protocol event from the backend, decoded just enough for
// the bridge: the type tag plus audio/tool-call fields when present. Raw keeps
// the full frame.
type ServerEvent struct {
	Type      string      `json:"type"`
	Delta     string      `json:"delta,omitempty"`
	Name      string      `json:"name,omitempty"`
	CallID    string      `json:"call_id,omitempty"`
	Arguments string      `json:"arguments,omitempty"`
	Error     *EventError `json:"error,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// EventError is the payload of a backend "error" event.
type EventError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Subscription is a registered listener handle. Cancel is idempotent and must
// be invoked during session teardown; listeners are not garbage collected.
type Subscription struct {
	once   sync.Once
	remove func()
}

func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(s.remove)
}

// Session is one live backend connection. Writes are serialized; events are
// dispatched to subscribers in arrival order on a single goroutine.
type Session struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}

	errMu sync.Mutex
	err   error

	subMu     sync.Mutex
	nextSubID int
	eventSubs map[int]func(ServerEvent)
	errorSubs map[int]func(error)
}

type clientEvent struct {
	Type  string      `json:"type"`
	Audio string      `json:"audio,omitempty"`
	Item  *outputItem `json:"item,omitempty"`
}

type outputItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Modalities        []string         `json:"modalities"`
	Instructions      string           `json:"instructions"`
	Voice             string           `json:"voice"`
	InputAudioFormat  string           `json:"input_audio_format"`
	OutputAudioFormat string           `json:"output_audio_format"`
	TurnDetection     map[string]any   `json:"turn_detection"`
	Tools             []ToolDefinition `json:"tools"`
	ToolChoice        string           `json:"tool_choice"`
}

// Dial opens a backend session and configures it before returning, so the
// caller can start relaying audio the moment the session exists.
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("realtime: api key required")
	}
	if cfg.Model == "" {
		return nil, errors.New("realtime: model required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	endpoint := fmt.Sprintf("%s/v1/realtime?model=%s", strings.TrimSuffix(baseURL, "/"), url.QueryEscape(cfg.Model))

	dialer := cfg.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = defaultConnectTimeout
		dialer = &d
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime: dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("realtime: dial failed: %w", err)
	}

	s := &Session{
		conn:      conn,
		done:      make(chan struct{}),
		eventSubs: map[int]func(ServerEvent){},
		errorSubs: map[int]func(error){},
	}

	update := sessionUpdate{
		Type: "session.update",
		Session: sessionConfig{
			Modalities:        []string{"text", "audio"},
			Instructions:      cfg.Instructions,
			Voice:             cfg.Voice,
			InputAudioFormat:  "g711_ulaw",
			OutputAudioFormat: "g711_ulaw",
			TurnDetection:     map[string]any{"type": "server_vad"},
			Tools:             cfg.Tools,
			ToolChoice:        "auto",
		},
	}
	if err := s.sendJSON(update); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("realtime: configure session: %w", err)
	}

	go s.readLoop()
	return s, nil
}

// OnEvent registers a listener for protocol events.
func (s *Session) OnEvent(fn func(ServerEvent)) *Subscription {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.eventSubs[id] = fn
	return &Subscription{remove: func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.eventSubs, id)
	}}
}

// OnError registers a listener for backend error events and read failures.
func (s *Session) OnError(fn func(error)) *Subscription {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.errorSubs[id] = fn
	return &Subscription{remove: func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.errorSubs, id)
	}}
}

// AppendAudio forwards one base64 audio payload to the backend's input
// buffer. The payload is relayed as received; this is not a codec.
func (s *Session) AppendAudio(payload string) error {
	return s.sendJSON(clientEvent{Type: "input_audio_buffer.append", Audio: payload})
}

// SendToolResult returns a tool invocation's output to the backend and asks it
// to continue the response.
func (s *Session) SendToolResult(callID, output string) error {
	if err := s.sendJSON(clientEvent{
		Type: "conversation.item.create",
		Item: &outputItem{Type: "function_call_output", CallID: callID, Output: output},
	}); err != nil {
		return err
	}
	return s.sendJSON(clientEvent{Type: "response.create"})
}

func (s *Session) sendJSON(v any) error {
	if s.closed.Load() {
		return errors.New("realtime: session is closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// Close releases the connection. Safe to call repeatedly and from event
// listeners; repeated calls are no-ops.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	return nil
}

// Done is closed when the read loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal session error, if any.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Session) setErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Session) readLoop() {
	defer close(s.done)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			s.setErr(err)
			s.dispatchError(fmt.Errorf("realtime: read: %w", err))
			return
		}

		var ev ServerEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.dispatchError(fmt.Errorf("realtime: malformed event: %w", err))
			continue
		}
		ev.Raw = data

		if ev.Type == "error" {
			err := fmt.Errorf("realtime: backend error: %s", ev.Error.describe())
			s.setErr(err)
			s.dispatchError(err)
			continue
		}
		s.dispatchEvent(ev)
	}
}

func (e *EventError) describe() string {
	if e == nil {
		return "unknown"
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

func (s *Session) dispatchEvent(ev ServerEvent) {
	for _, fn := range s.listeners() {
		fn(ev)
	}
}

func (s *Session) dispatchError(err error) {
	s.subMu.Lock()
	fns := make([]func(error), 0, len(s.errorSubs))
	for _, fn := range s.errorSubs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

func (s *Session) listeners() []func(ServerEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	fns := make([]func(ServerEvent), 0, len(s.eventSubs))
	for _, fn := range s.eventSubs {
		fns = append(fns, fn)
	}
	return fns
}
