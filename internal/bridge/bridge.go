// Package bridge joins one telephony media stream to one realtime backend
// session per call: audio frames are relayed opaquely in both directions, the
// backend's tool calls are dispatched into the tool registry, and lifecycle
// events are appended to the event log before processing continues.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"afterhours-agent/internal/events"
	"afterhours-agent/internal/realtime"
	"afterhours-agent/internal/tools"

	"github.com/gorilla/websocket"
)

const dialTimeout = 15 * time.Second

// Bridge creates call sessions. One instance serves the whole process;
// sessions share nothing but the append-only sinks.
type Bridge struct {
	log      *slog.Logger
	events   *events.Log
	registry *tools.Registry
	rtConfig realtime.Config
}

// New wires the bridge. The registry's tool definitions are attached to the
// backend session config so every call offers the same closed tool set.
func New(rtConfig realtime.Config, registry *tools.Registry, eventLog *events.Log, log *slog.Logger) *Bridge {
	defs := registry.Definitions()
	rtConfig.Tools = make([]realtime.ToolDefinition, 0, len(defs))
	for _, t := range defs {
		rtConfig.Tools = append(rtConfig.Tools, realtime.ToolDefinition{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return &Bridge{
		log:      log,
		events:   eventLog,
		registry: registry,
		rtConfig: rtConfig,
	}
}

// Instructions renders the persona text for a deployment.
func Instructions(businessName string) string {
	return fmt.Sprintf(instructionsTemplate, businessName, businessName)
}

const instructionsTemplate = `You are the friendly after-hours phone assistant for %s. Callers reach you when the office is closed.

How to handle every call:
- Greet the caller, say you are the after-hours assistant for %s, and ask how you can help.
- Collect what you can: the caller's name, callback phone number, service address, what is wrong, and when they would like service.
- Once you have enough to follow up on, call create_lead. Set urgency to "emergency" for anything dangerous or actively causing damage (burst pipes, gas smell, no heat in winter), "low" for routine maintenance, otherwise "normal".
- For emergencies, also call escalate_to_oncall so the on-call technician is texted right away, and tell the caller someone will be in touch shortly.
- If the caller asks for a text confirmation, use send_sms_to_number with their number.
- Before the call ends, call log_call_summary with a short recap.

Rules:
- Keep responses short and natural; this is a phone call.
- Never read tool results, confirmation codes, or internal identifiers aloud.
- If a tool fails, apologize briefly, and offer to take the details down again; never mention technical errors.
- Do not promise exact arrival times or prices; the office will confirm those.`

// HandleStream runs one call session over an accepted media websocket. It
// blocks until the call ends and always leaves both connections closed.
func (b *Bridge) HandleStream(conn *websocket.Conn) {
	dialCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	// The backend connection is established before any audio is relayed, so
	// the caller never speaks into a void.
	rt, err := realtime.Dial(dialCtx, b.rtConfig)
	if err != nil {
		b.log.Error("backend dial failed", "err", err)
		_ = conn.Close()
		return
	}

	s := b.newSession(conn, rt)
	s.logEvent(events.TypeRealtimeConnected, nil)
	s.run()
}
