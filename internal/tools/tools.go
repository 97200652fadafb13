// Package tools defines the closed set of operations the conversational
// backend may invoke during a call. Dispatch is by name lookup into a fixed
// registry; every tool validates its arguments before any side effect and
// returns a machine-facing confirmation that is never spoken to the caller.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"afterhours-agent/internal/events"
	"afterhours-agent/internal/leads"
	"afterhours-agent/internal/sms"

	"github.com/google/uuid"
)

const (
	NameCreateLead     = "create_lead"
	NameSendSMS        = "send_sms_to_number"
	NameEscalate       = "escalate_to_oncall"
	NameLogCallSummary = "log_call_summary"
)

const (
	maxMessageLen = 480
	maxSummaryLen = 2000
	previewLen    = 80

	optOutSuffix = " Reply STOP to opt out."

	defaultEscalationReason = "emergency"
)

var (
	ErrInvalidArguments = errors.New("tools: invalid arguments")
	ErrUnknownTool      = errors.New("tools: unknown tool")
)

type Outcome string

const (
	OutcomeOK Outcome = "ok"
	// OutcomeSkipped signals that the side effect was intentionally not
	// performed (messaging gateway absent) so the conversation can continue
	// without promising an action that did not happen.
	OutcomeSkipped Outcome = "skipped"
)

// Result is the tagged outcome of a successful tool invocation. The
// confirmation text is returned to the backend's internal reasoning only.
type Result struct {
	Outcome      Outcome `json:"outcome"`
	Confirmation string  `json:"confirmation"`
}

// Tool pairs a declared name and argument schema with its execution function.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Run         func(ctx context.Context, args json.RawMessage) (Result, error)
}

// Deps are the collaborators every tool invocation shares. Constructed once at
// startup; a nil SMS sender means the gateway is not configured.
type Deps struct {
	Leads        leads.Store
	Events       *events.Log
	SMS          sms.Sender
	BusinessName string
	OnCallNumber string

	// Clock and NewID are injectable for deterministic tests.
	Clock func() time.Time
	NewID func() string
}

// Registry is the closed tool set offered to the conversational backend.
type Registry struct {
	deps  Deps
	order []string
	tools map[string]Tool
}

func NewRegistry(deps Deps) *Registry {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	r := &Registry{deps: deps, tools: map[string]Tool{}}
	for _, t := range []Tool{
		r.createLeadTool(),
		r.sendSMSTool(),
		r.escalateTool(),
		r.logCallSummaryTool(),
	} {
		r.order = append(r.order, t.Name)
		r.tools[t.Name] = t
	}
	return r
}

// Definitions lists the tools in registration order, for session configuration.
func (r *Registry) Definitions() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Dispatch runs the named tool. Unknown names and validation failures are
// errors local to this invocation; they never terminate the session.
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	t, ok := r.tools[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return t.Run(ctx, args)
}

type createLeadArgs struct {
	CallerPhone    string `json:"callerPhone"`
	CallerName     string `json:"callerName"`
	ServiceAddress string `json:"serviceAddress"`
	Issue          string `json:"issue"`
	PreferredTime  string `json:"preferredTime"`
	Notes          string `json:"notes"`
	Urgency        string `json:"urgency"`
}

func (r *Registry) createLeadTool() Tool {
	return Tool{
		Name:        NameCreateLead,
		Description: "Record a new service lead captured from the caller. Call this once the caller has shared enough detail to follow up on.",
		Parameters: objectSchema(map[string]any{
			"callerPhone":    stringProp("Caller's phone number"),
			"callerName":     stringProp("Caller's name"),
			"serviceAddress": stringProp("Address where service is needed"),
			"issue":          stringProp("Short description of the problem"),
			"preferredTime":  stringProp("When the caller wants service"),
			"notes":          stringProp("Anything else worth passing along"),
			"urgency": map[string]any{
				"type":        "string",
				"enum":        []string{"low", "normal", "emergency"},
				"description": "How urgent the problem is; defaults to normal",
			},
		}),
		Run: func(ctx context.Context, raw json.RawMessage) (Result, error) {
			var args createLeadArgs
			if err := unmarshalArgs(raw, &args); err != nil {
				return Result{}, err
			}
			urgency, err := leads.ParseUrgency(args.Urgency)
			if err != nil {
				return Result{}, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
			}

			lead := leads.Lead{
				ID:             r.deps.NewID(),
				CreatedAt:      r.deps.Clock().UTC(),
				BusinessName:   r.deps.BusinessName,
				CallerPhone:    args.CallerPhone,
				CallerName:     args.CallerName,
				ServiceAddress: args.ServiceAddress,
				Issue:          args.Issue,
				PreferredTime:  args.PreferredTime,
				Notes:          args.Notes,
				Urgency:        urgency,
				Source:         leads.Source,
			}
			// A lost lead must surface as a loud failure, never silent loss.
			if err := r.deps.Leads.Append(ctx, lead); err != nil {
				return Result{}, fmt.Errorf("tools: create_lead: %w", err)
			}
			return Result{Outcome: OutcomeOK, Confirmation: fmt.Sprintf("lead %s recorded", lead.ID)}, nil
		},
	}
}

type sendSMSArgs struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func (r *Registry) sendSMSTool() Tool {
	return Tool{
		Name:        NameSendSMS,
		Description: "Send a single text message to a phone number, for example a confirmation that the lead was received.",
		Parameters: objectSchema(map[string]any{
			"to":      stringProp("Destination phone number in E.164 format, e.g. +15551234567"),
			"message": stringProp("Message body, at most 480 characters"),
		}, "to", "message"),
		Run: func(ctx context.Context, raw json.RawMessage) (Result, error) {
			var args sendSMSArgs
			if err := unmarshalArgs(raw, &args); err != nil {
				return Result{}, err
			}
			// Validation precedes the attempt event: a malformed number
			// produces no event and no send.
			if !ValidE164(args.To) {
				return Result{}, fmt.Errorf("%w: destination must be E.164 (leading + and at least 10 digits), got %q", ErrInvalidArguments, args.To)
			}
			if args.Message == "" {
				return Result{}, fmt.Errorf("%w: message required", ErrInvalidArguments)
			}
			if len(args.Message) > maxMessageLen {
				return Result{}, fmt.Errorf("%w: message exceeds %d characters", ErrInvalidArguments, maxMessageLen)
			}

			if err := r.deps.Events.Append(events.TypeSMSAttempt, map[string]any{
				"to":      args.To,
				"preview": preview(args.Message),
			}); err != nil {
				return Result{}, fmt.Errorf("tools: send_sms_to_number: %w", err)
			}

			if r.deps.SMS == nil {
				return Result{Outcome: OutcomeSkipped, Confirmation: "sms skipped: messaging gateway not configured"}, nil
			}
			sid, err := r.deps.SMS.Send(ctx, args.To, args.Message+optOutSuffix)
			if err != nil {
				return Result{}, fmt.Errorf("tools: send_sms_to_number: %w", err)
			}
			return Result{Outcome: OutcomeOK, Confirmation: fmt.Sprintf("sms %s queued", sid)}, nil
		},
	}
}

type escalateArgs struct {
	CallerPhone    string `json:"callerPhone"`
	ServiceAddress string `json:"serviceAddress"`
	Issue          string `json:"issue"`
	Reason         string `json:"reason"`
}

func (r *Registry) escalateTool() Tool {
	return Tool{
		Name:        NameEscalate,
		Description: "Alert the on-call technician by text message. Use for emergencies like active leaks, no heat, or anything that cannot wait until morning.",
		Parameters: objectSchema(map[string]any{
			"callerPhone":    stringProp("Caller's phone number"),
			"serviceAddress": stringProp("Address where service is needed"),
			"issue":          stringProp("Short description of the emergency"),
			"reason":         stringProp("Why this needs the on-call technician now; defaults to emergency"),
		}),
		Run: func(ctx context.Context, raw json.RawMessage) (Result, error) {
			var args escalateArgs
			if err := unmarshalArgs(raw, &args); err != nil {
				return Result{}, err
			}
			if args.Reason == "" {
				args.Reason = defaultEscalationReason
			}

			payload := map[string]any{"reason": args.Reason}
			if args.CallerPhone != "" {
				payload["callerPhone"] = args.CallerPhone
			}
			if args.ServiceAddress != "" {
				payload["serviceAddress"] = args.ServiceAddress
			}
			if args.Issue != "" {
				payload["issue"] = args.Issue
			}
			if err := r.deps.Events.Append(events.TypeEscalation, payload); err != nil {
				return Result{}, fmt.Errorf("tools: escalate_to_oncall: %w", err)
			}

			if r.deps.SMS == nil {
				return Result{Outcome: OutcomeSkipped, Confirmation: "escalation logged; messaging gateway not configured"}, nil
			}
			sid, err := r.deps.SMS.Send(ctx, r.deps.OnCallNumber, r.escalationBody(args))
			if err != nil {
				return Result{}, fmt.Errorf("tools: escalate_to_oncall: %w", err)
			}
			return Result{Outcome: OutcomeOK, Confirmation: fmt.Sprintf("on-call alerted, sms %s", sid)}, nil
		},
	}
}

func (r *Registry) escalationBody(args escalateArgs) string {
	body := fmt.Sprintf("%s after-hours escalation (%s).", r.deps.BusinessName, args.Reason)
	if args.Issue != "" {
		body += " Issue: " + args.Issue + "."
	}
	if args.ServiceAddress != "" {
		body += " Address: " + args.ServiceAddress + "."
	}
	if args.CallerPhone != "" {
		body += " Caller: " + args.CallerPhone + "."
	}
	return body
}

type logCallSummaryArgs struct {
	Summary string `json:"summary"`
}

func (r *Registry) logCallSummaryTool() Tool {
	return Tool{
		Name:        NameLogCallSummary,
		Description: "Record a short written summary of the call before it ends.",
		Parameters: objectSchema(map[string]any{
			"summary": stringProp("Summary of the call, at most 2000 characters"),
		}, "summary"),
		Run: func(ctx context.Context, raw json.RawMessage) (Result, error) {
			var args logCallSummaryArgs
			if err := unmarshalArgs(raw, &args); err != nil {
				return Result{}, err
			}
			if args.Summary == "" {
				return Result{}, fmt.Errorf("%w: summary required", ErrInvalidArguments)
			}
			if len(args.Summary) > maxSummaryLen {
				return Result{}, fmt.Errorf("%w: summary exceeds %d characters", ErrInvalidArguments, maxSummaryLen)
			}
			if err := r.deps.Events.Append(events.TypeCallSummary, map[string]any{"summary": args.Summary}); err != nil {
				return Result{}, fmt.Errorf("tools: log_call_summary: %w", err)
			}
			return Result{Outcome: OutcomeOK, Confirmation: "call summary recorded"}, nil
		},
	}
}

// ValidE164 reports whether s looks like an E.164 number: leading plus, digits
// only, and at least 10 of them.
func ValidE164(s string) bool {
	if len(s) < 11 || s[0] != '+' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func preview(message string) string {
	if len(message) <= previewLen {
		return message
	}
	return message[:previewLen]
}

func unmarshalArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}
