package leads

import (
	"fmt"
	"time"
)

// Source tags the intake channel on every captured lead.
const Source = "after-hours-line"

type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyNormal    Urgency = "normal"
	UrgencyEmergency Urgency = "emergency"
)

// ParseUrgency maps conversation-supplied urgency to the closed set.
// Empty means unspecified and defaults to normal; anything else unknown is an
// error rather than a silent coercion.
func ParseUrgency(s string) (Urgency, error) {
	switch Urgency(s) {
	case "":
		return UrgencyNormal, nil
	case UrgencyLow, UrgencyNormal, UrgencyEmergency:
		return Urgency(s), nil
	default:
		return "", fmt.Errorf("leads: urgency must be one of low, normal, emergency, got %q", s)
	}
}

// Lead is one captured intake. Immutable once written; stores are append-only
// and no update or delete path exists.
type Lead struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	BusinessName string    `json:"businessName"`

	CallerPhone    string `json:"callerPhone,omitempty"`
	CallerName     string `json:"callerName,omitempty"`
	ServiceAddress string `json:"serviceAddress,omitempty"`
	Issue          string `json:"issue,omitempty"`
	PreferredTime  string `json:"preferredTime,omitempty"`
	Notes          string `json:"notes,omitempty"`

	Urgency Urgency `json:"urgency"`
	Source  string  `json:"source"`
}
