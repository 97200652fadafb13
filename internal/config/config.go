package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration required by the answering-service process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	Business BusinessConfig
	Realtime RealtimeConfig
	Twilio   TwilioConfig
	Storage  StorageConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type BusinessConfig struct {
	// Name is the display name the agent answers with.
	Name string

	// OnCallNumber receives escalation texts. Must be E.164.
	OnCallNumber string

	// PublicHost is the externally reachable hostname used to build the
	// media-stream URL. When empty, the inbound request's Host header is used.
	PublicHost string
}

type RealtimeConfig struct {
	APIKey string
	Model  string
	Voice  string
}

// TwilioConfig carries messaging-gateway credentials. The trio is optional as
// a unit: when absent, send tools degrade to a skipped result instead of
// failing the call.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

type StorageConfig struct {
	LeadsPath  string
	EventsPath string

	// DatabaseURL is optional; when set, leads are written to Postgres
	// instead of the NDJSON file.
	DatabaseURL string
}

const (
	defaultBusinessName = "After Hours Service"
	defaultModel        = "gpt-4o-realtime-preview-2024-10-01"
	defaultVoice        = "alloy"
	defaultLeadsPath    = "leads.ndjson"
	defaultEventsPath   = "events.ndjson"
)

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	if c.App.Env == "" {
		c.App.Env = "local"
	}
	port, err := mustInt("PORT")
	if err != nil {
		parseErrs = append(parseErrs, err)
	}
	c.App.Port = port

	c.Business.Name = strings.TrimSpace(os.Getenv("BUSINESS_NAME"))
	if c.Business.Name == "" {
		c.Business.Name = defaultBusinessName
	}
	c.Business.OnCallNumber = strings.TrimSpace(os.Getenv("ONCALL_PHONE_NUMBER"))
	c.Business.PublicHost = strings.TrimSpace(os.Getenv("PUBLIC_HOST"))

	c.Realtime.APIKey = os.Getenv("OPENAI_API_KEY")
	c.Realtime.Model = strings.TrimSpace(os.Getenv("REALTIME_MODEL"))
	if c.Realtime.Model == "" {
		c.Realtime.Model = defaultModel
	}
	c.Realtime.Voice = strings.TrimSpace(os.Getenv("REALTIME_VOICE"))
	if c.Realtime.Voice == "" {
		c.Realtime.Voice = defaultVoice
	}

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.FromNumber = strings.TrimSpace(os.Getenv("TWILIO_FROM_NUMBER"))

	c.Storage.LeadsPath = strings.TrimSpace(os.Getenv("LEADS_FILE"))
	if c.Storage.LeadsPath == "" {
		c.Storage.LeadsPath = defaultLeadsPath
	}
	c.Storage.EventsPath = strings.TrimSpace(os.Getenv("EVENTS_FILE"))
	if c.Storage.EventsPath == "" {
		c.Storage.EventsPath = defaultEventsPath
	}
	c.Storage.DatabaseURL = os.Getenv("DATABASE_URL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error

	if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be a valid port, got %d", c.App.Port))
	}

	if c.Business.OnCallNumber == "" {
		errs = append(errs, errors.New("ONCALL_PHONE_NUMBER is required"))
	} else if !isE164(c.Business.OnCallNumber) {
		errs = append(errs, fmt.Errorf("ONCALL_PHONE_NUMBER must be E.164, got %q", c.Business.OnCallNumber))
	}

	if c.Realtime.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}

	// Messaging credentials are all-or-nothing; a partial trio is a
	// misconfiguration, not graceful degradation.
	if c.Twilio.Partial() {
		errs = append(errs, errors.New("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER must be set together"))
	}
	if c.Twilio.Configured() && !isE164(c.Twilio.FromNumber) {
		errs = append(errs, fmt.Errorf("TWILIO_FROM_NUMBER must be E.164, got %q", c.Twilio.FromNumber))
	}

	return joinErrors(errs)
}

func (c TwilioConfig) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

func (c TwilioConfig) Partial() bool {
	some := c.AccountSID != "" || c.AuthToken != "" || c.FromNumber != ""
	return some && !c.Configured()
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

// isE164 mirrors the tool-level phone validation: leading plus, digits only,
// and enough of them to be routable.
func isE164(s string) bool {
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

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
