package config

import "testing"

func validConfig() Config {
	return Config{
		App:      AppConfig{Env: "local", Port: 8080},
		Business: BusinessConfig{Name: "Ace Plumbing", OnCallNumber: "+15551234567"},
		Realtime: RealtimeConfig{APIKey: "sk-test", Model: defaultModel, Voice: defaultVoice},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_AcceptsMinimalConfig(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_OnCallNumberMustBeE164(t *testing.T) {
	c := validConfig()
	c.Business.OnCallNumber = "5551234567"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for non-E.164 on-call number")
	}
}

func TestValidate_PartialTwilioTrioRejected(t *testing.T) {
	c := validConfig()
	c.Twilio = TwilioConfig{AccountSID: "AC123"}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for partial twilio credentials")
	}
}

func TestValidate_FullTwilioTrioAccepted(t *testing.T) {
	c := validConfig()
	c.Twilio = TwilioConfig{AccountSID: "AC123", AuthToken: "tok", FromNumber: "+15557654321"}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !c.Twilio.Configured() {
		t.Fatalf("expected twilio configured")
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	for _, key := range []string{
		"APP_ENV", "BUSINESS_NAME", "PUBLIC_HOST",
		"REALTIME_MODEL", "REALTIME_VOICE",
		"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM_NUMBER",
		"LEADS_FILE", "EVENTS_FILE", "DATABASE_URL",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("PORT", "5050")
	t.Setenv("ONCALL_PHONE_NUMBER", "+15551234567")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	c, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.App.Env != "local" {
		t.Fatalf("expected default env local, got %q", c.App.Env)
	}
	if c.Business.Name != defaultBusinessName {
		t.Fatalf("expected default business name, got %q", c.Business.Name)
	}
	if c.Realtime.Model != defaultModel || c.Realtime.Voice != defaultVoice {
		t.Fatalf("expected realtime defaults, got %q %q", c.Realtime.Model, c.Realtime.Voice)
	}
	if c.Storage.LeadsPath != defaultLeadsPath || c.Storage.EventsPath != defaultEventsPath {
		t.Fatalf("unexpected storage defaults: %q %q", c.Storage.LeadsPath, c.Storage.EventsPath)
	}
	if c.Twilio.Configured() {
		t.Fatalf("expected twilio unconfigured")
	}
	if c.HTTPAddr() != ":5050" {
		t.Fatalf("unexpected addr %q", c.HTTPAddr())
	}
}

func TestLoad_FailsWithoutPort(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ONCALL_PHONE_NUMBER", "+15551234567")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing PORT")
	}
}
