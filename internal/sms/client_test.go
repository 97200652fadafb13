package sms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		AccountSID: "AC123",
		AuthToken:  "secret",
		FromNumber: "+15550000000",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestSend_PostsFormAndReturnsSID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Accounts/AC123/Messages.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			t.Errorf("missing or wrong basic auth")
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostFormValue("To") != "+15551234567" {
			t.Errorf("unexpected To %q", r.PostFormValue("To"))
		}
		if r.PostFormValue("From") != "+15550000000" {
			t.Errorf("unexpected From %q", r.PostFormValue("From"))
		}
		if r.PostFormValue("Body") != "water heater out" {
			t.Errorf("unexpected Body %q", r.PostFormValue("Body"))
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM42","status":"queued"}`))
	})

	sid, err := c.Send(context.Background(), "+15551234567", "water heater out")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if sid != "SM42" {
		t.Fatalf("expected SM42, got %q", sid)
	}
}

func TestSend_SurfacesProviderError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`))
	})

	if _, err := c.Send(context.Background(), "+1555", "hi"); err == nil {
		t.Fatalf("expected provider error")
	}
}

func TestNew_RequiresFullCredentials(t *testing.T) {
	if _, err := New(Config{AccountSID: "AC123"}); err == nil {
		t.Fatalf("expected error for partial credentials")
	}
}
