package telephony

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newTestRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/voice", h.HandleInboundCall)
	r.GET("/media-stream", h.HandleMediaStream)
	r.GET("/healthz", h.HandleHealth)
	return r
}

func TestHandleInboundCall_UsesPublicHost(t *testing.T) {
	h := NewHandlers("afterhours-agent", "agent.example.com", nil)
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/voice", nil)
	req.Host = "internal:8080"
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Fatalf("expected xml content type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "wss://agent.example.com/media-stream") {
		t.Fatalf("expected public host in stream URL: %s", w.Body.String())
	}
}

func TestHandleInboundCall_FallsBackToRequestHost(t *testing.T) {
	h := NewHandlers("afterhours-agent", "", nil)
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/voice", nil)
	req.Host = "tunnel.example.net"
	r.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), "wss://tunnel.example.net/media-stream") {
		t.Fatalf("expected request host fallback: %s", w.Body.String())
	}
}

func TestHandleMediaStream_RejectsPlainHTTP(t *testing.T) {
	h := NewHandlers("afterhours-agent", "", nil)
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/media-stream", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-websocket request, got %d", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	h := NewHandlers("afterhours-agent", "", nil)
	h.Now = func() time.Time { return time.Unix(1700000000, 0) }
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		OK      bool   `json:"ok"`
		Service string `json:"service"`
		Time    string `json:"time"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !body.OK || body.Service != "afterhours-agent" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if _, err := time.Parse(time.RFC3339, body.Time); err != nil {
		t.Fatalf("time not RFC3339: %v", err)
	}
}
