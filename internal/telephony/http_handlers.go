package telephony

import (
	"net/http"
	"time"

	"afterhours-agent/internal/bridge"
	"afterhours-agent/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handlers exposes the telephony-facing HTTP surface: the inbound call
// webhook, the media-stream websocket, and health. No business logic here;
// calls are handed straight to the bridge.
type Handlers struct {
	ServiceName string

	// PublicHost addresses the media-stream directive; when empty the
	// inbound request's own Host header is used.
	PublicHost string

	Bridge *bridge.Bridge

	Now func() time.Time

	upgrader websocket.Upgrader
}

func NewHandlers(serviceName, publicHost string, b *bridge.Bridge) *Handlers {
	return &Handlers{
		ServiceName: serviceName,
		PublicHost:  publicHost,
		Bridge:      b,
		Now:         time.Now,
		// Twilio's media stream connects without a browser Origin.
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// HandleInboundCall answers the provider's call-start webhook with TwiML that
// opens a media stream back to this process.
func (h *Handlers) HandleInboundCall(c *gin.Context) {
	log := logger.FromGin(c)

	host := h.PublicHost
	if host == "" {
		host = c.Request.Host
	}

	twiml, err := RenderInboundTwiML(host)
	if err != nil {
		log.Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}

	log.Info("inbound call answered", "host", host)
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
}

// HandleMediaStream upgrades the provider's media connection and runs one
// call session on it. Blocks for the duration of the call.
func (h *Handlers) HandleMediaStream(c *gin.Context) {
	log := logger.FromGin(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("media stream upgrade failed", "err", err)
		return
	}

	log.Info("media stream accepted", "remote", c.Request.RemoteAddr)
	h.Bridge.HandleStream(conn)
}

func (h *Handlers) HandleHealth(c *gin.Context) {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"service": h.ServiceName,
		"time":    now().UTC().Format(time.RFC3339),
	})
}
