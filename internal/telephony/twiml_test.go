package telephony

import (
	"strings"
	"testing"
)

func TestRenderInboundTwiML(t *testing.T) {
	out, err := RenderInboundTwiML("agent.example.com")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if !strings.Contains(out, disclosureLine) {
		t.Fatalf("missing disclosure: %s", out)
	}
	if !strings.Contains(out, promptLine) {
		t.Fatalf("missing prompt: %s", out)
	}
	if !strings.Contains(out, `url="wss://agent.example.com/media-stream"`) {
		t.Fatalf("missing stream directive: %s", out)
	}

	// Disclosure is spoken before the stream opens.
	if strings.Index(out, disclosureLine) > strings.Index(out, "<Connect>") {
		t.Fatalf("disclosure must precede the connect directive: %s", out)
	}
}

func TestRenderInboundTwiML_RequiresHost(t *testing.T) {
	if _, err := RenderInboundTwiML(""); err == nil {
		t.Fatalf("expected error for empty host")
	}
}
