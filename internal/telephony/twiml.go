package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
)

// Minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency.
//
// Only include primitives we need at the adapter boundary.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

type twimlConnect struct {
	XMLName xml.Name    `xml:"Connect"`
	Stream  twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL string `xml:"url,attr"`
}

const (
	disclosureLine = "This call may be recorded for quality and dispatch purposes."
	promptLine     = "One moment while I connect you with our after-hours assistant."
)

// RenderInboundTwiML builds the answer document for an inbound call: spoken
// disclosure, spoken prompt, then a directive opening the media stream back to
// this process.
func RenderInboundTwiML(host string) (string, error) {
	if host == "" {
		return "", errors.New("telephony: host required for media stream URL")
	}

	r := twimlResponse{Verbs: []any{
		twimlSay{Text: disclosureLine},
		twimlSay{Text: promptLine},
		twimlPause{Length: 1},
		twimlConnect{Stream: twimlStream{URL: fmt.Sprintf("wss://%s/media-stream", host)}},
	}}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
