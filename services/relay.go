package services

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
)

// Attachment is a file sent along with an outbound message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// OutboundMessage is what gets handed to a relay.
type OutboundMessage struct {
	From        string
	To          []string
	Subject     string
	HTMLBody    string
	PlainBody   string
	Attachments []Attachment
}

// RelayResult carries the relay's own response, passed back to the caller verbatim.
type RelayResult struct {
	Response json.RawMessage
}

// Relay delivers outbound mail through an external service.
type Relay interface {
	Send(ctx context.Context, msg OutboundMessage) (RelayResult, error)
}

// ErrRelayNotConfigured is wrapped by the error returned when no relay is set up.
var ErrRelayNotConfigured = errors.New("relay not configured")

func unconfiguredError() *Error {
	return newError(KindUnconfigured, "Postal service not configured.", ErrRelayNotConfigured)
}

// transportError classifies a failure to reach the relay at all.
func transportError(err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return newError(KindTimeout, "Mail relay timed out.", err)
	}
	return newError(KindUnreachable, "Mail relay unreachable.", err)
}

// rejectedError wraps a relay rejection and surfaces its body.
func rejectedError(body []byte, err error) *Error {
	e := newError(KindUpstream, "Failed to send email via Postal.", err)
	trimmed := strings.TrimSpace(string(body))
	switch {
	case trimmed == "":
	case json.Valid([]byte(trimmed)):
		e.Detail = json.RawMessage(trimmed)
	default:
		e.Detail = trimmed
	}
	return e
}
