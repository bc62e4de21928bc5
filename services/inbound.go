package services

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

func init() {
	message.CharsetReader = charsetReader
}

// charsetReader decodes non UTF-8 bodies and headers of inbound mail.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(strings.ToLower(charset))
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unhandled charset %q", charset)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// ErrUnparseableWebhook is wrapped by every ParseInbound failure.
var ErrUnparseableWebhook = errors.New("unparseable inbound payload")

// InboundMessage is an email delivered to us by the relay.
type InboundMessage struct {
	To        string
	From      string
	Subject   string
	PlainBody string
	HTMLBody  string
}

// webhookAddress accepts both "a@b" and {"email": "a@b"}.
type webhookAddress string

func (a *webhookAddress) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = webhookAddress(s)
		return nil
	}
	var obj struct {
		Email   string `json:"email"`
		Address string `json:"address"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj.Email != "" {
		*a = webhookAddress(obj.Email)
	} else {
		*a = webhookAddress(obj.Address)
	}
	return nil
}

type webhookMessage struct {
	To        webhookAddress `json:"to"`
	From      webhookAddress `json:"from"`
	Subject   string         `json:"subject"`
	PlainBody string         `json:"plain_body"`
	HTMLBody  string         `json:"html_body"`
}

type webhookPayload struct {
	Message   json.RawMessage `json:"message"`
	RcptTo    string          `json:"rcpt_to"`
	MailFrom  string          `json:"mail_from"`
	Base64    bool            `json:"base64"`
	Subject   string          `json:"subject"`
	PlainBody string          `json:"plain_body"`
	HTMLBody  string          `json:"html_body"`
}

// ParseInbound decodes a relay webhook body. Three shapes are accepted: a
// JSON object with a nested "message" object, Postal's raw-message JSON
// (rcpt_to plus a base64 "message" string) and a bare RFC 822 message.
func ParseInbound(contentType string, body []byte) (*InboundMessage, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrUnparseableWebhook)
	}

	if mediaType == "application/json" || (mediaType == "" && trimmed[0] == '{') {
		return parseWebhookJSON(trimmed)
	}
	if mediaType == "message/rfc822" || mediaType == "text/plain" || mediaType == "" {
		msg, err := parseRawMessage(body)
		if err != nil {
			return nil, err
		}
		return requireRecipient(msg)
	}
	return nil, fmt.Errorf("%w: unsupported content type %q", ErrUnparseableWebhook, mediaType)
}

func parseWebhookJSON(body []byte) (*InboundMessage, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableWebhook, err)
	}

	raw := bytes.TrimSpace(p.Message)
	switch {
	case len(raw) > 0 && raw[0] == '{':
		var m webhookMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnparseableWebhook, err)
		}
		return requireRecipient(&InboundMessage{
			To:        string(m.To),
			From:      string(m.From),
			Subject:   m.Subject,
			PlainBody: m.PlainBody,
			HTMLBody:  m.HTMLBody,
		})

	case len(raw) > 0 && raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnparseableWebhook, err)
		}
		data := []byte(s)
		if p.Base64 {
			decoded, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("%w: decoding raw message: %v", ErrUnparseableWebhook, err)
			}
			data = decoded
		}
		msg, err := parseRawMessage(data)
		if err != nil {
			return nil, err
		}
		if p.RcptTo != "" {
			msg.To = p.RcptTo
		}
		if msg.From == "" {
			msg.From = p.MailFrom
		}
		return requireRecipient(msg)

	case p.RcptTo != "":
		return requireRecipient(&InboundMessage{
			To:        p.RcptTo,
			From:      p.MailFrom,
			Subject:   p.Subject,
			PlainBody: p.PlainBody,
			HTMLBody:  p.HTMLBody,
		})
	}
	return nil, fmt.Errorf("%w: no message data found", ErrUnparseableWebhook)
}

func requireRecipient(m *InboundMessage) (*InboundMessage, error) {
	m.To = strings.ToLower(strings.TrimSpace(m.To))
	m.From = strings.TrimSpace(m.From)
	if m.To == "" {
		return nil, fmt.Errorf("%w: no recipient", ErrUnparseableWebhook)
	}
	return m, nil
}

// parseRawMessage extracts addresses, subject and the text/html bodies of an
// RFC 822 message. Attachments are skipped.
func parseRawMessage(raw []byte) (*InboundMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableWebhook, err)
	}
	if mr == nil {
		return nil, fmt.Errorf("%w: unreadable message", ErrUnparseableWebhook)
	}
	defer mr.Close()

	msg := &InboundMessage{}
	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = from[0].Address
	}
	if to, err := mr.Header.AddressList("To"); err == nil && len(to) > 0 {
		msg.To = to[0].Address
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrUnparseableWebhook, err)
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		mediaType, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch {
		case mediaType == "text/html":
			msg.HTMLBody = joinPart(msg.HTMLBody, string(body))
		case mediaType == "text/plain" || mediaType == "":
			msg.PlainBody = joinPart(msg.PlainBody, string(body))
		}
	}
	return msg, nil
}

func joinPart(existing, next string) string {
	if existing == "" {
		return next
	}
	return existing + "\n" + next
}
