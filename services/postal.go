package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxRelayResponse = 1 << 20

// PostalRelay sends mail through Postal's HTTP send API.
type PostalRelay struct {
	url    string
	apiKey string
	client *http.Client
}

// NewPostalRelay returns a relay posting to apiURL with the given server API key.
// A zero timeout falls back to 15 seconds.
func NewPostalRelay(apiURL, apiKey string, timeout time.Duration) *PostalRelay {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PostalRelay{
		url:    apiURL,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

type postalAttachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	MimeType string `json:"mimetype"`
}

type postalMessage struct {
	To          []string           `json:"to"`
	From        string             `json:"from"`
	Subject     string             `json:"subject"`
	HTMLBody    string             `json:"html_body"`
	PlainBody   string             `json:"plain_body,omitempty"`
	Attachments []postalAttachment `json:"attachments"`
}

// Send posts msg to Postal. Postal answers 200 even for rejected messages,
// so the body's status field is checked as well as the HTTP status.
func (p *PostalRelay) Send(ctx context.Context, msg OutboundMessage) (RelayResult, error) {
	if p == nil || p.url == "" || p.apiKey == "" {
		return RelayResult{}, unconfiguredError()
	}

	payload := postalMessage{
		To:          msg.To,
		From:        msg.From,
		Subject:     msg.Subject,
		HTMLBody:    msg.HTMLBody,
		PlainBody:   msg.PlainBody,
		Attachments: make([]postalAttachment, 0, len(msg.Attachments)),
	}
	for _, a := range msg.Attachments {
		payload.Attachments = append(payload.Attachments, postalAttachment{
			Filename: a.Filename,
			Content:  base64.StdEncoding.EncodeToString(a.Content),
			Encoding: "base64",
			MimeType: a.ContentType,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return RelayResult{}, internalError("Failed to encode message", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return RelayResult{}, newError(KindUnconfigured, "Postal service not configured.", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Server-API-Key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return RelayResult{}, transportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxRelayResponse))
	if err != nil {
		return RelayResult{}, transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return RelayResult{}, rejectedError(respBody, fmt.Errorf("postal returned HTTP %d", resp.StatusCode))
	}

	var status struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &status); err != nil {
		return RelayResult{}, rejectedError(respBody, fmt.Errorf("decoding postal response: %w", err))
	}
	if status.Status != "" && status.Status != "success" {
		return RelayResult{}, rejectedError(respBody, fmt.Errorf("postal status %q", status.Status))
	}

	return RelayResult{Response: json.RawMessage(respBody)}, nil
}
