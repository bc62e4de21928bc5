package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"webmail/api"
	"webmail/services"
)

func saveDraft(t *testing.T, ts *testServer, token, subject string) int64 {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/drafts", token, map[string]any{
		"recipient_email": "bob@other.test", "subject": subject, "body_html": "<p>draft</p>",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out api.SaveDraftResponse
	decode(t, rec, &out)
	require.NotZero(t, out.DraftID)
	return out.DraftID
}

func TestSendEmail_ClearsDraft(t *testing.T) {
	ts := newTestServer(t, 0)
	token := ts.login(t, "ann@mail.test")
	draftID := saveDraft(t, ts, token, "Hello")

	ts.relay.On("Send", mock.Anything, mock.MatchedBy(func(m services.OutboundMessage) bool {
		return m.From == "ann@mail.test" &&
			assert.ObjectsAreEqual([]string{"bob@other.test", "carol@other.test"}, m.To) &&
			m.PlainBody == "Hi there"
	})).Return(okRelay(), nil).Once()

	rec := ts.do(t, http.MethodPost, "/api/send-email", token, map[string]any{
		"to": "bob@other.test, Carol <carol@other.test>", "subject": "Hello",
		"bodyHtml": "<p>Hi there</p>", "draftIdToClear": fmt.Sprint(draftID),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out api.SendEmailResponse
	decode(t, rec, &out)
	assert.Equal(t, "Email sent and stored!", out.Message)
	assert.JSONEq(t, `{"status":"success","data":{"message_id":"abc"}}`, string(out.PostalResponse))
	require.NotNil(t, out.Email)
	assert.Equal(t, "Hello", out.Email.Subject)

	rec = ts.do(t, http.MethodGet, "/api/drafts", token, nil)
	assert.JSONEq(t, `[]`, rec.Body.String())

	var sent []api.EmailRow
	decode(t, ts.do(t, http.MethodGet, "/api/emails?type=sent", token, nil), &sent)
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"bob@other.test", "carol@other.test"}, sent[0].Recipients)
}

func TestSendEmail_RelayFailureKeepsDraft(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{
			name:       "rejected",
			err:        &services.Error{Kind: services.KindUpstream, Message: "Failed to send email via Postal.", Detail: json.RawMessage(`{"status":"error","data":{"code":"NoRecipients"}}`)},
			wantStatus: http.StatusInternalServerError,
			wantError:  `{"status":"error","data":{"code":"NoRecipients"}}`,
		},
		{
			name:       "unreachable",
			err:        &services.Error{Kind: services.KindUnreachable, Message: "Mail relay unreachable."},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "timeout",
			err:        &services.Error{Kind: services.KindTimeout, Message: "Mail relay timed out."},
			wantStatus: http.StatusGatewayTimeout,
		},
		{
			name:       "foreign error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, 0)
			token := ts.login(t, "ann@mail.test")
			draftID := saveDraft(t, ts, token, "Keep me")
			ts.relay.On("Send", mock.Anything, mock.Anything).Return(services.RelayResult{}, tt.err).Once()

			rec := ts.do(t, http.MethodPost, "/api/send-email", token, map[string]any{
				"to": "bob@other.test", "subject": "Keep me", "bodyHtml": "<p>x</p>", "draftIdToClear": draftID,
			})
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError != "" {
				var out struct {
					Error json.RawMessage `json:"error"`
				}
				decode(t, rec, &out)
				assert.JSONEq(t, tt.wantError, string(out.Error))
			}
			assert.NotContains(t, rec.Body.String(), "boom")

			var drafts []api.DraftRow
			decode(t, ts.do(t, http.MethodGet, "/api/drafts", token, nil), &drafts)
			require.Len(t, drafts, 1)
			assert.Equal(t, draftID, drafts[0].ID)
		})
	}
}

func TestSendEmail_Multipart(t *testing.T) {
	ts := newTestServer(t, 0)
	token := ts.login(t, "ann@mail.test")

	ts.relay.On("Send", mock.Anything, mock.MatchedBy(func(m services.OutboundMessage) bool {
		return len(m.Attachments) == 2 &&
			m.Attachments[0].Filename == "report.pdf" &&
			m.Attachments[0].ContentType == "application/pdf" &&
			string(m.Attachments[1].Content) == "a,b\n" &&
			m.HTMLBody == "<p>files</p>"
	})).Return(okRelay(), nil).Once()

	rec := ts.postMultipart(t, "/api/send-email", token,
		map[string]string{"to": "bob@other.test", "subject": "Files", "bodyHtml": "<p>files</p>", "draftIdToClear": "null"},
		formFile{field: "attachments", name: "report.pdf", contentType: "application/pdf", content: []byte("%PDF-1.4")},
		formFile{field: "attachments", name: "data.csv", contentType: "text/csv", content: []byte("a,b\n")},
	)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSendEmail_Validation(t *testing.T) {
	ts := newTestServer(t, 0)
	token := ts.login(t, "ann@mail.test")

	rec := ts.do(t, http.MethodPost, "/api/send-email", token, map[string]any{"to": "bob@other.test", "subject": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "To, Subject, and Body are required.", message(t, rec))

	rec = ts.do(t, http.MethodPost, "/api/send-email", token, map[string]any{"to": "not an address", "subject": "x", "bodyHtml": "y"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(message(t, rec), "Invalid recipient address"))

	rec = ts.postMultipart(t, "/api/send-email", token, map[string]string{"to": "bob@other.test", "subject": "x", "bodyHtml": "y", "draftIdToClear": "abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendEmail_Unconfigured(t *testing.T) {
	ts := newTestServer(t, 0)
	token := ts.login(t, "ann@mail.test")
	ts.relay.On("Send", mock.Anything, mock.Anything).
		Return(services.RelayResult{}, &services.Error{Kind: services.KindUnconfigured, Message: "Postal service not configured."}).Once()

	rec := ts.do(t, http.MethodPost, "/api/send-email", token, map[string]any{"to": "bob@other.test", "subject": "x", "bodyHtml": "y"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Postal service not configured.", message(t, rec))
}

func TestSendEmail_Scheduled(t *testing.T) {
	ts := newTestServer(t, 0)
	token := ts.login(t, "ann@mail.test")
	draftID := saveDraft(t, ts, token, "Later")

	rec := ts.do(t, http.MethodPost, "/api/send-email", token, map[string]any{
		"to": "bob@other.test", "subject": "Later", "bodyHtml": "<p>later</p>",
		"scheduledAt": "2099-01-01T10:00", "draftIdToClear": draftID,
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var out api.SendEmailResponse
	decode(t, rec, &out)
	require.NotNil(t, out.Scheduled)
	assert.Equal(t, "pending", out.Scheduled.Status)
	assert.Equal(t, 2099, out.Scheduled.ScheduledAt.Year())

	assert.JSONEq(t, `[]`, ts.do(t, http.MethodGet, "/api/drafts", token, nil).Body.String())

	var rows []api.ScheduledRow
	decode(t, ts.do(t, http.MethodGet, "/api/scheduled", token, nil), &rows)
	require.Len(t, rows, 1)

	path := fmt.Sprintf("/api/scheduled/%d", rows[0].ID)
	rec = ts.do(t, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Scheduled email not found", message(t, rec))
}

func TestListEmails_InvalidType(t *testing.T) {
	ts := newTestServer(t, 0)
	token := ts.login(t, "ann@mail.test")

	for _, q := range []string{"", "?type=draft", "?type=spam"} {
		rec := ts.do(t, http.MethodGet, "/api/emails"+q, token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Equal(t, `Invalid email type specified. Use "sent" or "inbox".`, message(t, rec))
	}
}

func TestDailyLimit(t *testing.T) {
	ts := newTestServer(t, 3)
	token := ts.login(t, "ann@mail.test")
	ts.relay.On("Send", mock.Anything, mock.Anything).Return(okRelay(), nil).Once()

	rec := ts.do(t, http.MethodPost, "/api/send-email", token, map[string]any{"to": "a@o.test, b@o.test", "subject": "x", "bodyHtml": "y"})
	require.Equal(t, http.StatusOK, rec.Code)

	var quota api.QuotaResponse
	decode(t, ts.do(t, http.MethodGet, "/api/limit", token, nil), &quota)
	assert.Equal(t, api.QuotaResponse{CurrentCount: 2, Limit: 3, Remaining: 1}, quota)

	rec = ts.do(t, http.MethodPost, "/api/send-email", token, map[string]any{"to": "c@o.test, d@o.test", "subject": "x", "bodyHtml": "y"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Daily mail limit exceeded.", message(t, rec))
}

func TestInboundWebhook(t *testing.T) {
	ts := newTestServer(t, 0)
	token := ts.login(t, "ann@mail.test")

	post := func(path, contentType, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := post("/webhooks/postal/inbound", "application/json",
		`{"message":{"to":{"email":"Ann@mail.test"},"from":{"email":"x@else.test"},"subject":"Hi","html_body":"<p>Hello <b>Ann</b></p>"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Inbound email received and stored.", message(t, rec))

	raw := "From: y@else.test\r\nTo: ann@mail.test\r\nSubject: Raw\r\nContent-Type: text/plain\r\n\r\nplain body\r\n"
	rec = post("/api/webhooks/postal/inbound", "message/rfc822", raw)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var inbox []api.EmailRow
	decode(t, ts.do(t, http.MethodGet, "/api/emails?type=inbox", token, nil), &inbox)
	require.Len(t, inbox, 2)
	subjects := []string{inbox[0].Subject, inbox[1].Subject}
	assert.ElementsMatch(t, []string{"Hi", "Raw"}, subjects)
	for _, e := range inbox {
		if e.Subject == "Hi" {
			assert.Equal(t, "Hello Ann", e.PlainBody)
			assert.Equal(t, "primary", e.Category)
		}
	}

	rec = post("/webhooks/postal/inbound", "application/json", `{"rcpt_to":"ghost@mail.test","mail_from":"x@else.test","subject":"?"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Recipient user not found, email not stored (expected behavior for unknown users).", message(t, rec))

	rec = post("/webhooks/postal/inbound", "application/json", `{"hello":"world"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No message data found in webhook body.", message(t, rec))

	rec = post("/webhooks/postal/inbound", "image/png", "\x89PNG")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
