package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"webmail/auth"
	"webmail/database/dbtest"
	"webmail/services"
	"webmail/utils"
)

type mockRelay struct {
	mock.Mock
}

func (m *mockRelay) Send(ctx context.Context, msg services.OutboundMessage) (services.RelayResult, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(services.RelayResult), args.Error(1)
}

type testServer struct {
	store   *dbtest.MemStore
	relay   *mockRelay
	tokens  *auth.Manager
	handler http.Handler
	uploads string
}

func newTestServer(t *testing.T, dailyLimit int) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := dbtest.New()
	relay := &mockRelay{}
	tokens, err := auth.NewManager("test-secret", time.Hour)
	require.NoError(t, err)
	uploads := t.TempDir()

	ts := &testServer{
		store:   store,
		relay:   relay,
		tokens:  tokens,
		uploads: uploads,
		handler: NewRouter(Deps{
			Accounts:  services.NewAccountService(store, tokens, "mail.test", uploads, logger),
			Mail:      services.NewMailService(store, relay, utils.NewSendQuota(dailyLimit, store), logger),
			Tokens:    tokens,
			DB:        store,
			UploadDir: uploads,
			Logger:    logger,
		}),
	}
	t.Cleanup(func() { relay.AssertExpectations(t) })
	return ts
}

// do sends body as JSON (or raw when it is already []byte).
func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		rdr = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

// login registers email and returns an access token for it.
func (ts *testServer) login(t *testing.T, email string) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/register", "", map[string]string{
		"name": "Test", "email": email, "password": "pw", "confirmPassword": "pw",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/login", "", map[string]string{"email": email, "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	decode(t, rec, &out)
	return out.AccessToken
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out struct {
		Message string `json:"message"`
	}
	decode(t, rec, &out)
	return out.Message
}

type formFile struct {
	field, name, contentType string
	content                  []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...formFile) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.name+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (ts *testServer) postMultipart(t *testing.T, path, token string, fields map[string]string, files ...formFile) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, fields, files...)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func okRelay() services.RelayResult {
	return services.RelayResult{Response: []byte(`{"status":"success","data":{"message_id":"abc"}}`)}
}
