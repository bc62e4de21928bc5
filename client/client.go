// Package client is a typed HTTP client for the webmail API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"webmail/api"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
	Detail  json.RawMessage
}

func (e *APIError) Error() string {
	if len(e.Detail) > 0 {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Message, e.Detail)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

// Client talks to one server as one user. It is safe for concurrent use
// once the token is set.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the bearer token in use, empty before Login.
func (c *Client) Token() string {
	return c.token
}

// ListOptions pages a list request. Zero values use the server defaults.
type ListOptions struct {
	Page  int
	Limit int
}

func (o ListOptions) query(q url.Values) url.Values {
	if q == nil {
		q = url.Values{}
	}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	return q
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// doJSON sends in as JSON (when non-nil) and decodes the answer into out
// (when non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, q url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := c.newRequest(ctx, method, path, q, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var body struct {
			Message string          `json:"message"`
			Error   json.RawMessage `json:"error"`
		}
		if json.Unmarshal(raw, &body) == nil && body.Message != "" {
			apiErr.Message = body.Message
			apiErr.Detail = body.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) Register(ctx context.Context, req api.RegisterRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/register", nil, req, nil)
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out api.LoginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/login", nil, api.LoginRequest{Email: email, Password: password}, &out); err != nil {
		return "", err
	}
	c.token = out.AccessToken
	return out.AccessToken, nil
}

func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	return c.doJSON(ctx, http.MethodPost, "/change-password", nil,
		api.ChangePasswordRequest{OldPassword: oldPassword, NewPassword: newPassword}, nil)
}

// Attachment is a file uploaded with Send.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// SendInput is one compose submission.
type SendInput struct {
	To             string
	Subject        string
	BodyHTML       string
	ScheduledAt    string
	DraftIDToClear int64
	Attachments    []Attachment
}

// Send posts the compose form as multipart, the way the web client does.
func (c *Client) Send(ctx context.Context, in SendInput) (*api.SendEmailResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := [][2]string{{"to", in.To}, {"subject", in.Subject}, {"bodyHtml", in.BodyHTML}}
	if in.ScheduledAt != "" {
		fields = append(fields, [2]string{"scheduledAt", in.ScheduledAt})
	}
	if in.DraftIDToClear != 0 {
		fields = append(fields, [2]string{"draftIdToClear", strconv.FormatInt(in.DraftIDToClear, 10)})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	for _, a := range in.Attachments {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="attachments"; filename=%q`, a.Filename))
		if a.ContentType != "" {
			h.Set("Content-Type", a.ContentType)
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(a.Content); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/send-email", nil, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out api.SendEmailResponse
	if err := c.send(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Emails lists the inbox or sent folder.
func (c *Client) Emails(ctx context.Context, folder string, opts ListOptions) ([]api.EmailRow, error) {
	var out []api.EmailRow
	err := c.doJSON(ctx, http.MethodGet, "/api/emails", opts.query(url.Values{"type": {folder}}), nil, &out)
	return out, err
}

func (c *Client) Limit(ctx context.Context) (*api.QuotaResponse, error) {
	var out api.QuotaResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/limit", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveDraft creates (ID 0) or updates a draft and returns its id.
func (c *Client) SaveDraft(ctx context.Context, d api.SaveDraftRequest) (int64, error) {
	var out api.SaveDraftResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/drafts", nil, d, &out); err != nil {
		return 0, err
	}
	return out.DraftID, nil
}

func (c *Client) Drafts(ctx context.Context, opts ListOptions) ([]api.DraftRow, error) {
	var out []api.DraftRow
	err := c.doJSON(ctx, http.MethodGet, "/api/drafts", opts.query(nil), nil, &out)
	return out, err
}

func (c *Client) Trash(ctx context.Context, opts ListOptions) ([]api.FolderItem, error) {
	var out []api.FolderItem
	err := c.doJSON(ctx, http.MethodGet, "/api/trash", opts.query(nil), nil, &out)
	return out, err
}

func (c *Client) Starred(ctx context.Context, opts ListOptions) ([]api.FolderItem, error) {
	var out []api.FolderItem
	err := c.doJSON(ctx, http.MethodGet, "/api/starred", opts.query(nil), nil, &out)
	return out, err
}

func (c *Client) Scheduled(ctx context.Context, opts ListOptions) ([]api.ScheduledRow, error) {
	var out []api.ScheduledRow
	err := c.doJSON(ctx, http.MethodGet, "/api/scheduled", opts.query(nil), nil, &out)
	return out, err
}

func (c *Client) flags(ctx context.Context, method, path string, q url.Values, in any) (api.FlagsResponse, error) {
	var out api.FlagsResponse
	err := c.doJSON(ctx, method, path, q, in, &out)
	return out, err
}

func (c *Client) TrashDraft(ctx context.Context, id int64) (api.FlagsResponse, error) {
	return c.flags(ctx, http.MethodPost, "/api/trash/draft", nil, api.DraftRef{DraftID: api.ID(id)})
}

func (c *Client) TrashEmail(ctx context.Context, id int64, folder string) (api.FlagsResponse, error) {
	return c.flags(ctx, http.MethodPost, "/api/trash/email", nil, api.TrashEmailRequest{EmailID: api.ID(id), EmailType: folder})
}

func (c *Client) RestoreDraft(ctx context.Context, id int64) (api.FlagsResponse, error) {
	return c.flags(ctx, http.MethodPost, "/api/trash/restore/draft", nil, api.DraftRef{DraftID: api.ID(id)})
}

func (c *Client) RestoreEmail(ctx context.Context, id int64, folder string) (api.FlagsResponse, error) {
	return c.flags(ctx, http.MethodPost, "/api/trash/restore/email", nil, api.RestoreEmailRequest{EmailID: api.ID(id), OriginalFolder: folder})
}

func (c *Client) DeleteDraft(ctx context.Context, id int64) error {
	_, err := c.flags(ctx, http.MethodDelete, fmt.Sprintf("/api/trash/drafts/%d", id), nil, nil)
	return err
}

func (c *Client) DeleteEmail(ctx context.Context, id int64, folder string) error {
	_, err := c.flags(ctx, http.MethodDelete, fmt.Sprintf("/api/trash/emails/%d", id), url.Values{"type": {folder}}, nil)
	return err
}

func (c *Client) StarDraft(ctx context.Context, id int64, starred bool) (api.FlagsResponse, error) {
	return c.flags(ctx, http.MethodPatch, "/api/starred/draft", nil, api.StarDraftRequest{DraftID: api.ID(id), IsStarred: starred})
}

func (c *Client) StarEmail(ctx context.Context, id int64, folder string, starred bool) (api.FlagsResponse, error) {
	return c.flags(ctx, http.MethodPatch, "/api/starred/email", nil, api.StarEmailRequest{EmailID: api.ID(id), EmailType: folder, IsStarred: starred})
}

func (c *Client) CancelScheduled(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/scheduled/%d", id), nil, nil, nil)
}

func (c *Client) Settings(ctx context.Context) (*api.Settings, error) {
	var out api.Settings
	if err := c.doJSON(ctx, http.MethodGet, "/api/settings/general", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateSettings(ctx context.Context, p api.SettingsPatch) (*api.Settings, error) {
	var out api.SettingsResponse
	if err := c.doJSON(ctx, http.MethodPatch, "/api/settings/general", nil, p, &out); err != nil {
		return nil, err
	}
	return out.Settings, nil
}

// UploadProfilePicture uploads an image and returns its URL path.
func (c *Client) UploadProfilePicture(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="profilePicture"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/settings/upload-profile-picture", nil, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out api.UploadResponse
	if err := c.send(req, &out); err != nil {
		return "", err
	}
	return out.ProfilePictureURL, nil
}

func (c *Client) Signatures(ctx context.Context) ([]api.Signature, error) {
	var out []api.Signature
	err := c.doJSON(ctx, http.MethodGet, "/api/signatures", nil, nil, &out)
	return out, err
}

func (c *Client) CreateSignature(ctx context.Context, name, content string) (*api.Signature, error) {
	var out api.Signature
	if err := c.doJSON(ctx, http.MethodPost, "/api/signatures", nil, api.SignatureRequest{Name: name, Content: content}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateSignature(ctx context.Context, id int64, name, content string) (*api.Signature, error) {
	var out api.Signature
	if err := c.doJSON(ctx, http.MethodPatch, fmt.Sprintf("/api/signatures/%d", id), nil, api.SignatureRequest{Name: name, Content: content}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteSignature(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/signatures/%d", id), nil, nil, nil)
}
