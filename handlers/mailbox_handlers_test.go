package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"webmail/api"
)

func folderItems(t *testing.T, ts *testServer, token, path string) []api.FolderItem {
	t.Helper()
	rec := ts.do(t, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var items []api.FolderItem
	decode(t, rec, &items)
	return items
}

func TestSaveDraft_Upsert(t *testing.T) {
	ts := newTestServer(t, 0)
	token := ts.login(t, "ann@mail.test")

	id := saveDraft(t, ts, token, "first")
	rec := ts.do(t, http.MethodPost, "/api/drafts", token, map[string]any{
		"id": id, "recipient_email": "bob@other.test", "subject": "second", "body_html": "<p>more</p>",
		"attachments_info": []map[string]any{{"name": "a.txt", "size": 12}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var out api.SaveDraftResponse
	decode(t, rec, &out)
	assert.Equal(t, id, out.DraftID)

	var drafts []api.DraftRow
	decode(t, ts.do(t, http.MethodGet, "/api/drafts", token, nil), &drafts)
	require.Len(t, drafts, 1)
	assert.Equal(t, "second", drafts[0].Subject)
	assert.Equal(t, []api.AttachmentInfo{{Name: "a.txt", Size: 12}}, drafts[0].AttachmentsInfo)
}

func TestDraftLifecycle(t *testing.T) {
	ts := newTestServer(t, 0)
	token := ts.login(t, "ann@mail.test")
	id := saveDraft(t, ts, token, "lifecycle")

	rec := ts.do(t, http.MethodPatch, "/api/starred/draft", token, map[string]any{"draftId": id, "isStarred": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/trash/draft", token, map[string]any{"draftId": id})
	require.Equal(t, http.StatusOK, rec.Code)
	var flags api.FlagsResponse
	decode(t, rec, &flags)
	assert.True(t, flags.IsStarred)
	assert.True(t, flags.IsTrashed)

	rec = ts.do(t, http.MethodPost, "/api/trash/draft", token, map[string]any{"draftId": id})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// A trashed draft leaves the drafts list but stays starred.
	assert.JSONEq(t, `[]`, ts.do(t, http.MethodGet, "/api/drafts", token, nil).Body.String())
	trash := folderItems(t, ts, token, "/api/trash")
	require.Len(t, trash, 1)
	assert.Equal(t, "draft", trash[0].Type)
	starred := folderItems(t, ts, token, "/api/starred")
	require.Len(t, starred, 1)
	assert.True(t, starred[0].IsTrashed)

	rec = ts.do(t, http.MethodPost, "/api/trash/restore/draft", token, map[string]any{"draftId": id})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, folderItems(t, ts, token, "/api/trash"))

	path := fmt.Sprintf("/api/trash/drafts/%d", id)
	rec = ts.do(t, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "delete requires the trash")

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/trash/draft", token, map[string]any{"draftId": id}).Code)
	rec = ts.do(t, http.MethodDelete, path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Draft permanently deleted", message(t, rec))

	assert.Empty(t, folderItems(t, ts, token, "/api/trash"))
	assert.Empty(t, folderItems(t, ts, token, "/api/starred"))
	rec = ts.do(t, http.MethodPost, "/api/trash/restore/draft", token, map[string]any{"draftId": id})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEmailLifecycle(t *testing.T) {
	ts := newTestServer(t, 0)
	token := ts.login(t, "ann@mail.test")
	ts.relay.On("Send", mock.Anything, mock.Anything).Return(okRelay(), nil).Once()

	rec := ts.do(t, http.MethodPost, "/api/send-email", token, map[string]any{"to": "bob@other.test", "subject": "S", "bodyHtml": "<p>b</p>"})
	require.Equal(t, http.StatusOK, rec.Code)
	var sent api.SendEmailResponse
	decode(t, rec, &sent)
	id := sent.Email.ID

	rec = ts.do(t, http.MethodPost, "/api/trash/email", token, map[string]any{"emailId": id, "emailType": "inbox"})
	assert.Equal(t, http.StatusNotFound, rec.Code, "wrong table")

	rec = ts.do(t, http.MethodPost, "/api/trash/email", token, map[string]any{"emailId": id, "emailType": "draft"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/trash/email", token, map[string]any{"emailId": fmt.Sprint(id), "emailType": "sent"})
	require.Equal(t, http.StatusOK, rec.Code)

	trash := folderItems(t, ts, token, "/api/trash")
	require.Len(t, trash, 1)
	assert.Equal(t, "sent", trash[0].Type)
	assert.Equal(t, "sent", trash[0].Folder)

	rec = ts.do(t, http.MethodPatch, "/api/starred/email", token, map[string]any{"emailId": id, "emailType": "sent", "isStarred": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, folderItems(t, ts, token, "/api/starred"), 1)

	rec = ts.do(t, http.MethodPost, "/api/trash/restore/email", token, map[string]any{"emailId": id, "originalFolder": "sent"})
	require.Equal(t, http.StatusOK, rec.Code)
	var emails []api.EmailRow
	decode(t, ts.do(t, http.MethodGet, "/api/emails?type=sent", token, nil), &emails)
	require.Len(t, emails, 1)
	assert.True(t, emails[0].IsStarred)
	assert.False(t, emails[0].IsTrashed)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/trash/email", token, map[string]any{"emailId": id, "emailType": "sent"}).Code)
	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/trash/emails/%d", id), token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "type is required")
	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/trash/emails/%d?type=sent", id), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, ts.do(t, http.MethodGet, "/api/emails?type=sent", token, nil), &emails)
	assert.Empty(t, emails)
}

func TestMailbox_CrossUser(t *testing.T) {
	ts := newTestServer(t, 0)
	ann := ts.login(t, "ann@mail.test")
	bob := ts.login(t, "bob@mail.test")
	id := saveDraft(t, ts, ann, "private")

	rec := ts.do(t, http.MethodPost, "/api/trash/draft", bob, map[string]any{"draftId": id})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodPatch, "/api/starred/draft", bob, map[string]any{"draftId": id, "isStarred": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Saving over someone else's id creates a new draft for the caller.
	rec = ts.do(t, http.MethodPost, "/api/drafts", bob, map[string]any{"id": id, "subject": "mine"})
	require.Equal(t, http.StatusOK, rec.Code)
	var out api.SaveDraftResponse
	decode(t, rec, &out)
	assert.NotEqual(t, id, out.DraftID)

	var drafts []api.DraftRow
	decode(t, ts.do(t, http.MethodGet, "/api/drafts", ann, nil), &drafts)
	require.Len(t, drafts, 1)
	assert.Equal(t, "private", drafts[0].Subject)
}

func TestMailbox_BadRequests(t *testing.T) {
	ts := newTestServer(t, 0)
	token := ts.login(t, "ann@mail.test")

	tests := []struct {
		method, path string
		body         any
	}{
		{http.MethodPost, "/api/trash/draft", map[string]any{}},
		{http.MethodPost, "/api/trash/draft", map[string]any{"draftId": "x"}},
		{http.MethodPost, "/api/trash/restore/email", map[string]any{"emailId": 1, "originalFolder": "spam"}},
		{http.MethodPatch, "/api/starred/email", map[string]any{"emailId": 1, "emailType": "", "isStarred": true}},
		{http.MethodDelete, "/api/trash/drafts/abc", nil},
		{http.MethodDelete, "/api/scheduled/0", nil},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, token, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}
