package database

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore connects to TEST_DATABASE_URL, migrates it and empties every
// table. Tests using it are skipped when the variable is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := InitDB(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, ApplyMigrations(url))

	_, err = db.ExecContext(ctx, `TRUNCATE users, user_settings, signatures, sent_emails, received_emails, drafts, scheduled_emails RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return NewStore(db)
}

func TestStore_Users(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "Ann@mail.test", "hash", "Ann")
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, "Ann@mail.test", "hash", "Ann again")
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := s.UserByEmail(ctx, "ann@MAIL.test")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	_, err = s.UserByEmail(ctx, "nobody@mail.test")
	assert.ErrorIs(t, err, ErrNotFound)

	st, err := s.GetSettings(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(u.ID).MaxPageSize, st.MaxPageSize)
}

func TestStore_GetSettingsCreatesMissingRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, err := s.CreateUser(ctx, "ann@mail.test", "hash", "Ann")
	require.NoError(t, err)

	size := 20
	_, err = s.UpdateSettings(ctx, u.ID, SettingsPatch{MaxPageSize: &size})
	require.NoError(t, err)
	st, err := s.GetSettings(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, st.MaxPageSize)

	_, err = s.db.ExecContext(ctx, `DELETE FROM user_settings WHERE user_id = $1`, u.ID)
	require.NoError(t, err)
	_, err = s.readSettings(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	st, err = s.GetSettings(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(u.ID).MaxPageSize, st.MaxPageSize)
	_, err = s.readSettings(ctx, u.ID)
	assert.NoError(t, err)
}

func TestStore_SendClearsDraft(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, err := s.CreateUser(ctx, "ann@mail.test", "hash", "Ann")
	require.NoError(t, err)
	page := Page{Limit: 50}

	draftID, err := s.SaveDraft(ctx, &Draft{UserID: u.ID, Subject: "Hi", AttachmentsInfo: AttachmentInfoList{{Name: "a.pdf", Size: 3}}, LastSavedAt: time.Now()})
	require.NoError(t, err)
	again, err := s.SaveDraft(ctx, &Draft{ID: draftID, UserID: u.ID, Subject: "Hi there", LastSavedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, draftID, again)

	sent, err := s.RecordSent(ctx, &Email{UserID: u.ID, Sender: "ann@mail.test", Recipients: []string{"b@x.test", "c@x.test"}, Subject: "Hi there", ReceivedAt: time.Now()}, draftID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b@x.test", "c@x.test"}, []string(sent.Recipients))

	drafts, err := s.ListDrafts(ctx, u.ID, page)
	require.NoError(t, err)
	assert.Empty(t, drafts)

	n, err := s.RecipientsSentSince(ctx, u.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ann, err := s.CreateUser(ctx, "ann@mail.test", "hash", "Ann")
	require.NoError(t, err)
	bob, err := s.CreateUser(ctx, "bob@mail.test", "hash", "Bob")
	require.NoError(t, err)
	page := Page{Limit: 50}

	in, err := s.InsertReceived(ctx, &Email{UserID: ann.ID, Sender: "x@y.test", Recipients: []string{"ann@mail.test"}, Subject: "Hello", Category: "primary", ReceivedAt: time.Now()})
	require.NoError(t, err)

	assert.ErrorIs(t, s.UpdateFlags(ctx, bob.ID, FolderInbox, in.ID, Flags{}, Flags{Trashed: true}), ErrNotFound)
	require.NoError(t, s.UpdateFlags(ctx, ann.ID, FolderInbox, in.ID, Flags{}, Flags{Starred: true, Trashed: true}))
	assert.ErrorIs(t, s.UpdateFlags(ctx, ann.ID, FolderInbox, in.ID, Flags{}, Flags{}), ErrNotFound, "stale trashed state")

	inbox, err := s.ListEmails(ctx, ann.ID, FolderInbox, page)
	require.NoError(t, err)
	assert.Empty(t, inbox)

	trash, err := s.ListTrash(ctx, ann.ID, page)
	require.NoError(t, err)
	require.Len(t, trash, 1)
	assert.Equal(t, FolderInbox, trash[0].Folder)
	starred, err := s.ListStarred(ctx, ann.ID, page)
	require.NoError(t, err)
	require.Len(t, starred, 1)

	assert.ErrorIs(t, s.DeleteTrashed(ctx, bob.ID, FolderInbox, in.ID), ErrNotFound)
	require.NoError(t, s.DeleteTrashed(ctx, ann.ID, FolderInbox, in.ID))
	_, err = s.ItemFlags(ctx, ann.ID, FolderInbox, in.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Scheduled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, err := s.CreateUser(ctx, "ann@mail.test", "hash", "Ann")
	require.NoError(t, err)
	now := time.Now()

	due, err := s.InsertScheduled(ctx, &ScheduledEmail{UserID: u.ID, Sender: "ann@mail.test", Recipients: []string{"b@x.test"}, Subject: "Due", BodyHTML: "<p>x</p>",
		Attachments: StoredAttachments{{Filename: "a.txt", MimeType: "text/plain", Content: []byte("hi")}}, ScheduledAt: now.Add(-time.Minute)}, 0)
	require.NoError(t, err)
	later, err := s.InsertScheduled(ctx, &ScheduledEmail{UserID: u.ID, Sender: "ann@mail.test", Recipients: []string{"b@x.test"}, Subject: "Later", BodyHTML: "<p>x</p>", ScheduledAt: now.Add(time.Hour)}, 0)
	require.NoError(t, err)

	claimed, err := s.ClaimDueScheduled(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID, claimed[0].ID)
	assert.Equal(t, []byte("hi"), claimed[0].Attachments[0].Content)

	again, err := s.ClaimDueScheduled(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	assert.ErrorIs(t, s.CancelScheduled(ctx, u.ID, due.ID), ErrNotFound, "already claimed")
	sent, err := s.CompleteScheduled(ctx, due.ID, &Email{UserID: u.ID, Sender: "ann@mail.test", Recipients: []string{"b@x.test"}, Subject: "Due", ReceivedAt: now})
	require.NoError(t, err)

	list, err := s.ListScheduled(ctx, u.ID, Page{Limit: 50})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, later.ID, list[0].ID)
	require.NoError(t, s.CancelScheduled(ctx, u.ID, later.ID))

	emails, err := s.ListEmails(ctx, u.ID, FolderSent, Page{Limit: 50})
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, sent.ID, emails[0].ID)
}

func TestStore_ScheduledReclaim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, err := s.CreateUser(ctx, "ann@mail.test", "hash", "Ann")
	require.NoError(t, err)
	now := time.Now().Truncate(time.Microsecond)

	var ids []int64
	for _, subject := range []string{"a", "b", "c"} {
		row, err := s.InsertScheduled(ctx, &ScheduledEmail{UserID: u.ID, Sender: "ann@mail.test", Recipients: []string{"b@x.test"}, Subject: subject, ScheduledAt: now.Add(-time.Minute)}, 0)
		require.NoError(t, err)
		ids = append(ids, row.ID)
	}

	claimed, err := s.ClaimDueScheduled(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 3)
	assert.True(t, claimed[0].ClaimedAt.Valid)

	require.NoError(t, s.ReleaseScheduled(ctx, ids[2:]))
	require.NoError(t, s.CancelScheduled(ctx, u.ID, ids[2]), "released rows can be cancelled")

	n, err := s.FailStaleScheduled(ctx, now, "interrupted")
	require.NoError(t, err)
	assert.Zero(t, n, "claimed at now is not stale")

	require.NoError(t, s.FailScheduled(ctx, ids[0], "relay down"))
	assert.ErrorIs(t, s.FailScheduled(ctx, ids[0], "again"), ErrNotFound)

	n, err = s.FailStaleScheduled(ctx, now.Add(time.Hour), "interrupted")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := s.ListScheduled(ctx, u.ID, Page{Limit: 50})
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, row := range list {
		assert.Equal(t, ScheduledFailed, row.Status)
	}
	assert.Equal(t, "interrupted", list[1].LastError)

	again, err := s.ClaimDueScheduled(ctx, now.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, again, "failed rows are never reclaimed")
}

func TestStore_Signatures(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, err := s.CreateUser(ctx, "ann@mail.test", "hash", "Ann")
	require.NoError(t, err)

	sig, err := s.CreateSignature(ctx, &Signature{UserID: u.ID, Name: "Work", Content: "<p>Ann</p>"})
	require.NoError(t, err)
	def := sql.NullInt64{Int64: sig.ID, Valid: true}
	st, err := s.UpdateSettings(ctx, u.ID, SettingsPatch{DefaultSignatureNew: &def, Labels: map[string]string{LabelSpam: "hide"}})
	require.NoError(t, err)
	assert.Equal(t, def, st.DefaultSignatureNew)
	assert.Equal(t, "hide", st.LabelSpam)

	require.NoError(t, s.DeleteSignature(ctx, u.ID, sig.ID))
	st, err = s.GetSettings(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, st.DefaultSignatureNew.Valid)
}
