package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"webmail/database"
	"webmail/database/dbtest"
	"webmail/utils"
)

type mockRelay struct {
	mock.Mock
}

func (m *mockRelay) Send(ctx context.Context, msg OutboundMessage) (RelayResult, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(RelayResult), args.Error(1)
}

var testNow = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store *dbtest.MemStore
	relay *mockRelay
	mail  *MailService
}

func newFixture(t *testing.T, dailyLimit int) *fixture {
	t.Helper()
	store := dbtest.New()
	relay := &mockRelay{}
	mail := NewMailService(store, relay, utils.NewSendQuota(dailyLimit, store), discardLogger())
	mail.now = func() time.Time { return testNow }
	t.Cleanup(func() { relay.AssertExpectations(t) })
	return &fixture{store: store, relay: relay, mail: mail}
}

func (f *fixture) user(t *testing.T, email string) *database.User {
	t.Helper()
	u, err := f.store.CreateUser(context.Background(), email, "hash", "Test User")
	require.NoError(t, err)
	return u
}

func (f *fixture) draft(t *testing.T, userID int64, subject string) int64 {
	t.Helper()
	id, err := f.mail.SaveDraft(context.Background(), userID, DraftInput{RecipientEmail: "bob@mail.test", Subject: subject, BodyHTML: "<p>hi</p>"})
	require.NoError(t, err)
	return id
}

func okRelay() RelayResult {
	return RelayResult{Response: []byte(`{"status":"success","data":{"message_id":"abc"}}`)}
}

func allPages() database.Page {
	return database.Page{Limit: 100}
}
