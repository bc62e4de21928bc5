package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"webmail/database"
	"webmail/database/dbtest"
	"webmail/utils"
)

func scheduleOne(t *testing.T, f *fixture, userID int64, from string, at time.Time) *database.ScheduledEmail {
	t.Helper()
	res, err := f.mail.Send(context.Background(), SendRequest{
		UserID:      userID,
		From:        from,
		To:          "bob@mail.test",
		Subject:     "Later",
		BodyHTML:    "<p>later</p>",
		Attachments: []Attachment{{Filename: "a.txt", ContentType: "text/plain", Content: []byte("abc")}},
		ScheduledAt: at.Format(time.RFC3339),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Scheduled)
	return res.Scheduled
}

func TestScheduler_DispatchesDueEmails(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	u := f.user(t, "ann@mail.test")
	row := scheduleOne(t, f, u.ID, u.Email, testNow.Add(time.Hour))
	s := NewScheduler(f.mail, time.Minute, discardLogger())

	n, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "not due yet")

	f.mail.now = func() time.Time { return testNow.Add(2 * time.Hour) }
	f.relay.On("Send", mock.Anything, mock.MatchedBy(func(m OutboundMessage) bool {
		return len(m.Attachments) == 1 && string(m.Attachments[0].Content) == "abc" && m.PlainBody == "later"
	})).Return(okRelay(), nil).Once()

	n, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, ok := f.store.Scheduled(row.ID)
	require.True(t, ok)
	assert.Equal(t, database.ScheduledSent, got.Status)
	assert.True(t, got.SentEmailID.Valid)
	assert.Empty(t, got.Attachments)

	sent, _ := f.mail.ListEmails(ctx, u.ID, database.FolderSent, allPages())
	require.Len(t, sent, 1)
	assert.Equal(t, "Later", sent[0].Subject)

	n, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "sent rows are not claimed again")
}

func TestScheduler_RelayFailureMarksFailed(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	u := f.user(t, "ann@mail.test")
	row := scheduleOne(t, f, u.ID, u.Email, testNow.Add(time.Minute))
	f.mail.now = func() time.Time { return testNow.Add(time.Hour) }

	f.relay.On("Send", mock.Anything, mock.Anything).
		Return(RelayResult{}, transportError(errors.New("connection refused"))).Once()

	n, err := NewScheduler(f.mail, time.Minute, discardLogger()).RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, _ := f.store.Scheduled(row.ID)
	assert.Equal(t, database.ScheduledFailed, got.Status)
	assert.Contains(t, got.LastError, "unreachable")

	scheduled, _ := f.mail.ListScheduled(ctx, u.ID, allPages())
	assert.Len(t, scheduled, 1, "failed rows stay visible")
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewScheduler(f.mail, 10*time.Millisecond, discardLogger()).Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

// ctxStore rejects writes on a done context, as a database driver would.
type ctxStore struct {
	*dbtest.MemStore
}

func (s ctxStore) FailScheduled(ctx context.Context, id int64, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemStore.FailScheduled(ctx, id, reason)
}

func (s ctxStore) CompleteScheduled(ctx context.Context, id int64, sent *database.Email) (*database.Email, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.MemStore.CompleteScheduled(ctx, id, sent)
}

func (s ctxStore) ReleaseScheduled(ctx context.Context, ids []int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemStore.ReleaseScheduled(ctx, ids)
}

func TestScheduler_ShutdownDuringDispatch(t *testing.T) {
	f := newFixture(t, 0)
	u := f.user(t, "ann@mail.test")
	first := scheduleOne(t, f, u.ID, u.Email, testNow.Add(time.Minute))
	second := scheduleOne(t, f, u.ID, u.Email, testNow.Add(2*time.Minute))

	mail := NewMailService(ctxStore{f.store}, f.relay, utils.NewSendQuota(0, f.store), discardLogger())
	mail.now = func() time.Time { return testNow.Add(time.Hour) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.relay.On("Send", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(RelayResult{}, transportError(context.Canceled)).Once()

	n, err := NewScheduler(mail, time.Minute, discardLogger()).RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, _ := f.store.Scheduled(first.ID)
	assert.Equal(t, database.ScheduledFailed, got.Status, "interrupted send is recorded")
	got, _ = f.store.Scheduled(second.ID)
	assert.Equal(t, database.ScheduledPending, got.Status, "unattempted row is released")
	assert.False(t, got.ClaimedAt.Valid)

	require.NoError(t, mail.CancelScheduled(context.Background(), u.ID, second.ID))
}

func TestScheduler_FailsStaleClaims(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	u := f.user(t, "ann@mail.test")
	row := scheduleOne(t, f, u.ID, u.Email, testNow.Add(time.Minute))

	claimedAt := testNow.Add(2 * time.Minute)
	claimed, err := f.store.ClaimDueScheduled(ctx, claimedAt, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	s := NewScheduler(f.mail, time.Minute, discardLogger())
	f.mail.now = func() time.Time { return claimedAt.Add(s.staleAfter() - time.Second) }
	_, err = s.RunOnce(ctx)
	require.NoError(t, err)
	got, _ := f.store.Scheduled(row.ID)
	assert.Equal(t, database.ScheduledSending, got.Status, "claim still fresh")

	f.mail.now = func() time.Time { return claimedAt.Add(s.staleAfter() + time.Second) }
	n, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "stale rows are not resent")
	got, _ = f.store.Scheduled(row.ID)
	assert.Equal(t, database.ScheduledFailed, got.Status)
	assert.Equal(t, staleClaimReason, got.LastError)
}
