// Package dbtest provides an in-memory stand-in for database.Store with the
// same ownership, ordering and transactional behavior, for use in tests.
package dbtest

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"webmail/database"
)

// MemStore is safe for concurrent use.
type MemStore struct {
	mu sync.Mutex

	nextID     int64
	users      map[int64]*database.User
	settings   map[int64]*database.Settings
	signatures map[int64]*database.Signature
	received   map[int64]*database.Email
	sent       map[int64]*database.Email
	drafts     map[int64]*database.Draft
	scheduled  map[int64]*database.ScheduledEmail

	// FailRecordSent makes RecordSent fail after the relay step, to exercise rollback.
	FailRecordSent error
}

func New() *MemStore {
	return &MemStore{
		users:      map[int64]*database.User{},
		settings:   map[int64]*database.Settings{},
		signatures: map[int64]*database.Signature{},
		received:   map[int64]*database.Email{},
		sent:       map[int64]*database.Email{},
		drafts:     map[int64]*database.Draft{},
		scheduled:  map[int64]*database.ScheduledEmail{},
	}
}

func (m *MemStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemStore) Ping(context.Context) error { return nil }

func (m *MemStore) CreateUser(_ context.Context, email, passwordHash, name string) (*database.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return nil, database.ErrDuplicate
		}
	}
	u := &database.User{ID: m.id(), Email: email, PasswordHash: passwordHash, Name: name, CreatedAt: time.Now()}
	m.users[u.ID] = u
	st := database.DefaultSettings(u.ID)
	m.settings[u.ID] = &st
	cp := *u
	return &cp, nil
}

func (m *MemStore) UserByEmail(_ context.Context, email string) (*database.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *MemStore) UserByID(_ context.Context, id int64) (*database.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemStore) UpdatePassword(_ context.Context, userID int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return database.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *MemStore) emailTable(folder database.Folder) (map[int64]*database.Email, error) {
	switch folder {
	case database.FolderInbox:
		return m.received, nil
	case database.FolderSent:
		return m.sent, nil
	}
	return nil, fmt.Errorf("unknown email folder %q", folder)
}

func (m *MemStore) ListEmails(_ context.Context, userID int64, folder database.Folder, page database.Page) ([]database.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table, err := m.emailTable(folder)
	if err != nil {
		return nil, err
	}
	out := []database.Email{}
	for _, e := range table {
		if e.UserID == userID && !e.IsTrashed {
			out = append(out, *e)
		}
	}
	slices.SortFunc(out, func(a, b database.Email) int {
		return newestFirst(a.ReceivedAt, b.ReceivedAt, a.ID, b.ID)
	})
	return paginate(out, page), nil
}

func (m *MemStore) InsertReceived(_ context.Context, e *database.Email) (*database.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	cp.ID = m.id()
	m.received[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *MemStore) RecordSent(_ context.Context, e *database.Email, clearDraftID int64) (*database.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRecordSent != nil {
		return nil, m.FailRecordSent
	}
	cp := *e
	cp.ID = m.id()
	cp.Category = ""
	m.sent[cp.ID] = &cp
	if d, ok := m.drafts[clearDraftID]; ok && d.UserID == e.UserID {
		delete(m.drafts, clearDraftID)
	}
	out := cp
	return &out, nil
}

func (m *MemStore) RecipientsSentSince(_ context.Context, userID int64, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.sent {
		if e.UserID == userID && !e.ReceivedAt.Before(since) {
			n += len(e.Recipients)
		}
	}
	return n, nil
}

func (m *MemStore) SaveDraft(_ context.Context, d *database.Draft) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.drafts[d.ID]; ok && existing.UserID == d.UserID {
		existing.RecipientEmail = d.RecipientEmail
		existing.Subject = d.Subject
		existing.BodyHTML = d.BodyHTML
		existing.AttachmentsInfo = slices.Clone(d.AttachmentsInfo)
		existing.LastSavedAt = d.LastSavedAt
		return existing.ID, nil
	}
	cp := *d
	cp.ID = m.id()
	cp.IsStarred, cp.IsTrashed = false, false
	cp.AttachmentsInfo = slices.Clone(d.AttachmentsInfo)
	if cp.AttachmentsInfo == nil {
		cp.AttachmentsInfo = database.AttachmentInfoList{}
	}
	m.drafts[cp.ID] = &cp
	return cp.ID, nil
}

func (m *MemStore) ListDrafts(_ context.Context, userID int64, page database.Page) ([]database.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []database.Draft{}
	for _, d := range m.drafts {
		if d.UserID == userID && !d.IsTrashed {
			out = append(out, *d)
		}
	}
	slices.SortFunc(out, func(a, b database.Draft) int {
		return newestFirst(a.LastSavedAt, b.LastSavedAt, a.ID, b.ID)
	})
	return paginate(out, page), nil
}

// flagsOf returns pointers to the flags of an owned row.
func (m *MemStore) flagsOf(userID int64, folder database.Folder, id int64) (starred, trashed *bool, err error) {
	switch folder {
	case database.FolderDraft:
		if d, ok := m.drafts[id]; ok && d.UserID == userID {
			return &d.IsStarred, &d.IsTrashed, nil
		}
		return nil, nil, database.ErrNotFound
	default:
		table, err := m.emailTable(folder)
		if err != nil {
			return nil, nil, err
		}
		if e, ok := table[id]; ok && e.UserID == userID {
			return &e.IsStarred, &e.IsTrashed, nil
		}
		return nil, nil, database.ErrNotFound
	}
}

func (m *MemStore) ItemFlags(_ context.Context, userID int64, folder database.Folder, id int64) (database.Flags, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, t, err := m.flagsOf(userID, folder, id)
	if err != nil {
		return database.Flags{}, err
	}
	return database.Flags{Starred: *s, Trashed: *t}, nil
}

func (m *MemStore) UpdateFlags(_ context.Context, userID int64, folder database.Folder, id int64, prev, next database.Flags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, t, err := m.flagsOf(userID, folder, id)
	if err != nil {
		return err
	}
	if *t != prev.Trashed {
		return database.ErrNotFound
	}
	*s, *t = next.Starred, next.Trashed
	return nil
}

func (m *MemStore) DeleteTrashed(_ context.Context, userID int64, folder database.Folder, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, t, err := m.flagsOf(userID, folder, id)
	if err != nil {
		return err
	}
	if !*t {
		return database.ErrNotFound
	}
	switch folder {
	case database.FolderDraft:
		delete(m.drafts, id)
	case database.FolderInbox:
		delete(m.received, id)
	case database.FolderSent:
		delete(m.sent, id)
	}
	return nil
}

func (m *MemStore) ListTrash(_ context.Context, userID int64, page database.Page) ([]database.FolderItem, error) {
	return m.folderItems(userID, page, func(f database.Flags) bool { return f.Trashed }), nil
}

func (m *MemStore) ListStarred(_ context.Context, userID int64, page database.Page) ([]database.FolderItem, error) {
	return m.folderItems(userID, page, func(f database.Flags) bool { return f.Starred }), nil
}

func (m *MemStore) folderItems(userID int64, page database.Page, keep func(database.Flags) bool) []database.FolderItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []database.FolderItem{}
	addEmails := func(folder database.Folder, table map[int64]*database.Email) {
		for _, e := range table {
			if e.UserID != userID || !keep(database.Flags{Starred: e.IsStarred, Trashed: e.IsTrashed}) {
				continue
			}
			out = append(out, database.FolderItem{
				Folder: folder, ID: e.ID, Sender: e.Sender, Recipients: slices.Clone(e.Recipients),
				Subject: e.Subject, PlainBody: e.PlainBody, BodyHTML: e.BodyHTML,
				AttachmentsInfo: database.AttachmentInfoList{}, ItemTime: e.ReceivedAt,
				IsStarred: e.IsStarred, IsTrashed: e.IsTrashed,
			})
		}
	}
	addEmails(database.FolderInbox, m.received)
	addEmails(database.FolderSent, m.sent)
	for _, d := range m.drafts {
		if d.UserID != userID || !keep(database.Flags{Starred: d.IsStarred, Trashed: d.IsTrashed}) {
			continue
		}
		out = append(out, database.FolderItem{
			Folder: database.FolderDraft, ID: d.ID, Recipients: []string{}, RecipientEmail: d.RecipientEmail,
			Subject: d.Subject, BodyHTML: d.BodyHTML, AttachmentsInfo: slices.Clone(d.AttachmentsInfo),
			ItemTime: d.LastSavedAt, IsStarred: d.IsStarred, IsTrashed: d.IsTrashed,
		})
	}
	slices.SortFunc(out, func(a, b database.FolderItem) int {
		return newestFirst(a.ItemTime, b.ItemTime, a.ID, b.ID)
	})
	return paginate(out, page)
}

func (m *MemStore) InsertScheduled(_ context.Context, e *database.ScheduledEmail, clearDraftID int64) (*database.ScheduledEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	cp.ID = m.id()
	cp.Status = database.ScheduledPending
	cp.CreatedAt = time.Now()
	m.scheduled[cp.ID] = &cp
	if d, ok := m.drafts[clearDraftID]; ok && d.UserID == e.UserID {
		delete(m.drafts, clearDraftID)
	}
	out := cp
	return &out, nil
}

func (m *MemStore) ListScheduled(_ context.Context, userID int64, page database.Page) ([]database.ScheduledEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []database.ScheduledEmail{}
	for _, s := range m.scheduled {
		if s.UserID == userID && s.Status != database.ScheduledSent {
			out = append(out, *s)
		}
	}
	slices.SortFunc(out, func(a, b database.ScheduledEmail) int {
		if c := a.ScheduledAt.Compare(b.ScheduledAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return paginate(out, page), nil
}

func (m *MemStore) CancelScheduled(_ context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scheduled[id]
	if !ok || s.UserID != userID || s.Status != database.ScheduledPending {
		return database.ErrNotFound
	}
	delete(m.scheduled, id)
	return nil
}

func (m *MemStore) ClaimDueScheduled(_ context.Context, now time.Time, limit int) ([]database.ScheduledEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	due := []*database.ScheduledEmail{}
	for _, s := range m.scheduled {
		if s.Status == database.ScheduledPending && !s.ScheduledAt.After(now) {
			due = append(due, s)
		}
	}
	slices.SortFunc(due, func(a, b *database.ScheduledEmail) int {
		if c := a.ScheduledAt.Compare(b.ScheduledAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]database.ScheduledEmail, 0, len(due))
	for _, s := range due {
		s.Status = database.ScheduledSending
		s.ClaimedAt = sql.NullTime{Time: now, Valid: true}
		out = append(out, *s)
	}
	return out, nil
}

func (m *MemStore) CompleteScheduled(_ context.Context, id int64, sent *database.Email) (*database.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scheduled[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *sent
	cp.ID = m.id()
	m.sent[cp.ID] = &cp
	s.Status = database.ScheduledSent
	s.SentEmailID = sql.NullInt64{Int64: cp.ID, Valid: true}
	s.LastError = ""
	s.Attachments = database.StoredAttachments{}
	out := cp
	return &out, nil
}

func (m *MemStore) FailScheduled(_ context.Context, id int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scheduled[id]
	if !ok || s.Status != database.ScheduledSending {
		return database.ErrNotFound
	}
	s.Status = database.ScheduledFailed
	s.LastError = reason
	return nil
}

func (m *MemStore) ReleaseScheduled(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if s, ok := m.scheduled[id]; ok && s.Status == database.ScheduledSending {
			s.Status = database.ScheduledPending
			s.ClaimedAt = sql.NullTime{}
		}
	}
	return nil
}

func (m *MemStore) FailStaleScheduled(_ context.Context, claimedBefore time.Time, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.scheduled {
		if s.Status == database.ScheduledSending && (!s.ClaimedAt.Valid || s.ClaimedAt.Time.Before(claimedBefore)) {
			s.Status = database.ScheduledFailed
			s.LastError = reason
			n++
		}
	}
	return n, nil
}

// Scheduled returns a copy of one scheduled row regardless of owner.
func (m *MemStore) Scheduled(id int64) (database.ScheduledEmail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scheduled[id]
	if !ok {
		return database.ScheduledEmail{}, false
	}
	return *s, true
}

func (m *MemStore) GetSettings(_ context.Context, userID int64) (*database.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.settings[userID]
	if !ok {
		if _, ok := m.users[userID]; !ok {
			return nil, database.ErrNotFound
		}
		d := database.DefaultSettings(userID)
		st = &d
		m.settings[userID] = st
	}
	cp := *st
	return &cp, nil
}

func (m *MemStore) UpdateSettings(ctx context.Context, userID int64, p database.SettingsPatch) (*database.Settings, error) {
	if _, err := m.GetSettings(ctx, userID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.settings[userID]
	if p.MaxPageSize != nil {
		st.MaxPageSize = *p.MaxPageSize
	}
	if p.UndoSendDelay != nil {
		st.UndoSendDelay = *p.UndoSendDelay
	}
	if p.ProfilePictureURL != nil {
		st.ProfilePictureURL = *p.ProfilePictureURL
	}
	if p.DefaultSignatureNew != nil {
		st.DefaultSignatureNew = *p.DefaultSignatureNew
	}
	if p.DefaultSignatureReply != nil {
		st.DefaultSignatureReply = *p.DefaultSignatureReply
	}
	for col, v := range p.Labels {
		st.SetLabel(col, v)
	}
	st.UpdatedAt = time.Now()
	cp := *st
	return &cp, nil
}

func (m *MemStore) ListSignatures(_ context.Context, userID int64) ([]database.Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []database.Signature{}
	for _, s := range m.signatures {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	slices.SortFunc(out, func(a, b database.Signature) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *MemStore) CreateSignature(_ context.Context, sig *database.Signature) (*database.Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sig
	cp.ID = m.id()
	cp.CreatedAt = time.Now()
	m.signatures[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *MemStore) UpdateSignature(_ context.Context, sig *database.Signature) (*database.Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.signatures[sig.ID]
	if !ok || s.UserID != sig.UserID {
		return nil, database.ErrNotFound
	}
	s.Name, s.Content = sig.Name, sig.Content
	out := *s
	return &out, nil
}

func (m *MemStore) DeleteSignature(_ context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.signatures[id]
	if !ok || s.UserID != userID {
		return database.ErrNotFound
	}
	delete(m.signatures, id)
	for _, st := range m.settings {
		if st.DefaultSignatureNew.Valid && st.DefaultSignatureNew.Int64 == id {
			st.DefaultSignatureNew = sql.NullInt64{}
		}
		if st.DefaultSignatureReply.Valid && st.DefaultSignatureReply.Int64 == id {
			st.DefaultSignatureReply = sql.NullInt64{}
		}
	}
	return nil
}

func newestFirst(ta, tb time.Time, ia, ib int64) int {
	if c := tb.Compare(ta); c != 0 {
		return c
	}
	return cmp.Compare(ib, ia)
}

func paginate[T any](items []T, page database.Page) []T {
	if page.Offset >= len(items) {
		return items[:0]
	}
	items = items[page.Offset:]
	if page.Limit > 0 && len(items) > page.Limit {
		items = items[:page.Limit]
	}
	return items
}
