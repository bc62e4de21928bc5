package services

import (
	"context"
	"time"

	"webmail/database"
)

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash, name string) (*database.User, error)
	UserByEmail(ctx context.Context, email string) (*database.User, error)
	UserByID(ctx context.Context, id int64) (*database.User, error)
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
}

// MailboxStore persists emails and drafts and their flags.
type MailboxStore interface {
	ListEmails(ctx context.Context, userID int64, folder database.Folder, page database.Page) ([]database.Email, error)
	InsertReceived(ctx context.Context, e *database.Email) (*database.Email, error)
	RecordSent(ctx context.Context, e *database.Email, clearDraftID int64) (*database.Email, error)
	RecipientsSentSince(ctx context.Context, userID int64, since time.Time) (int, error)

	SaveDraft(ctx context.Context, d *database.Draft) (int64, error)
	ListDrafts(ctx context.Context, userID int64, page database.Page) ([]database.Draft, error)

	ItemFlags(ctx context.Context, userID int64, folder database.Folder, id int64) (database.Flags, error)
	UpdateFlags(ctx context.Context, userID int64, folder database.Folder, id int64, prev, next database.Flags) error
	DeleteTrashed(ctx context.Context, userID int64, folder database.Folder, id int64) error
	ListTrash(ctx context.Context, userID int64, page database.Page) ([]database.FolderItem, error)
	ListStarred(ctx context.Context, userID int64, page database.Page) ([]database.FolderItem, error)
}

// ScheduleStore persists emails waiting for their send time.
type ScheduleStore interface {
	InsertScheduled(ctx context.Context, e *database.ScheduledEmail, clearDraftID int64) (*database.ScheduledEmail, error)
	ListScheduled(ctx context.Context, userID int64, page database.Page) ([]database.ScheduledEmail, error)
	CancelScheduled(ctx context.Context, userID, id int64) error
	ClaimDueScheduled(ctx context.Context, now time.Time, limit int) ([]database.ScheduledEmail, error)
	CompleteScheduled(ctx context.Context, id int64, sent *database.Email) (*database.Email, error)
	FailScheduled(ctx context.Context, id int64, reason string) error
	ReleaseScheduled(ctx context.Context, ids []int64) error
	FailStaleScheduled(ctx context.Context, claimedBefore time.Time, reason string) (int, error)
}

// SettingsStore persists per-user settings and signatures.
type SettingsStore interface {
	GetSettings(ctx context.Context, userID int64) (*database.Settings, error)
	UpdateSettings(ctx context.Context, userID int64, p database.SettingsPatch) (*database.Settings, error)
	ListSignatures(ctx context.Context, userID int64) ([]database.Signature, error)
	CreateSignature(ctx context.Context, sig *database.Signature) (*database.Signature, error)
	UpdateSignature(ctx context.Context, sig *database.Signature) (*database.Signature, error)
	DeleteSignature(ctx context.Context, userID, id int64) error
}

// Store is everything the services need; *database.Store implements it.
type Store interface {
	UserStore
	MailboxStore
	ScheduleStore
	SettingsStore
}

var _ Store = (*database.Store)(nil)
