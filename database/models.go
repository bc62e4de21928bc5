package database

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Folder identifies the home table of a mailbox item.
type Folder string

const (
	FolderInbox Folder = "inbox"
	FolderSent  Folder = "sent"
	FolderDraft Folder = "draft"
)

// ParseFolder validates a folder name coming from a request.
func ParseFolder(s string) (Folder, error) {
	switch f := Folder(s); f {
	case FolderInbox, FolderSent, FolderDraft:
		return f, nil
	}
	return "", fmt.Errorf("unknown folder %q", s)
}

// ParseEmailFolder is ParseFolder restricted to the two email tables.
func ParseEmailFolder(s string) (Folder, error) {
	f, err := ParseFolder(s)
	if err != nil || f == FolderDraft {
		return "", fmt.Errorf("unknown email folder %q", s)
	}
	return f, nil
}

func (f Folder) table() (string, error) {
	switch f {
	case FolderInbox:
		return "received_emails", nil
	case FolderSent:
		return "sent_emails", nil
	case FolderDraft:
		return "drafts", nil
	}
	return "", fmt.Errorf("unknown folder %q", string(f))
}

// Flags is the starred/trashed pair every mailbox item carries.
type Flags struct {
	Starred bool `db:"is_starred"`
	Trashed bool `db:"is_trashed"`
}

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

// User represents a row in the users table
type User struct {
	ID           int64     `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password"`
	Name         string    `db:"name"`
	CreatedAt    time.Time `db:"created_at"`
}

// Email represents a row in sent_emails or received_emails.
// Category is only populated for received mail.
type Email struct {
	ID         int64          `db:"id"`
	UserID     int64          `db:"user_id"`
	Sender     string         `db:"sender"`
	Recipients pq.StringArray `db:"recipients"`
	Subject    string         `db:"subject"`
	PlainBody  string         `db:"plain_body"`
	BodyHTML   string         `db:"body_html"`
	Category   string         `db:"category"`
	ReceivedAt time.Time      `db:"received_at"`
	IsStarred  bool           `db:"is_starred"`
	IsTrashed  bool           `db:"is_trashed"`
}

// AttachmentInfo is the metadata a draft keeps about its attachments.
type AttachmentInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// AttachmentInfoList is stored as a JSONB array.
type AttachmentInfoList []AttachmentInfo

// Value encodes the list as a JSON string; lib/pq would send []byte as bytea.
func (l AttachmentInfoList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *AttachmentInfoList) Scan(src any) error {
	return scanJSON(src, l)
}

// Draft represents a row in the drafts table
type Draft struct {
	ID              int64              `db:"id"`
	UserID          int64              `db:"user_id"`
	RecipientEmail  string             `db:"recipient_email"`
	Subject         string             `db:"subject"`
	BodyHTML        string             `db:"body_html"`
	AttachmentsInfo AttachmentInfoList `db:"attachments_info"`
	LastSavedAt     time.Time          `db:"last_saved_at"`
	IsStarred       bool               `db:"is_starred"`
	IsTrashed       bool               `db:"is_trashed"`
}

// FolderItem is one row of the trash and starred aggregations, tagged with
// the table it came from.
type FolderItem struct {
	Folder          Folder             `db:"folder"`
	ID              int64              `db:"id"`
	Sender          string             `db:"sender"`
	Recipients      pq.StringArray     `db:"recipients"`
	RecipientEmail  string             `db:"recipient_email"`
	Subject         string             `db:"subject"`
	PlainBody       string             `db:"plain_body"`
	BodyHTML        string             `db:"body_html"`
	AttachmentsInfo AttachmentInfoList `db:"attachments_info"`
	ItemTime        time.Time          `db:"item_time"`
	IsStarred       bool               `db:"is_starred"`
	IsTrashed       bool               `db:"is_trashed"`
}

// Signature represents a row in the signatures table
type Signature struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Name      string    `db:"name"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
}

// Label visibility columns in user_settings.
const (
	LabelStarred   = "label_starred_visibility"
	LabelSent      = "label_sent_visibility"
	LabelDrafts    = "label_drafts_visibility"
	LabelScheduled = "label_scheduled_visibility"
	LabelSpam      = "label_spam_visibility"
	LabelTrash     = "label_trash_visibility"
)

// LabelColumns lists every label visibility column.
var LabelColumns = []string{LabelStarred, LabelSent, LabelDrafts, LabelScheduled, LabelSpam, LabelTrash}

// Settings represents a row in the user_settings table
type Settings struct {
	UserID                int64         `db:"user_id"`
	MaxPageSize           int           `db:"max_page_size"`
	UndoSendDelay         int           `db:"undo_send_delay"`
	ProfilePictureURL     string        `db:"profile_picture_url"`
	DefaultSignatureNew   sql.NullInt64 `db:"default_signature_new"`
	DefaultSignatureReply sql.NullInt64 `db:"default_signature_reply"`
	LabelStarred          string        `db:"label_starred_visibility"`
	LabelSent             string        `db:"label_sent_visibility"`
	LabelDrafts           string        `db:"label_drafts_visibility"`
	LabelScheduled        string        `db:"label_scheduled_visibility"`
	LabelSpam             string        `db:"label_spam_visibility"`
	LabelTrash            string        `db:"label_trash_visibility"`
	UpdatedAt             time.Time     `db:"updated_at"`
}

// DefaultSettings returns the column defaults of user_settings.
func DefaultSettings(userID int64) Settings {
	return Settings{
		UserID:         userID,
		MaxPageSize:    50,
		UndoSendDelay:  5,
		LabelStarred:   "show",
		LabelSent:      "show",
		LabelDrafts:    "show",
		LabelScheduled: "show",
		LabelSpam:      "show",
		LabelTrash:     "show",
	}
}

// Labels returns the label visibility columns keyed by column name.
func (s Settings) Labels() map[string]string {
	return map[string]string{
		LabelStarred:   s.LabelStarred,
		LabelSent:      s.LabelSent,
		LabelDrafts:    s.LabelDrafts,
		LabelScheduled: s.LabelScheduled,
		LabelSpam:      s.LabelSpam,
		LabelTrash:     s.LabelTrash,
	}
}

// SetLabel assigns one label column by name and reports whether it exists.
func (s *Settings) SetLabel(column, value string) bool {
	switch column {
	case LabelStarred:
		s.LabelStarred = value
	case LabelSent:
		s.LabelSent = value
	case LabelDrafts:
		s.LabelDrafts = value
	case LabelScheduled:
		s.LabelScheduled = value
	case LabelSpam:
		s.LabelSpam = value
	case LabelTrash:
		s.LabelTrash = value
	default:
		return false
	}
	return true
}

// SettingsPatch holds the columns to change; nil fields are left alone.
// A non-nil signature pointer with Valid=false clears the default.
type SettingsPatch struct {
	MaxPageSize           *int
	UndoSendDelay         *int
	ProfilePictureURL     *string
	DefaultSignatureNew   *sql.NullInt64
	DefaultSignatureReply *sql.NullInt64
	Labels                map[string]string
}

// Scheduled email lifecycle.
const (
	ScheduledPending = "pending"
	ScheduledSending = "sending"
	ScheduledSent    = "sent"
	ScheduledFailed  = "failed"
)

// StoredAttachment is an attachment kept until a scheduled email is dispatched.
type StoredAttachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimetype"`
	Content  []byte `json:"content"`
}

// StoredAttachments is stored as a JSONB array; content is base64 in JSON.
type StoredAttachments []StoredAttachment

func (a StoredAttachments) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *StoredAttachments) Scan(src any) error {
	return scanJSON(src, a)
}

// ScheduledEmail represents a row in the scheduled_emails table
type ScheduledEmail struct {
	ID          int64             `db:"id"`
	UserID      int64             `db:"user_id"`
	Sender      string            `db:"sender"`
	Recipients  pq.StringArray    `db:"recipients"`
	Subject     string            `db:"subject"`
	BodyHTML    string            `db:"body_html"`
	Attachments StoredAttachments `db:"attachments"`
	ScheduledAt time.Time         `db:"scheduled_at"`
	Status      string            `db:"status"`
	LastError   string            `db:"last_error"`
	SentEmailID sql.NullInt64     `db:"sent_email_id"`
	ClaimedAt   sql.NullTime      `db:"claimed_at"`
	CreatedAt   time.Time         `db:"created_at"`
}

func scanJSON(src any, dst any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSON column", src)
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}
