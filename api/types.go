// Package api defines the JSON bodies exchanged between the server and its
// clients. Field names follow the wire format the web client already speaks.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ID accepts a JSON number, a numeric string or null (read as 0).
type ID int64

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = 0
		return nil
	}
	s := string(b)
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s = strings.TrimSpace(s); s == "" {
			*id = 0
			return nil
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", s)
	}
	*id = ID(v)
	return nil
}

// NullableID tells an absent field from an explicit null. The web client
// sends 0 for "no signature", which is read as null too.
type NullableID struct {
	Set   bool
	Valid bool
	Value int64
}

func (n *NullableID) UnmarshalJSON(b []byte) error {
	var id ID
	if err := id.UnmarshalJSON(b); err != nil {
		return err
	}
	*n = NullableID{Set: true, Valid: id != 0, Value: int64(id)}
	return nil
}

func (n NullableID) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(n.Value, 10)), nil
}

// MessageResponse is the body of every acknowledgement and error.
type MessageResponse struct {
	Message string `json:"message"`
	Error   any    `json:"error,omitempty"`
}

type RegisterRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Message     string `json:"message"`
	AccessToken string `json:"accessToken"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// SendEmailRequest is the JSON form of POST /api/send-email. The multipart
// form uses the same field names plus "attachments" files.
type SendEmailRequest struct {
	To             string `json:"to"`
	Subject        string `json:"subject"`
	BodyHTML       string `json:"bodyHtml"`
	Body           string `json:"body,omitempty"` // older clients
	ScheduledAt    string `json:"scheduledAt,omitempty"`
	DraftIDToClear ID     `json:"draftIdToClear,omitempty"`
}

type SendEmailResponse struct {
	Message        string          `json:"message"`
	PostalResponse json.RawMessage `json:"postalResponse,omitempty"`
	Email          *EmailRow       `json:"email,omitempty"`
	Scheduled      *ScheduledRow   `json:"scheduled,omitempty"`
}

type AttachmentInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// EmailRow is one inbox or sent email.
type EmailRow struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Sender     string    `json:"sender"`
	Recipients []string  `json:"recipients"`
	Subject    string    `json:"subject"`
	PlainBody  string    `json:"plain_body"`
	BodyHTML   string    `json:"body_html"`
	Category   string    `json:"category,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
	IsStarred  bool      `json:"is_starred"`
	IsTrashed  bool      `json:"is_trashed"`
}

type DraftRow struct {
	ID              int64            `json:"id"`
	UserID          int64            `json:"user_id"`
	RecipientEmail  string           `json:"recipient_email"`
	Subject         string           `json:"subject"`
	BodyHTML        string           `json:"body_html"`
	AttachmentsInfo []AttachmentInfo `json:"attachments_info"`
	LastSavedAt     time.Time        `json:"last_saved_at"`
	IsStarred       bool             `json:"is_starred"`
	IsTrashed       bool             `json:"is_trashed"`
}

// FolderItem is one row of the trash or starred view. Type names the table
// the item lives in (inbox, sent or draft) and routes follow-up actions.
type FolderItem struct {
	Type            string           `json:"type"`
	Folder          string           `json:"folder,omitempty"`
	ID              int64            `json:"id"`
	Sender          string           `json:"sender,omitempty"`
	Recipients      []string         `json:"recipients,omitempty"`
	RecipientEmail  string           `json:"recipient_email,omitempty"`
	Subject         string           `json:"subject"`
	PlainBody       string           `json:"plain_body,omitempty"`
	BodyHTML        string           `json:"body_html"`
	AttachmentsInfo []AttachmentInfo `json:"attachments_info,omitempty"`
	ReceivedAt      *time.Time       `json:"received_at,omitempty"`
	LastSavedAt     *time.Time       `json:"last_saved_at,omitempty"`
	IsStarred       bool             `json:"is_starred"`
	IsTrashed       bool             `json:"is_trashed"`
}

// Time returns when the item was received, sent or last saved.
func (f FolderItem) Time() time.Time {
	switch {
	case f.ReceivedAt != nil:
		return *f.ReceivedAt
	case f.LastSavedAt != nil:
		return *f.LastSavedAt
	}
	return time.Time{}
}

type ScheduledRow struct {
	ID          int64            `json:"id"`
	Recipients  []string         `json:"recipients"`
	Subject     string           `json:"subject"`
	BodyHTML    string           `json:"body_html"`
	Attachments []AttachmentInfo `json:"attachments"`
	ScheduledAt time.Time        `json:"scheduled_at"`
	Status      string           `json:"status"`
	LastError   string           `json:"last_error,omitempty"`
}

type SaveDraftRequest struct {
	ID              ID               `json:"id"`
	RecipientEmail  string           `json:"recipient_email"`
	Subject         string           `json:"subject"`
	BodyHTML        string           `json:"body_html"`
	AttachmentsInfo []AttachmentInfo `json:"attachments_info"`
}

type SaveDraftResponse struct {
	Message string `json:"message"`
	DraftID int64  `json:"draftId"`
}

type DraftRef struct {
	DraftID ID `json:"draftId"`
}

type TrashEmailRequest struct {
	EmailID   ID     `json:"emailId"`
	EmailType string `json:"emailType"`
}

type RestoreEmailRequest struct {
	EmailID        ID     `json:"emailId"`
	OriginalFolder string `json:"originalFolder"`
}

type StarDraftRequest struct {
	DraftID   ID   `json:"draftId"`
	IsStarred bool `json:"isStarred"`
}

type StarEmailRequest struct {
	EmailID   ID     `json:"emailId"`
	EmailType string `json:"emailType"`
	IsStarred bool   `json:"isStarred"`
}

// FlagsResponse reports an item's flags after a lifecycle operation.
type FlagsResponse struct {
	Message   string `json:"message"`
	IsStarred bool   `json:"is_starred"`
	IsTrashed bool   `json:"is_trashed"`
}

type Signature struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type SignatureRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Settings is GET /api/settings/general: the settings row plus the
// user's signatures.
type Settings struct {
	MaxPageSize              int         `json:"max_page_size"`
	UndoSendDelay            int         `json:"undo_send_delay"`
	ProfilePictureURL        string      `json:"profile_picture_url"`
	DefaultSignatureNew      NullableID  `json:"default_signature_new"`
	DefaultSignatureReply    NullableID  `json:"default_signature_reply"`
	LabelStarredVisibility   string      `json:"label_starred_visibility"`
	LabelSentVisibility      string      `json:"label_sent_visibility"`
	LabelDraftsVisibility    string      `json:"label_drafts_visibility"`
	LabelScheduledVisibility string      `json:"label_scheduled_visibility"`
	LabelSpamVisibility      string      `json:"label_spam_visibility"`
	LabelTrashVisibility     string      `json:"label_trash_visibility"`
	Signatures               []Signature `json:"signatures"`
}

// SettingsPatch is PATCH /api/settings/general. Absent fields are left
// unchanged; anything not listed here (signatures, profile_picture_url) is
// ignored.
type SettingsPatch struct {
	MaxPageSize              *int       `json:"max_page_size,omitempty"`
	UndoSendDelay            *int       `json:"undo_send_delay,omitempty"`
	DefaultSignatureNew      NullableID `json:"default_signature_new,omitzero"`
	DefaultSignatureReply    NullableID `json:"default_signature_reply,omitzero"`
	LabelStarredVisibility   *string    `json:"label_starred_visibility,omitempty"`
	LabelSentVisibility      *string    `json:"label_sent_visibility,omitempty"`
	LabelDraftsVisibility    *string    `json:"label_drafts_visibility,omitempty"`
	LabelScheduledVisibility *string    `json:"label_scheduled_visibility,omitempty"`
	LabelSpamVisibility      *string    `json:"label_spam_visibility,omitempty"`
	LabelTrashVisibility     *string    `json:"label_trash_visibility,omitempty"`
}

type SettingsResponse struct {
	Message  string    `json:"message"`
	Settings *Settings `json:"settings"`
}

type UploadResponse struct {
	Message           string `json:"message"`
	ProfilePictureURL string `json:"profilePictureUrl"`
}

// QuotaResponse reports the caller's usage of the daily recipient limit.
type QuotaResponse struct {
	CurrentCount int `json:"current_count"`
	Limit        int `json:"limit"`
	Remaining    int `json:"remaining"`
}
