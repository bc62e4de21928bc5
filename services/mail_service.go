package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"webmail/database"
	"webmail/utils"
)

// MailService sends mail through the relay and keeps every user's mailbox.
type MailService struct {
	store  Store
	relay  Relay
	quota  *utils.SendQuota
	logger *slog.Logger
	now    func() time.Time
}

// NewMailService creates a new MailService instance. A nil relay makes every
// immediate send fail as unconfigured; a nil quota disables the daily limit.
func NewMailService(store Store, relay Relay, quota *utils.SendQuota, logger *slog.Logger) *MailService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MailService{
		store:  store,
		relay:  relay,
		quota:  quota,
		logger: logger,
		now:    time.Now,
	}
}

// SendRequest is one compose submission.
type SendRequest struct {
	UserID         int64
	From           string
	To             string // comma separated
	Subject        string
	BodyHTML       string
	Attachments    []Attachment
	ScheduledAt    string
	DraftIDToClear int64
}

// SendResult holds either the stored sent copy or the scheduled row.
type SendResult struct {
	Sent          *database.Email
	Scheduled     *database.ScheduledEmail
	RelayResponse json.RawMessage
}

// Send dispatches req through the relay and stores the sent copy, clearing
// the draft named by DraftIDToClear in the same transaction. The draft is
// only touched once the relay has accepted the message. A ScheduledAt in the
// future stores the message for the scheduler instead.
func (s *MailService) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if strings.TrimSpace(req.To) == "" || strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.BodyHTML) == "" {
		return nil, validationError("To, Subject, and Body are required.")
	}
	recipients, err := ParseRecipients(req.To)
	if err != nil {
		return nil, err
	}

	if req.ScheduledAt != "" {
		at, err := ParseScheduledAt(req.ScheduledAt)
		if err != nil {
			return nil, err
		}
		if at.After(s.now()) {
			return s.schedule(ctx, req, recipients, at)
		}
	}

	msg := OutboundMessage{
		From:        req.From,
		To:          recipients,
		Subject:     req.Subject,
		HTMLBody:    req.BodyHTML,
		PlainBody:   HTMLToText(req.BodyHTML),
		Attachments: req.Attachments,
	}
	res, err := s.deliver(ctx, req.UserID, msg)
	if err != nil {
		s.logger.Error("email dispatch failed",
			"user_id", req.UserID, "recipients", len(recipients), "draft_id", req.DraftIDToClear, "error", err)
		return nil, err
	}

	sent, err := s.store.RecordSent(ctx, &database.Email{
		UserID:     req.UserID,
		Sender:     req.From,
		Recipients: recipients,
		Subject:    req.Subject,
		PlainBody:  msg.PlainBody,
		BodyHTML:   req.BodyHTML,
		ReceivedAt: s.now(),
	}, req.DraftIDToClear)
	if err != nil {
		s.logger.Error("email sent but not stored", "user_id", req.UserID, "error", err)
		e := internalError("Email was sent but could not be stored.", err)
		e.Detail = res.Response
		return nil, e
	}

	s.logger.Info("email sent",
		"user_id", req.UserID, "email_id", sent.ID, "recipients", len(recipients),
		"attachments", len(req.Attachments), "cleared_draft", req.DraftIDToClear)
	return &SendResult{Sent: sent, RelayResponse: res.Response}, nil
}

func (s *MailService) schedule(ctx context.Context, req SendRequest, recipients []string, at time.Time) (*SendResult, error) {
	stored := make(database.StoredAttachments, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		stored = append(stored, database.StoredAttachment{Filename: a.Filename, MimeType: a.ContentType, Content: a.Content})
	}

	row, err := s.store.InsertScheduled(ctx, &database.ScheduledEmail{
		UserID:      req.UserID,
		Sender:      req.From,
		Recipients:  recipients,
		Subject:     req.Subject,
		BodyHTML:    req.BodyHTML,
		Attachments: stored,
		ScheduledAt: at.UTC(),
	}, req.DraftIDToClear)
	if err != nil {
		return nil, storeError(err, "Draft not found")
	}

	s.logger.Info("email scheduled", "user_id", req.UserID, "scheduled_id", row.ID, "scheduled_at", row.ScheduledAt)
	return &SendResult{Scheduled: row}, nil
}

// deliver checks the sender's daily quota and hands msg to the relay.
func (s *MailService) deliver(ctx context.Context, userID int64, msg OutboundMessage) (RelayResult, error) {
	if s.relay == nil {
		return RelayResult{}, unconfiguredError()
	}
	if err := s.quota.Check(ctx, userID, len(msg.To)); err != nil {
		if errors.Is(err, utils.ErrDailyLimitExceeded) {
			return RelayResult{}, newError(KindForbidden, "Daily mail limit exceeded.", err)
		}
		return RelayResult{}, internalError("Failed to check daily mail limit", err)
	}
	return s.relay.Send(ctx, msg)
}

// ParseRecipients splits a comma separated address list, dropping empty
// entries and display names.
func ParseRecipients(to string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(to, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		addr, err := mail.ParseAddress(part)
		if err != nil {
			return nil, newError(KindValidation, fmt.Sprintf("Invalid recipient address: %s", part), err)
		}
		out = append(out, addr.Address)
	}
	if len(out) == 0 {
		return nil, validationError("At least one recipient is required.")
	}
	return out, nil
}

var scheduleLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"}

// ParseScheduledAt accepts RFC 3339 or the datetime-local form
// YYYY-MM-DDTHH:MM, the latter read as UTC.
func ParseScheduledAt(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range scheduleLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, validationError(fmt.Sprintf("Invalid scheduledAt %q", v))
}

// DraftInput is one auto-save of the compose form.
type DraftInput struct {
	ID              int64
	RecipientEmail  string
	Subject         string
	BodyHTML        string
	AttachmentsInfo database.AttachmentInfoList
}

// SaveDraft upserts a draft and returns its id. An id the user does not own
// (or that was deleted meanwhile) results in a new draft.
func (s *MailService) SaveDraft(ctx context.Context, userID int64, in DraftInput) (int64, error) {
	id, err := s.store.SaveDraft(ctx, &database.Draft{
		ID:              in.ID,
		UserID:          userID,
		RecipientEmail:  in.RecipientEmail,
		Subject:         in.Subject,
		BodyHTML:        in.BodyHTML,
		AttachmentsInfo: in.AttachmentsInfo,
		LastSavedAt:     s.now(),
	})
	if err != nil {
		return 0, storeError(err, "Draft not found")
	}
	s.logger.Debug("draft saved", "user_id", userID, "draft_id", id)
	return id, nil
}

// PageFor reads page and limit from q, defaulting the limit to the user's
// max_page_size.
func (s *MailService) PageFor(ctx context.Context, userID int64, q url.Values) database.Page {
	var opts []utils.PageOption
	if settings, err := s.store.GetSettings(ctx, userID); err == nil {
		opts = append(opts, utils.WithDefaultLimit(settings.MaxPageSize))
	} else {
		s.logger.Warn("falling back to default page size", "user_id", userID, "error", err)
	}
	p := utils.GetPageParams(q, opts...)
	return database.Page{Limit: p.Limit, Offset: p.Offset}
}

func (s *MailService) ListEmails(ctx context.Context, userID int64, folder database.Folder, page database.Page) ([]database.Email, error) {
	if folder != database.FolderInbox && folder != database.FolderSent {
		return nil, validationError(`Invalid email type specified. Use "sent" or "inbox".`)
	}
	out, err := s.store.ListEmails(ctx, userID, folder, page)
	if err != nil {
		return nil, internalError(fmt.Sprintf("Failed to fetch %s emails.", folder), err)
	}
	return out, nil
}

func (s *MailService) ListDrafts(ctx context.Context, userID int64, page database.Page) ([]database.Draft, error) {
	out, err := s.store.ListDrafts(ctx, userID, page)
	if err != nil {
		return nil, internalError("Failed to fetch drafts.", err)
	}
	return out, nil
}

// ListTrash aggregates trashed emails and drafts, newest first.
func (s *MailService) ListTrash(ctx context.Context, userID int64, page database.Page) ([]database.FolderItem, error) {
	out, err := s.store.ListTrash(ctx, userID, page)
	if err != nil {
		return nil, internalError("Failed to fetch trash.", err)
	}
	return out, nil
}

// ListStarred aggregates starred emails and drafts, trashed ones included.
func (s *MailService) ListStarred(ctx context.Context, userID int64, page database.Page) ([]database.FolderItem, error) {
	out, err := s.store.ListStarred(ctx, userID, page)
	if err != nil {
		return nil, internalError("Failed to fetch starred items.", err)
	}
	return out, nil
}

func (s *MailService) ListScheduled(ctx context.Context, userID int64, page database.Page) ([]database.ScheduledEmail, error) {
	out, err := s.store.ListScheduled(ctx, userID, page)
	if err != nil {
		return nil, internalError("Failed to fetch scheduled emails.", err)
	}
	return out, nil
}

// CancelScheduled drops a scheduled email the scheduler has not picked up yet.
func (s *MailService) CancelScheduled(ctx context.Context, userID, id int64) error {
	if err := s.store.CancelScheduled(ctx, userID, id); err != nil {
		return storeError(err, "Scheduled email not found")
	}
	s.logger.Info("scheduled email cancelled", "user_id", userID, "scheduled_id", id)
	return nil
}

// ReceiveInbound stores msg in the recipient's inbox. Mail for an address
// with no account is dropped and reported as (nil, nil) so the relay does
// not retry it.
func (s *MailService) ReceiveInbound(ctx context.Context, msg *InboundMessage) (*database.Email, error) {
	user, err := s.store.UserByEmail(ctx, msg.To)
	if errors.Is(err, database.ErrNotFound) {
		s.logger.Info("no user for inbound recipient, discarding", "recipient", msg.To, "sender", msg.From)
		return nil, nil
	}
	if err != nil {
		return nil, internalError("Error processing inbound email.", err)
	}

	plain := msg.PlainBody
	if strings.TrimSpace(plain) == "" && msg.HTMLBody != "" {
		plain = HTMLToText(msg.HTMLBody)
	}

	stored, err := s.store.InsertReceived(ctx, &database.Email{
		UserID:     user.ID,
		Sender:     msg.From,
		Recipients: []string{msg.To},
		Subject:    msg.Subject,
		PlainBody:  plain,
		BodyHTML:   msg.HTMLBody,
		Category:   "primary",
		ReceivedAt: s.now(),
	})
	if err != nil {
		return nil, internalError("Error processing inbound email.", err)
	}

	s.logger.Info("inbound email stored", "user_id", user.ID, "email_id", stored.ID, "sender", msg.From)
	return stored, nil
}

// Quota reports the user's recipient count for the last 24 hours and the
// daily limit. A limit of 0 means sending is not limited.
func (s *MailService) Quota(ctx context.Context, userID int64) (used, limit int, err error) {
	used, err = s.quota.Used(ctx, userID)
	if err != nil {
		return 0, 0, internalError("Internal server error getting daily limit", err)
	}
	return used, s.quota.Limit(), nil
}
