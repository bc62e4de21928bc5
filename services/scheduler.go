package services

import (
	"context"
	"log/slog"
	"time"

	"webmail/database"
)

const (
	// dispatchTimeout bounds one scheduled email's relay call.
	dispatchTimeout = time.Minute
	// bookkeepingTimeout bounds the status writes after a relay call. They
	// run detached from shutdown so a claimed row always leaves sending.
	bookkeepingTimeout = 10 * time.Second
)

const staleClaimReason = "dispatch interrupted before the relay result was recorded"

// Scheduler dispatches scheduled emails once their time has come.
type Scheduler struct {
	mail     *MailService
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

// NewScheduler polls every interval, claiming at most 50 due emails per round.
func NewScheduler(mail *MailService, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{mail: mail, interval: interval, batch: 50, logger: logger}
}

// Run polls until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduler round failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce fails stale claims, then claims the due emails and dispatches
// them, returning how many were sent. A relay failure marks the email
// failed; it is not retried. Claimed rows not yet handed to the relay when
// ctx ends go back to pending.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	now := s.mail.now()
	stale, err := s.mail.store.FailStaleScheduled(ctx, now.Add(-s.staleAfter()), staleClaimReason)
	if err != nil {
		return 0, err
	}
	if stale > 0 {
		s.logger.Warn("failed stale scheduled emails", "count", stale)
	}

	due, err := s.mail.store.ClaimDueScheduled(ctx, now, s.batch)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range due {
		if ctx.Err() != nil {
			s.release(ctx, due[i:])
			break
		}
		if s.dispatch(ctx, &due[i]) {
			sent++
		}
	}
	if len(due) > 0 {
		s.logger.Info("scheduled emails processed", "claimed", len(due), "sent", sent)
	}
	return sent, nil
}

// staleAfter is how long a claim may stay sending. A batch is dispatched
// serially, so the last row of a full batch may wait batch dispatches.
func (s *Scheduler) staleAfter() time.Duration {
	return time.Duration(s.batch+1) * dispatchTimeout
}

func (s *Scheduler) release(ctx context.Context, rows []database.ScheduledEmail) {
	ids := make([]int64, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	bctx, cancel := bookkeeping(ctx)
	defer cancel()
	if err := s.mail.store.ReleaseScheduled(bctx, ids); err != nil {
		s.logger.Error("releasing scheduled emails", "ids", ids, "error", err)
		return
	}
	s.logger.Info("released unsent scheduled emails", "count", len(ids))
}

// bookkeeping returns a context that survives ctx's cancellation.
func bookkeeping(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
}

func (s *Scheduler) dispatch(ctx context.Context, e *database.ScheduledEmail) bool {
	sendCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	msg := OutboundMessage{
		From:      e.Sender,
		To:        e.Recipients,
		Subject:   e.Subject,
		HTMLBody:  e.BodyHTML,
		PlainBody: HTMLToText(e.BodyHTML),
	}
	for _, a := range e.Attachments {
		msg.Attachments = append(msg.Attachments, Attachment{Filename: a.Filename, ContentType: a.MimeType, Content: a.Content})
	}

	_, err := s.mail.deliver(sendCtx, e.UserID, msg)

	bctx, bcancel := bookkeeping(ctx)
	defer bcancel()
	if err != nil {
		s.logger.Error("scheduled email failed", "scheduled_id", e.ID, "user_id", e.UserID, "error", err)
		if ferr := s.mail.store.FailScheduled(bctx, e.ID, err.Error()); ferr != nil {
			s.logger.Error("marking scheduled email failed", "scheduled_id", e.ID, "error", ferr)
		}
		return false
	}

	stored, err := s.mail.store.CompleteScheduled(bctx, e.ID, &database.Email{
		UserID:     e.UserID,
		Sender:     e.Sender,
		Recipients: e.Recipients,
		Subject:    e.Subject,
		PlainBody:  msg.PlainBody,
		BodyHTML:   e.BodyHTML,
		ReceivedAt: s.mail.now(),
	})
	if err != nil {
		s.logger.Error("scheduled email sent but not stored", "scheduled_id", e.ID, "error", err)
		return true
	}
	s.logger.Info("scheduled email sent", "scheduled_id", e.ID, "email_id", stored.ID, "user_id", e.UserID)
	return true
}
