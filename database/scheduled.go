package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const scheduledColumns = "id, user_id, sender, recipients, subject, body_html, attachments, scheduled_at, status, last_error, sent_email_id, claimed_at, created_at"

// InsertScheduled stores a pending scheduled email and, when clearDraftID is
// non-zero, deletes that draft in the same transaction.
func (s *Store) InsertScheduled(ctx context.Context, e *ScheduledEmail, clearDraftID int64) (*ScheduledEmail, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var out ScheduledEmail
	err = tx.GetContext(ctx, &out,
		`INSERT INTO scheduled_emails (user_id, sender, recipients, subject, body_html, attachments, scheduled_at, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+scheduledColumns,
		e.UserID, e.Sender, e.Recipients, e.Subject, e.BodyHTML, e.Attachments, e.ScheduledAt, ScheduledPending,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting scheduled email: %w", err)
	}

	if clearDraftID != 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM drafts WHERE id = $1 AND user_id = $2`, clearDraftID, e.UserID); err != nil {
			return nil, fmt.Errorf("clearing draft %d: %w", clearDraftID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing scheduled email: %w", err)
	}
	return &out, nil
}

// ListScheduled returns the user's scheduled emails that have not been sent, soonest first.
func (s *Store) ListScheduled(ctx context.Context, userID int64, page Page) ([]ScheduledEmail, error) {
	out := []ScheduledEmail{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+scheduledColumns+` FROM scheduled_emails
		 WHERE user_id = $1 AND status <> $2
		 ORDER BY scheduled_at ASC, id ASC LIMIT $3 OFFSET $4`,
		userID, ScheduledSent, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing scheduled emails: %w", err)
	}
	return out, nil
}

// CancelScheduled removes a scheduled email that is still pending.
func (s *Store) CancelScheduled(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scheduled_emails WHERE id = $1 AND user_id = $2 AND status = $3`,
		id, userID, ScheduledPending,
	)
	if err != nil {
		return fmt.Errorf("cancelling scheduled email: %w", err)
	}
	return requireAffected(res)
}

// ClaimDueScheduled moves up to limit due rows from pending to sending,
// stamping claimed_at with now, and returns them. Rows locked by another
// claimer are skipped.
func (s *Store) ClaimDueScheduled(ctx context.Context, now time.Time, limit int) ([]ScheduledEmail, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	due := []ScheduledEmail{}
	err = tx.SelectContext(ctx, &due,
		`SELECT `+scheduledColumns+` FROM scheduled_emails
		 WHERE status = $1 AND scheduled_at <= $2
		 ORDER BY scheduled_at ASC, id ASC
		 LIMIT $3
		 FOR UPDATE SKIP LOCKED`,
		ScheduledPending, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("selecting due scheduled emails: %w", err)
	}
	if len(due) == 0 {
		return due, nil
	}

	ids := make([]int64, len(due))
	for i := range due {
		ids[i] = due[i].ID
		due[i].Status = ScheduledSending
		due[i].ClaimedAt = sql.NullTime{Time: now, Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE scheduled_emails SET status = $1, claimed_at = $2 WHERE id = ANY($3)`,
		ScheduledSending, now, pq.Array(ids),
	); err != nil {
		return nil, fmt.Errorf("claiming scheduled emails: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}
	return due, nil
}

// CompleteScheduled records the sent copy of a dispatched scheduled email.
func (s *Store) CompleteScheduled(ctx context.Context, id int64, sent *Email) (*Email, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var out Email
	err = tx.GetContext(ctx, &out,
		`INSERT INTO sent_emails (user_id, sender, recipients, subject, plain_body, body_html, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+emailColumns,
		sent.UserID, sent.Sender, sent.Recipients, sent.Subject, sent.PlainBody, sent.BodyHTML, sent.ReceivedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting sent email: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE scheduled_emails SET status = $1, sent_email_id = $2, last_error = '', attachments = '[]' WHERE id = $3`,
		ScheduledSent, out.ID, id,
	)
	if err != nil {
		return nil, fmt.Errorf("marking scheduled email sent: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing scheduled send: %w", err)
	}
	return &out, nil
}

// FailScheduled marks a claimed scheduled email as failed. Rows no longer
// sending are left alone.
func (s *Store) FailScheduled(ctx context.Context, id int64, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_emails SET status = $1, last_error = $2 WHERE id = $3 AND status = $4`,
		ScheduledFailed, reason, id, ScheduledSending,
	)
	if err != nil {
		return fmt.Errorf("marking scheduled email failed: %w", err)
	}
	return requireAffected(res)
}

// ReleaseScheduled returns claimed rows that were never handed to the relay
// to pending.
func (s *Store) ReleaseScheduled(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_emails SET status = $1, claimed_at = NULL WHERE id = ANY($2) AND status = $3`,
		ScheduledPending, pq.Array(ids), ScheduledSending,
	)
	if err != nil {
		return fmt.Errorf("releasing scheduled emails: %w", err)
	}
	return nil
}

// FailStaleScheduled marks rows claimed before claimedBefore and still
// sending as failed, returning how many it changed. Whether the relay saw
// them is unknown, so they are not retried.
func (s *Store) FailStaleScheduled(ctx context.Context, claimedBefore time.Time, reason string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_emails SET status = $1, last_error = $2
		 WHERE status = $3 AND (claimed_at IS NULL OR claimed_at < $4)`,
		ScheduledFailed, reason, ScheduledSending, claimedBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("failing stale scheduled emails: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failing stale scheduled emails: %w", err)
	}
	return int(n), nil
}
