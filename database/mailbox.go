package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const emailColumns = "id, user_id, sender, recipients, subject, plain_body, body_html, received_at, is_starred, is_trashed"

// ListEmails returns the non-trashed mail of one email folder, newest first.
func (s *Store) ListEmails(ctx context.Context, userID int64, folder Folder, page Page) ([]Email, error) {
	if folder == FolderDraft {
		return nil, fmt.Errorf("drafts are not emails")
	}
	table, err := folder.table()
	if err != nil {
		return nil, err
	}
	cols := emailColumns
	if folder == FolderInbox {
		cols += ", category"
	}

	query := fmt.Sprintf(
		`SELECT %s FROM %s WHERE user_id = $1 AND NOT is_trashed ORDER BY received_at DESC, id DESC LIMIT $2 OFFSET $3`,
		cols, table,
	)
	emails := []Email{}
	if err := s.db.SelectContext(ctx, &emails, query, userID, page.Limit, page.Offset); err != nil {
		return nil, fmt.Errorf("listing %s emails: %w", folder, err)
	}
	return emails, nil
}

// InsertReceived stores one inbound email.
func (s *Store) InsertReceived(ctx context.Context, e *Email) (*Email, error) {
	var out Email
	err := s.db.GetContext(ctx, &out,
		`INSERT INTO received_emails (user_id, sender, recipients, subject, plain_body, body_html, category, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+emailColumns+`, category`,
		e.UserID, e.Sender, e.Recipients, e.Subject, e.PlainBody, e.BodyHTML, e.Category, e.ReceivedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting received email: %w", err)
	}
	return &out, nil
}

// RecordSent inserts the sent copy and, when clearDraftID is non-zero,
// deletes that draft in the same transaction.
func (s *Store) RecordSent(ctx context.Context, e *Email, clearDraftID int64) (*Email, error) {
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
		e.UserID, e.Sender, e.Recipients, e.Subject, e.PlainBody, e.BodyHTML, e.ReceivedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting sent email: %w", err)
	}

	if clearDraftID != 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM drafts WHERE id = $1 AND user_id = $2`, clearDraftID, e.UserID); err != nil {
			return nil, fmt.Errorf("clearing draft %d: %w", clearDraftID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing sent email: %w", err)
	}
	return &out, nil
}

// RecipientsSentSince counts recipients across everything the user sent after since.
func (s *Store) RecipientsSentSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COALESCE(SUM(cardinality(recipients)), 0) FROM sent_emails WHERE user_id = $1 AND received_at >= $2`,
		userID, since,
	)
	if err != nil {
		return 0, fmt.Errorf("counting sent recipients: %w", err)
	}
	return count, nil
}

const draftColumns = "id, user_id, recipient_email, subject, body_html, attachments_info, last_saved_at, is_starred, is_trashed"

// SaveDraft updates the draft with d.ID when the user owns it, otherwise
// inserts a new row. It returns the id of the saved draft.
func (s *Store) SaveDraft(ctx context.Context, d *Draft) (int64, error) {
	var id int64
	if d.ID != 0 {
		err := s.db.GetContext(ctx, &id,
			`UPDATE drafts SET recipient_email = $1, subject = $2, body_html = $3, attachments_info = $4, last_saved_at = $5
			 WHERE id = $6 AND user_id = $7 RETURNING id`,
			d.RecipientEmail, d.Subject, d.BodyHTML, d.AttachmentsInfo, d.LastSavedAt, d.ID, d.UserID,
		)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("updating draft: %w", err)
		}
	}

	err := s.db.GetContext(ctx, &id,
		`INSERT INTO drafts (user_id, recipient_email, subject, body_html, attachments_info, last_saved_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		d.UserID, d.RecipientEmail, d.Subject, d.BodyHTML, d.AttachmentsInfo, d.LastSavedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting draft: %w", err)
	}
	return id, nil
}

// ListDrafts returns the non-trashed drafts, most recently saved first.
func (s *Store) ListDrafts(ctx context.Context, userID int64, page Page) ([]Draft, error) {
	drafts := []Draft{}
	err := s.db.SelectContext(ctx, &drafts,
		`SELECT `+draftColumns+` FROM drafts WHERE user_id = $1 AND NOT is_trashed
		 ORDER BY last_saved_at DESC, id DESC LIMIT $2 OFFSET $3`,
		userID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing drafts: %w", err)
	}
	return drafts, nil
}

// ItemFlags reads the starred/trashed flags of one item.
func (s *Store) ItemFlags(ctx context.Context, userID int64, folder Folder, id int64) (Flags, error) {
	table, err := folder.table()
	if err != nil {
		return Flags{}, err
	}
	var f Flags
	err = s.db.GetContext(ctx, &f,
		fmt.Sprintf(`SELECT is_starred, is_trashed FROM %s WHERE id = $1 AND user_id = $2`, table),
		id, userID,
	)
	if err != nil {
		return Flags{}, notFound(err, "reading item flags")
	}
	return f, nil
}

// UpdateFlags writes next only if the row is still in the trashed state of
// prev; a row that moved in between reports ErrNotFound.
func (s *Store) UpdateFlags(ctx context.Context, userID int64, folder Folder, id int64, prev, next Flags) error {
	table, err := folder.table()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET is_starred = $1, is_trashed = $2 WHERE id = $3 AND user_id = $4 AND is_trashed = $5`, table),
		next.Starred, next.Trashed, id, userID, prev.Trashed,
	)
	if err != nil {
		return fmt.Errorf("updating item flags: %w", err)
	}
	return requireAffected(res)
}

// DeleteTrashed hard-deletes an item that is in the trash.
func (s *Store) DeleteTrashed(ctx context.Context, userID int64, folder Folder, id int64) error {
	table, err := folder.table()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND user_id = $2 AND is_trashed`, table),
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return requireAffected(res)
}

const folderItemsQuery = `
SELECT 'inbox' AS folder, id, sender, recipients, '' AS recipient_email, subject, plain_body, body_html,
       '[]'::jsonb AS attachments_info, received_at AS item_time, is_starred, is_trashed
  FROM received_emails WHERE user_id = $1 AND %[1]s
UNION ALL
SELECT 'sent', id, sender, recipients, '', subject, plain_body, body_html,
       '[]'::jsonb, received_at, is_starred, is_trashed
  FROM sent_emails WHERE user_id = $1 AND %[1]s
UNION ALL
SELECT 'draft', id, '', '{}'::text[], recipient_email, subject, '', body_html,
       attachments_info, last_saved_at, is_starred, is_trashed
  FROM drafts WHERE user_id = $1 AND %[1]s
ORDER BY item_time DESC, id DESC
LIMIT $2 OFFSET $3`

// ListTrash aggregates trashed items of all three tables.
func (s *Store) ListTrash(ctx context.Context, userID int64, page Page) ([]FolderItem, error) {
	return s.listFolderItems(ctx, userID, "is_trashed", page)
}

// ListStarred aggregates starred items of all three tables, trashed ones included.
func (s *Store) ListStarred(ctx context.Context, userID int64, page Page) ([]FolderItem, error) {
	return s.listFolderItems(ctx, userID, "is_starred", page)
}

func (s *Store) listFolderItems(ctx context.Context, userID int64, predicate string, page Page) ([]FolderItem, error) {
	items := []FolderItem{}
	query := fmt.Sprintf(folderItemsQuery, predicate)
	if err := s.db.SelectContext(ctx, &items, query, userID, page.Limit, page.Offset); err != nil {
		return nil, fmt.Errorf("listing items where %s: %w", predicate, err)
	}
	return items, nil
}
