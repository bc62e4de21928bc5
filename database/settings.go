package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const settingsColumns = `user_id, max_page_size, undo_send_delay, profile_picture_url,
	default_signature_new, default_signature_reply,
	label_starred_visibility, label_sent_visibility, label_drafts_visibility,
	label_scheduled_visibility, label_spam_visibility, label_trash_visibility, updated_at`

// GetSettings returns the user's settings. Accounts that predate the
// settings row get the default one on first read.
func (s *Store) GetSettings(ctx context.Context, userID int64) (*Settings, error) {
	st, err := s.readSettings(ctx, userID)
	if !errors.Is(err, ErrNotFound) {
		return st, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO user_settings (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID,
	); err != nil {
		return nil, fmt.Errorf("creating settings row: %w", err)
	}
	return s.readSettings(ctx, userID)
}

func (s *Store) readSettings(ctx context.Context, userID int64) (*Settings, error) {
	var st Settings
	if err := s.db.GetContext(ctx, &st, `SELECT `+settingsColumns+` FROM user_settings WHERE user_id = $1`, userID); err != nil {
		return nil, notFound(err, "reading settings")
	}
	return &st, nil
}

// UpdateSettings applies the non-nil fields of p and returns the new row.
func (s *Store) UpdateSettings(ctx context.Context, userID int64, p SettingsPatch) (*Settings, error) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if p.MaxPageSize != nil {
		add("max_page_size", *p.MaxPageSize)
	}
	if p.UndoSendDelay != nil {
		add("undo_send_delay", *p.UndoSendDelay)
	}
	if p.ProfilePictureURL != nil {
		add("profile_picture_url", *p.ProfilePictureURL)
	}
	if p.DefaultSignatureNew != nil {
		add("default_signature_new", *p.DefaultSignatureNew)
	}
	if p.DefaultSignatureReply != nil {
		add("default_signature_reply", *p.DefaultSignatureReply)
	}
	for _, col := range LabelColumns {
		if v, ok := p.Labels[col]; ok {
			add(col, v)
		}
	}

	if len(sets) == 0 {
		return s.GetSettings(ctx, userID)
	}

	args = append(args, userID)
	query := fmt.Sprintf(
		`UPDATE user_settings SET %s, updated_at = NOW() WHERE user_id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), settingsColumns,
	)
	var st Settings
	if err := s.db.GetContext(ctx, &st, query, args...); err != nil {
		return nil, notFound(err, "updating settings")
	}
	return &st, nil
}

const signatureColumns = "id, user_id, name, content, created_at"

func (s *Store) ListSignatures(ctx context.Context, userID int64) ([]Signature, error) {
	sigs := []Signature{}
	err := s.db.SelectContext(ctx, &sigs,
		`SELECT `+signatureColumns+` FROM signatures WHERE user_id = $1 ORDER BY id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing signatures: %w", err)
	}
	return sigs, nil
}

func (s *Store) CreateSignature(ctx context.Context, sig *Signature) (*Signature, error) {
	var out Signature
	err := s.db.GetContext(ctx, &out,
		`INSERT INTO signatures (user_id, name, content) VALUES ($1, $2, $3) RETURNING `+signatureColumns,
		sig.UserID, sig.Name, sig.Content,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting signature: %w", err)
	}
	return &out, nil
}

func (s *Store) UpdateSignature(ctx context.Context, sig *Signature) (*Signature, error) {
	var out Signature
	err := s.db.GetContext(ctx, &out,
		`UPDATE signatures SET name = $1, content = $2 WHERE id = $3 AND user_id = $4 RETURNING `+signatureColumns,
		sig.Name, sig.Content, sig.ID, sig.UserID,
	)
	if err != nil {
		return nil, notFound(err, "updating signature")
	}
	return &out, nil
}

// DeleteSignature removes a signature; settings defaults pointing at it are
// cleared by the foreign key.
func (s *Store) DeleteSignature(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM signatures WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting signature: %w", err)
	}
	return requireAffected(res)
}
