package services

import (
	"context"
	"errors"
	"fmt"

	"webmail/database"
)

// Op is a lifecycle operation on an existing mailbox item.
type Op string

const (
	OpTrash   Op = "trash"
	OpRestore Op = "restore"
	OpDelete  Op = "delete"
	OpStar    Op = "star"
	OpUnstar  Op = "unstar"
)

var (
	// ErrAlreadyTrashed rejects moving a trashed item to the trash again.
	ErrAlreadyTrashed = errors.New("item is already in the trash")
	// ErrNotTrashed rejects restoring or deleting an item outside the trash.
	ErrNotTrashed = errors.New("item is not in the trash")
	ErrUnknownOp  = errors.New("unknown operation")
)

// Apply returns the flags an item has after op, or an error when op is not
// allowed from f. Starred is independent of Trashed: starring works in the
// trash and trashing keeps the star.
func Apply(f database.Flags, op Op) (database.Flags, error) {
	switch op {
	case OpTrash:
		if f.Trashed {
			return f, ErrAlreadyTrashed
		}
		f.Trashed = true
	case OpRestore:
		if !f.Trashed {
			return f, ErrNotTrashed
		}
		f.Trashed = false
	case OpDelete:
		if !f.Trashed {
			return f, ErrNotTrashed
		}
	case OpStar:
		f.Starred = true
	case OpUnstar:
		f.Starred = false
	default:
		return f, fmt.Errorf("%w %q", ErrUnknownOp, op)
	}
	return f, nil
}

// StarOp maps a requested starred value to its operation.
func StarOp(starred bool) Op {
	if starred {
		return OpStar
	}
	return OpUnstar
}

// Transition applies op to the item folder/id owned by userID. Delete
// removes the row; every other op rewrites the flags guarded by the trashed
// state that was read, so a concurrent move surfaces as not found.
func (s *MailService) Transition(ctx context.Context, userID int64, folder database.Folder, id int64, op Op) (database.Flags, error) {
	current, err := s.store.ItemFlags(ctx, userID, folder, id)
	if err != nil {
		return database.Flags{}, storeError(err, fmt.Sprintf("%s not found", itemNoun(folder)))
	}

	next, err := Apply(current, op)
	switch {
	case errors.Is(err, ErrAlreadyTrashed):
		return current, newError(KindConflict, fmt.Sprintf("%s is already in the trash", itemNoun(folder)), err)
	case errors.Is(err, ErrNotTrashed):
		return current, newError(KindNotFound, fmt.Sprintf("%s not found in trash", itemNoun(folder)), err)
	case err != nil:
		return current, newError(KindValidation, err.Error(), err)
	}

	if op == OpDelete {
		err = s.store.DeleteTrashed(ctx, userID, folder, id)
	} else {
		err = s.store.UpdateFlags(ctx, userID, folder, id, current, next)
	}
	if err != nil {
		return current, storeError(err, fmt.Sprintf("%s not found", itemNoun(folder)))
	}

	s.logger.Info("mailbox item transitioned",
		"user_id", userID, "folder", folder, "id", id, "op", op,
		"starred", next.Starred, "trashed", next.Trashed)
	return next, nil
}

func itemNoun(folder database.Folder) string {
	if folder == database.FolderDraft {
		return "Draft"
	}
	return "Email"
}

// storeError maps store sentinel errors onto the service taxonomy.
func storeError(err error, notFoundMsg string) error {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return notFoundError(notFoundMsg)
	case errors.Is(err, database.ErrDuplicate):
		return newError(KindConflict, "Record already exists", err)
	}
	return internalError("Database error", err)
}
