package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"webmail/api"
)

// Collection is one list the Mailbox mirrors.
type Collection string

const (
	Inbox     Collection = "inbox"
	Sent      Collection = "sent"
	Drafts    Collection = "drafts"
	Trash     Collection = "trash"
	Starred   Collection = "starred"
	Scheduled Collection = "scheduled"
)

// AllCollections is the load order used by Mailbox.Load.
var AllCollections = []Collection{Inbox, Sent, Drafts, Trash, Starred, Scheduled}

// Action names one lifecycle transition.
type Action string

const (
	ActionSend            Action = "send"
	ActionSchedule        Action = "schedule"
	ActionSaveDraft       Action = "save_draft"
	ActionTrashDraft      Action = "trash_draft"
	ActionTrashEmail      Action = "trash_email"
	ActionRestoreDraft    Action = "restore_draft"
	ActionRestoreEmail    Action = "restore_email"
	ActionDeleteDraft     Action = "delete_draft"
	ActionDeleteEmail     Action = "delete_email"
	ActionStarDraft       Action = "star_draft"
	ActionStarEmail       Action = "star_email"
	ActionCancelScheduled Action = "cancel_scheduled"
)

// emailFolder stands for the inbox or sent folder the email lives in.
const emailFolder Collection = "$folder"

// affects lists what each action can change. Trash and starred views carry
// the item flags, so anything touching an item that may show up there
// refetches them too.
var affects = map[Action][]Collection{
	ActionSend:            {Sent, Drafts, Trash, Starred},
	ActionSchedule:        {Scheduled, Drafts, Trash, Starred},
	ActionSaveDraft:       {Drafts, Starred},
	ActionTrashDraft:      {Drafts, Trash, Starred},
	ActionTrashEmail:      {emailFolder, Trash, Starred},
	ActionRestoreDraft:    {Drafts, Trash, Starred},
	ActionRestoreEmail:    {emailFolder, Trash, Starred},
	ActionDeleteDraft:     {Trash, Starred},
	ActionDeleteEmail:     {Trash, Starred},
	ActionStarDraft:       {Drafts, Trash, Starred},
	ActionStarEmail:       {emailFolder, Trash, Starred},
	ActionCancelScheduled: {Scheduled},
}

// Affected returns the collections to refetch after action on an item in
// folder ("inbox" or "sent"; ignored for draft actions).
func Affected(action Action, folder string) []Collection {
	cols := affects[action]
	out := make([]Collection, 0, len(cols))
	for _, c := range cols {
		if c == emailFolder {
			c = Collection(folder)
		}
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// Mailbox keeps the signed-in user's lists and resynchronizes them from the
// server after every action.
type Mailbox struct {
	c    *Client
	opts ListOptions

	mu        sync.RWMutex
	inbox     []api.EmailRow
	sent      []api.EmailRow
	drafts    []api.DraftRow
	trash     []api.FolderItem
	starred   []api.FolderItem
	scheduled []api.ScheduledRow
}

func NewMailbox(c *Client, opts ListOptions) *Mailbox {
	return &Mailbox{c: c, opts: opts}
}

// Load fetches every collection.
func (m *Mailbox) Load(ctx context.Context) error {
	return m.Refresh(ctx, AllCollections...)
}

// Refresh refetches cols concurrently. Collections that fetched fine are
// kept even when another one fails.
func (m *Mailbox) Refresh(ctx context.Context, cols ...Collection) error {
	errs := make([]error, len(cols))
	var wg sync.WaitGroup
	for i, col := range cols {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.fetch(ctx, col); err != nil {
				errs[i] = fmt.Errorf("refresh %s: %w", col, err)
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (m *Mailbox) fetch(ctx context.Context, col Collection) error {
	switch col {
	case Inbox, Sent:
		rows, err := m.c.Emails(ctx, string(col), m.opts)
		if err != nil {
			return err
		}
		m.mu.Lock()
		if col == Inbox {
			m.inbox = rows
		} else {
			m.sent = rows
		}
		m.mu.Unlock()
	case Drafts:
		rows, err := m.c.Drafts(ctx, m.opts)
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.drafts = rows
		m.mu.Unlock()
	case Trash, Starred:
		list := m.c.Trash
		if col == Starred {
			list = m.c.Starred
		}
		rows, err := list(ctx, m.opts)
		if err != nil {
			return err
		}
		m.mu.Lock()
		if col == Trash {
			m.trash = rows
		} else {
			m.starred = rows
		}
		m.mu.Unlock()
	case Scheduled:
		rows, err := m.c.Scheduled(ctx, m.opts)
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.scheduled = rows
		m.mu.Unlock()
	default:
		return fmt.Errorf("unknown collection %q", col)
	}
	return nil
}

func (m *Mailbox) after(ctx context.Context, action Action, folder string) error {
	return m.Refresh(ctx, Affected(action, folder)...)
}

func (m *Mailbox) Inbox() []api.EmailRow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.inbox)
}

func (m *Mailbox) Sent() []api.EmailRow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.sent)
}

func (m *Mailbox) Drafts() []api.DraftRow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.drafts)
}

func (m *Mailbox) Trash() []api.FolderItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.trash)
}

func (m *Mailbox) Starred() []api.FolderItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.starred)
}

func (m *Mailbox) Scheduled() []api.ScheduledRow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.scheduled)
}

// Send sends or schedules in. A failed send refetches nothing, so the draft
// stays where it was.
func (m *Mailbox) Send(ctx context.Context, in SendInput) (*api.SendEmailResponse, error) {
	resp, err := m.c.Send(ctx, in)
	if err != nil {
		return nil, err
	}
	action := ActionSend
	if resp.Scheduled != nil {
		action = ActionSchedule
	}
	return resp, m.after(ctx, action, "")
}

func (m *Mailbox) SaveDraft(ctx context.Context, d api.SaveDraftRequest) (int64, error) {
	id, err := m.c.SaveDraft(ctx, d)
	if err != nil {
		return 0, err
	}
	return id, m.after(ctx, ActionSaveDraft, "")
}

func (m *Mailbox) TrashDraft(ctx context.Context, id int64) error {
	if _, err := m.c.TrashDraft(ctx, id); err != nil {
		return err
	}
	return m.after(ctx, ActionTrashDraft, "")
}

func (m *Mailbox) TrashEmail(ctx context.Context, id int64, folder string) error {
	if _, err := m.c.TrashEmail(ctx, id, folder); err != nil {
		return err
	}
	return m.after(ctx, ActionTrashEmail, folder)
}

func (m *Mailbox) RestoreDraft(ctx context.Context, id int64) error {
	if _, err := m.c.RestoreDraft(ctx, id); err != nil {
		return err
	}
	return m.after(ctx, ActionRestoreDraft, "")
}

func (m *Mailbox) RestoreEmail(ctx context.Context, id int64, folder string) error {
	if _, err := m.c.RestoreEmail(ctx, id, folder); err != nil {
		return err
	}
	return m.after(ctx, ActionRestoreEmail, folder)
}

func (m *Mailbox) DeleteDraft(ctx context.Context, id int64) error {
	if err := m.c.DeleteDraft(ctx, id); err != nil {
		return err
	}
	return m.after(ctx, ActionDeleteDraft, "")
}

func (m *Mailbox) DeleteEmail(ctx context.Context, id int64, folder string) error {
	if err := m.c.DeleteEmail(ctx, id, folder); err != nil {
		return err
	}
	return m.after(ctx, ActionDeleteEmail, folder)
}

func (m *Mailbox) StarDraft(ctx context.Context, id int64, starred bool) error {
	if _, err := m.c.StarDraft(ctx, id, starred); err != nil {
		return err
	}
	return m.after(ctx, ActionStarDraft, "")
}

func (m *Mailbox) StarEmail(ctx context.Context, id int64, folder string, starred bool) error {
	if _, err := m.c.StarEmail(ctx, id, folder, starred); err != nil {
		return err
	}
	return m.after(ctx, ActionStarEmail, folder)
}

func (m *Mailbox) CancelScheduled(ctx context.Context, id int64) error {
	if err := m.c.CancelScheduled(ctx, id); err != nil {
		return err
	}
	return m.after(ctx, ActionCancelScheduled, "")
}

// TrashItem, RestoreItem, DeleteItem and StarItem route a trash or starred
// row to the draft or email action by its Type.

func (m *Mailbox) TrashItem(ctx context.Context, it api.FolderItem) error {
	if it.Type == "draft" {
		return m.TrashDraft(ctx, it.ID)
	}
	return m.TrashEmail(ctx, it.ID, it.Type)
}

func (m *Mailbox) RestoreItem(ctx context.Context, it api.FolderItem) error {
	if it.Type == "draft" {
		return m.RestoreDraft(ctx, it.ID)
	}
	return m.RestoreEmail(ctx, it.ID, it.Type)
}

func (m *Mailbox) DeleteItem(ctx context.Context, it api.FolderItem) error {
	if it.Type == "draft" {
		return m.DeleteDraft(ctx, it.ID)
	}
	return m.DeleteEmail(ctx, it.ID, it.Type)
}

func (m *Mailbox) StarItem(ctx context.Context, it api.FolderItem, starred bool) error {
	if it.Type == "draft" {
		return m.StarDraft(ctx, it.ID, starred)
	}
	return m.StarEmail(ctx, it.ID, it.Type, starred)
}
