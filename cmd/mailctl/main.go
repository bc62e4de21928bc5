// Command mailctl is a small operator CLI for the webmail API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"webmail/api"
	"webmail/client"
	"webmail/config"
)

const usage = `usage: mailctl <command> [flags]

commands:
  login    -email ADDR          sign in and remember the token
  logout                        forget the stored token
  list     -folder NAME         inbox, sent, drafts, trash, starred or scheduled
  send     -to -subject -body   send now, or later with -at
  trash    -id N -type T        move an inbox, sent or draft item to the trash
  restore  -id N -type T        take an item out of the trash
  star     -id N -type T        star an item (-off to unstar)
  quota                         show today's sending quota
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.LoadClientConfig()
	if err := run(ctx, cfg.BackendURL, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("error:"), err)
		os.Exit(1)
	}
}

func run(ctx context.Context, backend, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "login":
		return login(ctx, backend, args, out)
	case "logout":
		if err := deleteToken(backend); err != nil {
			return err
		}
		fmt.Fprintln(out, okStyle.Render("Logged out of "+backend))
		return nil
	case "list":
		return list(ctx, backend, args, out)
	case "send":
		return send(ctx, backend, args, out)
	case "trash", "restore", "star":
		return transition(ctx, backend, cmd, args, out)
	case "quota":
		c, err := authed(backend)
		if err != nil {
			return err
		}
		q, err := c.Limit(ctx)
		if err != nil {
			return err
		}
		if q.Limit == 0 {
			fmt.Fprintf(out, "%d recipients in the last 24h, no daily limit\n", q.CurrentCount)
			return nil
		}
		fmt.Fprintf(out, "%d of %d recipients used, %d remaining\n", q.CurrentCount, q.Limit, q.Remaining)
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	}
	return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
}

func authed(backend string) (*client.Client, error) {
	token, err := loadToken(backend)
	if err != nil {
		return nil, err
	}
	return client.New(backend, client.WithToken(token)), nil
}

func login(ctx context.Context, backend string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account address (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("-email is required")
	}

	password := os.Getenv("MAILCTL_PASSWORD")
	if password == "" {
		err := huh.NewInput().
			Title("Password for " + *email).
			EchoMode(huh.EchoModePassword).
			Value(&password).
			Run()
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
	}

	c := client.New(backend)
	token, err := c.Login(ctx, *email, password)
	if err != nil {
		return err
	}
	if err := saveToken(backend, token); err != nil {
		return err
	}
	fmt.Fprintln(out, okStyle.Render("Logged in to "+backend+" as "+*email))
	return nil
}

func list(ctx context.Context, backend string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	folder := fs.String("folder", "inbox", "inbox, sent, drafts, trash, starred or scheduled")
	page := fs.Int("page", 1, "page number")
	limit := fs.Int("limit", 0, "page size (defaults to your max_page_size setting)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := authed(backend)
	if err != nil {
		return err
	}
	opts := client.ListOptions{Page: *page, Limit: *limit}

	var rows []row
	switch col := client.Collection(*folder); col {
	case client.Inbox, client.Sent:
		emails, err := c.Emails(ctx, *folder, opts)
		if err != nil {
			return err
		}
		rows = emailRows(emails, *folder)
	case client.Drafts:
		drafts, err := c.Drafts(ctx, opts)
		if err != nil {
			return err
		}
		rows = draftRows(drafts)
	case client.Trash, client.Starred:
		fetch := c.Trash
		if col == client.Starred {
			fetch = c.Starred
		}
		items, err := fetch(ctx, opts)
		if err != nil {
			return err
		}
		rows = folderRows(items)
	case client.Scheduled:
		items, err := c.Scheduled(ctx, opts)
		if err != nil {
			return err
		}
		rows = scheduledRows(items)
	default:
		return fmt.Errorf("unknown folder %q", *folder)
	}
	printRows(out, strings.ToUpper((*folder)[:1])+(*folder)[1:], rows)
	return nil
}

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

func send(ctx context.Context, backend string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	to := fs.String("to", "", "comma separated recipients")
	subject := fs.String("subject", "", "subject line")
	body := fs.String("body", "", "HTML body (use -body-file for a file)")
	bodyFile := fs.String("body-file", "", "read the HTML body from this file")
	at := fs.String("at", "", "schedule for this time (RFC 3339 or YYYY-MM-DDTHH:MM UTC)")
	draft := fs.Int64("draft", 0, "draft id to clear once sent")
	var attach stringList
	fs.Var(&attach, "attach", "file to attach (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := client.SendInput{To: *to, Subject: *subject, BodyHTML: *body, ScheduledAt: *at, DraftIDToClear: *draft}
	if *bodyFile != "" {
		raw, err := os.ReadFile(*bodyFile)
		if err != nil {
			return err
		}
		in.BodyHTML = string(raw)
	}
	for _, path := range attach {
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		in.Attachments = append(in.Attachments, client.Attachment{
			Filename:    filepath.Base(path),
			ContentType: mime.TypeByExtension(filepath.Ext(path)),
			Content:     raw,
		})
	}

	c, err := authed(backend)
	if err != nil {
		return err
	}
	resp, err := c.Send(ctx, in)
	if err != nil {
		return err
	}
	if resp.Scheduled != nil {
		fmt.Fprintf(out, "%s id %d for %s\n", okStyle.Render(resp.Message), resp.Scheduled.ID,
			resp.Scheduled.ScheduledAt.Local().Format(time.RFC1123))
		return nil
	}
	fmt.Fprintln(out, okStyle.Render(resp.Message))
	return nil
}

// transitions maps a command to its email and draft actions.
var transitions = map[string]struct{ email, draft client.Action }{
	"trash":   {client.ActionTrashEmail, client.ActionTrashDraft},
	"restore": {client.ActionRestoreEmail, client.ActionRestoreDraft},
	"star":    {client.ActionStarEmail, client.ActionStarDraft},
}

// transition runs trash, restore or star through a Mailbox and prints the
// collections it refetched.
func transition(ctx context.Context, backend, cmd string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	id := fs.Int64("id", 0, "item id (required)")
	typ := fs.String("type", "inbox", "inbox, sent or draft")
	off := fs.Bool("off", false, "unstar instead of star")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return errors.New("-id is required")
	}
	if *typ != "inbox" && *typ != "sent" && *typ != "draft" {
		return fmt.Errorf("invalid -type %q, use inbox, sent or draft", *typ)
	}
	c, err := authed(backend)
	if err != nil {
		return err
	}
	mb := client.NewMailbox(c, client.ListOptions{})
	item := api.FolderItem{Type: *typ, ID: *id}

	switch cmd {
	case "trash":
		err = mb.TrashItem(ctx, item)
	case "restore":
		err = mb.RestoreItem(ctx, item)
	case "star":
		err = mb.StarItem(ctx, item, !*off)
	}
	if err != nil {
		return err
	}
	action := transitions[cmd].email
	if *typ == "draft" {
		action = transitions[cmd].draft
	}

	for _, col := range client.Affected(action, *typ) {
		switch col {
		case client.Inbox:
			printRows(out, "Inbox", emailRows(mb.Inbox(), "inbox"))
		case client.Sent:
			printRows(out, "Sent", emailRows(mb.Sent(), "sent"))
		case client.Drafts:
			printRows(out, "Drafts", draftRows(mb.Drafts()))
		case client.Trash:
			printRows(out, "Trash", folderRows(mb.Trash()))
		case client.Starred:
			printRows(out, "Starred", folderRows(mb.Starred()))
		}
	}
	return nil
}
