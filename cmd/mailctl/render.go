package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"webmail/api"
)

var (
	colorBlue  = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	colorGreen = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	colorRed   = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	colorGold  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	colorGray  = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
	idStyle     = lipgloss.NewStyle().Foreground(colorGray).Width(6).Align(lipgloss.Right)
	whoStyle    = lipgloss.NewStyle().Width(28)
	timeStyle   = lipgloss.NewStyle().Foreground(colorGray)
	starStyle   = lipgloss.NewStyle().Foreground(colorGold)
	tagStyle    = lipgloss.NewStyle().Foreground(colorGray).Italic(true)
	okStyle     = lipgloss.NewStyle().Foreground(colorGreen)
	errStyle    = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
)

// row is one printable line of any listing.
type row struct {
	id      int64
	who     string
	subject string
	at      time.Time
	starred bool
	tag     string
}

func (r row) render() string {
	star := " "
	if r.starred {
		star = starStyle.Render("★")
	}
	subject := r.subject
	if subject == "" {
		subject = "(no subject)"
	}
	line := fmt.Sprintf("%s %s %s %s  %s",
		idStyle.Render(fmt.Sprint(r.id)), star, whoStyle.Render(truncate(r.who, 27)), subject,
		timeStyle.Render(r.at.Local().Format("Jan 2 15:04")))
	if r.tag != "" {
		line += " " + tagStyle.Render("["+r.tag+"]")
	}
	return line
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

func emailRows(emails []api.EmailRow, folder string) []row {
	out := make([]row, len(emails))
	for i, e := range emails {
		who := e.Sender
		if folder == "sent" {
			who = "To: " + strings.Join(e.Recipients, ", ")
		}
		out[i] = row{id: e.ID, who: who, subject: e.Subject, at: e.ReceivedAt, starred: e.IsStarred}
	}
	return out
}

func draftRows(drafts []api.DraftRow) []row {
	out := make([]row, len(drafts))
	for i, d := range drafts {
		out[i] = row{id: d.ID, who: "To: " + d.RecipientEmail, subject: d.Subject, at: d.LastSavedAt, starred: d.IsStarred}
	}
	return out
}

func folderRows(items []api.FolderItem) []row {
	out := make([]row, len(items))
	for i, it := range items {
		who := it.Sender
		if it.Type == "sent" {
			who = "To: " + strings.Join(it.Recipients, ", ")
		} else if it.Type == "draft" {
			who = "To: " + it.RecipientEmail
		}
		tag := it.Type
		if it.IsTrashed {
			tag += ", trash"
		}
		out[i] = row{id: it.ID, who: who, subject: it.Subject, at: it.Time(), starred: it.IsStarred, tag: tag}
	}
	return out
}

func scheduledRows(items []api.ScheduledRow) []row {
	out := make([]row, len(items))
	for i, s := range items {
		out[i] = row{id: s.ID, who: "To: " + strings.Join(s.Recipients, ", "), subject: s.Subject, at: s.ScheduledAt, tag: s.Status}
	}
	return out
}

func printRows(w io.Writer, title string, rows []row) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s (%d)", title, len(rows))))
	if len(rows) == 0 {
		fmt.Fprintln(w, timeStyle.Render("  nothing here"))
		return
	}
	for _, r := range rows {
		fmt.Fprintln(w, r.render())
	}
}
