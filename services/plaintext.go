package services

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLToText renders an HTML body as plain text for list previews. Block
// elements break lines, links keep their text followed by the target in
// brackets when it differs, and images, scripts and styles are dropped.
func HTMLToText(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}

	z := html.NewTokenizer(strings.NewReader(src))
	var w textWriter
	skip := 0
	type link struct {
		href  string
		start int
	}
	var links []link

	for {
		switch z.Next() {
		case html.ErrorToken:
			return w.String()

		case html.TextToken:
			if skip == 0 {
				w.text(string(z.Text()))
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Script, atom.Style, atom.Head, atom.Title, atom.Noscript:
				if tok.Type == html.StartTagToken {
					skip++
				}
			case atom.Br:
				w.hardBreak()
			case atom.A:
				links = append(links, link{href: attr(tok, "href"), start: w.Len()})
			case atom.Li:
				w.lineBreak()
				w.text("* ")
			default:
				if isBlock(tok.DataAtom) {
					w.lineBreak()
				}
			}

		case html.EndTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Script, atom.Style, atom.Head, atom.Title, atom.Noscript:
				if skip > 0 {
					skip--
				}
			case atom.A:
				if len(links) == 0 {
					continue
				}
				l := links[len(links)-1]
				links = links[:len(links)-1]
				label := strings.TrimSpace(w.From(l.start))
				href := strings.TrimPrefix(l.href, "mailto:")
				if l.href != "" && href != label {
					if label == "" {
						w.text(l.href)
					} else {
						w.text(" [" + l.href + "]")
					}
				}
			default:
				if isBlock(tok.DataAtom) {
					w.lineBreak()
				}
			}
		}
	}
}

func attr(tok html.Token, name string) string {
	for _, a := range tok.Attr {
		if a.Key == name {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Header, atom.Footer,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Ul, atom.Ol, atom.Table, atom.Tr, atom.Blockquote, atom.Pre, atom.Hr:
		return true
	}
	return false
}

// textWriter collapses whitespace and keeps at most one blank line.
type textWriter struct {
	b       strings.Builder
	pending bool // a space is owed before the next word
}

func (w *textWriter) Len() int { return w.b.Len() }

func (w *textWriter) From(i int) string { return w.b.String()[i:] }

func (w *textWriter) text(s string) {
	if s == "" {
		return
	}
	if startsWithSpace(s) {
		w.pending = true
	}
	words := strings.Fields(s)
	if len(words) == 0 {
		w.pending = true
		return
	}
	for i, word := range words {
		if (i > 0 || w.pending) && !w.atLineStart() {
			w.b.WriteByte(' ')
		}
		w.b.WriteString(word)
		w.pending = false
	}
	w.pending = endsWithSpace(s)
}

func (w *textWriter) atLineStart() bool {
	n := w.b.Len()
	return n == 0 || w.b.String()[n-1] == '\n'
}

func (w *textWriter) lineBreak() {
	w.pending = false
	if w.b.Len() > 0 && !w.atLineStart() {
		w.b.WriteByte('\n')
	}
}

func (w *textWriter) hardBreak() {
	w.pending = false
	if strings.HasSuffix(w.b.String(), "\n\n") {
		return
	}
	w.b.WriteByte('\n')
}

func (w *textWriter) String() string {
	return strings.TrimSpace(w.b.String())
}

func startsWithSpace(s string) bool {
	return s != "" && strings.ContainsRune(" \t\r\n", rune(s[0]))
}

func endsWithSpace(s string) bool {
	return s != "" && strings.ContainsRune(" \t\r\n", rune(s[len(s)-1]))
}
