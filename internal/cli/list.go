package cli

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/list"
)

// StringList renders a flat list such as token ids or roles.
type StringList struct {
	out   *Output
	meta  Meta
	items []string
}

func (l *StringList) Add(items ...string) *StringList {
	l.items = append(l.items, items...)
	return l
}

func (l *StringList) WithPagination(cursor string, hasMore bool) *StringList {
	l.meta = l.meta.WithPagination(cursor, hasMore)
	return l
}

func (l *StringList) Render() error {
	return l.out.Render(l)
}

func (l *StringList) Meta() Meta {
	return l.meta
}

func (l *StringList) RenderText(w io.Writer) error {
	if len(l.items) == 0 {
		_, err := io.WriteString(w, "(none)\n")
		return err
	}
	lw := list.NewWriter()
	lw.SetStyle(list.StyleBulletCircle)
	for _, item := range l.items {
		lw.AppendItem(item)
	}
	_, err := io.WriteString(w, lw.Render()+"\n")
	return err
}

// RenderJSON returns the items, never null.
func (l *StringList) RenderJSON() any {
	if l.items == nil {
		return []string{}
	}
	return l.items
}

func (l *StringList) RenderMarkdown(w io.Writer) error {
	lw := list.NewWriter()
	lw.SetStyle(list.StyleMarkdown)
	for _, item := range l.items {
		lw.AppendItem(item)
	}
	_, err := io.WriteString(w, lw.RenderMarkdown()+"\n")
	return err
}
