package output

import (
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/deckd/internal/history"
	"github.com/jmylchreest/deckd/internal/model"
	"github.com/jmylchreest/deckd/internal/protocol"
)

// plainFormatter writes human-readable lines, one per item or entry.
type plainFormatter struct {
	opts     Options
	template *template.Template
}

func newPlainFormatter(opts Options) (*plainFormatter, error) {
	f := &plainFormatter{opts: opts}
	if opts.Template != "" {
		tmpl, err := template.New("plain").Funcs(templateFuncs(opts.Now)).Parse(opts.Template)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template: %w", err)
		}
		f.template = tmpl
	}
	return f, nil
}

func (f *plainFormatter) Status(w io.Writer, s *protocol.StatusResponse) error {
	if f.template != nil {
		return f.each(w, len(s.Items), func(i int) any { return s.Items[i] })
	}

	now := f.opts.Now()
	var sb strings.Builder
	device := s.Device
	if device == "" {
		device = "none"
	}
	if s.Rows > 0 && s.Cols > 0 {
		fmt.Fprintf(&sb, "deck:   %s (%dx%d)\n", device, s.Rows, s.Cols)
	} else {
		fmt.Fprintf(&sb, "deck:   %s (disconnected)\n", device)
	}
	if !s.Started.IsZero() {
		fmt.Fprintf(&sb, "up:     %s\n", humanize.RelTime(s.Started, now, "", ""))
	}
	fmt.Fprintf(&sb, "items:  %s\n", humanize.Comma(int64(len(s.Items))))
	for _, it := range s.Items {
		sb.WriteString(f.fit(itemLine(it, now)))
		sb.WriteString("\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func itemLine(it model.Info, now time.Time) string {
	marker := " "
	if it.Displayed {
		marker = "*"
	}
	line := fmt.Sprintf("%s %-6s %-12s %-8s %s (%s)",
		marker, it.Priority, it.Kind, ownerLabel(it.Owner), it.Summary, relativeTime(it.CreatedAt, now))
	if it.PageCount > 0 {
		if it.Page >= it.PageCount {
			line += " [review]"
		} else {
			line += fmt.Sprintf(" [page %d/%d]", it.Page+1, it.PageCount)
		}
	}
	if !it.GuardUntil.IsZero() && it.GuardUntil.After(now) {
		line += " [guarded]"
	}
	return line
}

func ownerLabel(owner string) string {
	if owner == "" {
		return "-"
	}
	return owner
}

func (f *plainFormatter) History(w io.Writer, entries []history.Entry) error {
	if f.template != nil {
		return f.each(w, len(entries), func(i int) any { return entries[i] })
	}

	now := f.opts.Now()
	for _, e := range entries {
		decision := e.Decision
		if decision == "" {
			decision = "-"
		}
		line := fmt.Sprintf("%-16s %-12s %-12s %-10s %s",
			relativeTime(e.ResolvedAt, now), e.Outcome, e.Kind, truncate(decision, 10), e.Summary)
		if _, err := fmt.Fprintln(w, f.fit(line)); err != nil {
			return err
		}
	}
	return nil
}

func (f *plainFormatter) each(w io.Writer, n int, at func(int) any) error {
	for i := 0; i < n; i++ {
		if err := f.template.Execute(w, at(i)); err != nil {
			return fmt.Errorf("failed to execute template: %w", err)
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}

func (f *plainFormatter) fit(line string) string {
	return truncate(line, f.opts.Width)
}
