// Package output formats daemon status and history for the CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/deckd/internal/history"
	"github.com/jmylchreest/deckd/internal/protocol"
)

// FormatType represents an output format type.
type FormatType string

const (
	FormatPlain FormatType = "plain"
	FormatJSON  FormatType = "json"
	FormatYAML  FormatType = "yaml"
	FormatIDs   FormatType = "ids"
)

// Formats lists the accepted format names.
var Formats = []FormatType{FormatPlain, FormatJSON, FormatYAML, FormatIDs}

// Formatter writes status replies and history entries.
type Formatter interface {
	Status(w io.Writer, s *protocol.StatusResponse) error
	History(w io.Writer, entries []history.Entry) error
}

// Options configures formatter behaviour.
type Options struct {
	Template string // text/template applied per item or entry in plain mode
	Width    int    // line width for plain mode, 0 = unlimited
	Now      func() time.Time
}

// NewFormatter creates a formatter for the given format.
func NewFormatter(format FormatType, opts Options) (Formatter, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	switch format {
	case FormatJSON:
		return jsonFormatter{}, nil
	case FormatYAML:
		return yamlFormatter{}, nil
	case FormatIDs:
		return idsFormatter{}, nil
	case FormatPlain, "":
		return newPlainFormatter(opts)
	default:
		return nil, fmt.Errorf("unknown format %q (want one of %s)", format, formatList())
	}
}

func formatList() string {
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// TerminalWidth returns the width of the terminal on f, or 0 when f is not
// a terminal.
func TerminalWidth(f *os.File) int {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	w, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return w
}

type jsonFormatter struct{}

func (jsonFormatter) Status(w io.Writer, s *protocol.StatusResponse) error {
	return writeJSON(w, s)
}

func (jsonFormatter) History(w io.Writer, entries []history.Entry) error {
	if entries == nil {
		entries = []history.Entry{}
	}
	return writeJSON(w, entries)
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

type yamlFormatter struct{}

func (yamlFormatter) Status(w io.Writer, s *protocol.StatusResponse) error {
	return writeYAML(w, s)
}

func (yamlFormatter) History(w io.Writer, entries []history.Entry) error {
	return writeYAML(w, entries)
}

func writeYAML(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return err
	}
	return encoder.Close()
}

// idsFormatter prints one ID per line for piping into other commands.
type idsFormatter struct{}

func (idsFormatter) Status(w io.Writer, s *protocol.StatusResponse) error {
	for _, it := range s.Items {
		if _, err := fmt.Fprintln(w, it.ID); err != nil {
			return err
		}
	}
	return nil
}

func (idsFormatter) History(w io.Writer, entries []history.Entry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, e.ID); err != nil {
			return err
		}
	}
	return nil
}

// templateFuncs returns template helper functions.
func templateFuncs(now func() time.Time) template.FuncMap {
	return template.FuncMap{
		"truncate": truncate,
		"ago": func(t time.Time) string {
			return relativeTime(t, now())
		},
		"upper": strings.ToUpper,
	}
}

func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
