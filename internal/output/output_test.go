package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/deckd/internal/history"
	"github.com/jmylchreest/deckd/internal/model"
	"github.com/jmylchreest/deckd/internal/protocol"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func testStatus() *protocol.StatusResponse {
	return &protocol.StatusResponse{
		Type:    protocol.TypeStatusResponse,
		Device:  "terminal",
		Rows:    3,
		Cols:    5,
		Started: testNow.Add(-2 * time.Hour),
		Items: []model.Info{
			{
				ID:        "01A",
				Owner:     "4242",
				Kind:      "interactive",
				Priority:  "high",
				CreatedAt: testNow.Add(-30 * time.Second),
				Summary:   "Pick a colour",
				Displayed: true,
				Page:      1,
				PageCount: 2,
			},
			{
				ID:        "01B",
				Kind:      "status",
				Priority:  "low",
				CreatedAt: testNow.Add(-5 * time.Minute),
				Summary:   "Idle",
			},
		},
	}
}

func testEntries() []history.Entry {
	return []history.Entry{
		{ID: "h1", Kind: "confirmation", Outcome: "completed", Decision: "Allow", Summary: "Bash: ls", ResolvedAt: testNow.Add(-time.Minute)},
		{ID: "h2", Kind: "interactive", Outcome: "superseded", Summary: "Pick", ResolvedAt: testNow.Add(-3 * time.Hour)},
	}
}

func newTestFormatter(t *testing.T, format FormatType, opts Options) Formatter {
	t.Helper()
	opts.Now = fixedNow
	f, err := NewFormatter(format, opts)
	require.NoError(t, err)
	return f
}

func TestNewFormatter_Unknown(t *testing.T) {
	_, err := NewFormatter("xml", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plain, json, yaml, ids")

	_, err = NewFormatter(FormatPlain, Options{Template: "{{.Nope"})
	assert.Error(t, err)
}

func TestPlain_Status(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, newTestFormatter(t, FormatPlain, Options{}).Status(&buf, testStatus()))

	out := buf.String()
	assert.Contains(t, out, "deck:   terminal (3x5)")
	assert.Contains(t, out, "up:     2 hours")
	assert.Contains(t, out, "items:  2")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[3], "* high"))
	assert.Contains(t, lines[3], "Pick a colour (30 seconds ago) [page 2/2]")
	assert.Contains(t, lines[4], "-        Idle")
}

func TestPlain_StatusDisconnected(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, newTestFormatter(t, FormatPlain, Options{}).Status(&buf, &protocol.StatusResponse{}))
	assert.Contains(t, buf.String(), "deck:   none (disconnected)")
	assert.Contains(t, buf.String(), "items:  0")
}

func TestPlain_Width(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, newTestFormatter(t, FormatPlain, Options{Width: 20}).History(&buf, testEntries()))
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.LessOrEqual(t, len([]rune(line)), 20)
		assert.True(t, strings.HasSuffix(line, "..."))
	}
}

func TestPlain_History(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, newTestFormatter(t, FormatPlain, Options{}).History(&buf, testEntries()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "1 minute ago"))
	assert.Contains(t, lines[0], "Allow")
	assert.Contains(t, lines[1], "superseded")
	assert.Contains(t, lines[1], " - ")
}

func TestPlain_Template(t *testing.T) {
	var buf bytes.Buffer
	f := newTestFormatter(t, FormatPlain, Options{Template: `{{.ID}} {{upper .Kind}} {{ago .CreatedAt}} {{truncate .Summary 6}}`})
	require.NoError(t, f.Status(&buf, testStatus()))
	assert.Equal(t, "01A INTERACTIVE 30 seconds ago Pic...\n01B STATUS 5 minutes ago Idle\n", buf.String())
}

func TestJSON_Status(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, newTestFormatter(t, FormatJSON, Options{}).Status(&buf, testStatus()))

	var got protocol.StatusResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "terminal", got.Device)
	assert.Len(t, got.Items, 2)
}

func TestJSON_EmptyHistory(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, newTestFormatter(t, FormatJSON, Options{}).History(&buf, nil))
	assert.JSONEq(t, `[]`, buf.String())
}

func TestYAML_History(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, newTestFormatter(t, FormatYAML, Options{}).History(&buf, testEntries()))

	var got []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "Allow", got[0]["decision"])
	_, ok := got[1]["decision"]
	assert.False(t, ok)
}

func TestIDs(t *testing.T) {
	var buf bytes.Buffer
	f := newTestFormatter(t, FormatIDs, Options{})
	require.NoError(t, f.Status(&buf, testStatus()))
	require.NoError(t, f.History(&buf, testEntries()))
	assert.Equal(t, "01A\n01B\nh1\nh2\n", buf.String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 0))
	assert.Equal(t, "hello", truncate("hello", 5))
	assert.Equal(t, "he...", truncate("hello world", 5))
	assert.Equal(t, "hel", truncate("hello", 3))
	assert.Equal(t, "ü...", truncate("üüüüü", 4))
}
