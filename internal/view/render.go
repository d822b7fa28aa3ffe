// Package view turns client state into terminal output. Everything
// user-supplied (usernames, message bodies, room names) passes through one
// sanitizing boundary before it reaches the terminal, so hostile text is
// always shown literally and can never smuggle control sequences into the
// caller's terminal.
package view

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/achuthan-s/oasis-chat-client/internal/domain"
)

const (
	colorReset  = "\x1b[0m"
	colorDim    = "\x1b[2m"
	colorBold   = "\x1b[1m"
	colorCyan   = "\x1b[36m"
	colorYellow = "\x1b[33m"
)

// Sanitize renders untrusted text safe for terminal output. Control
// characters (including ESC, the opening byte of every ANSI sequence) are
// replaced by their visible escape form; everything else passes through
// unchanged, so markup-looking text like "<script>" stays literal.
func Sanitize(s string) string {
	if !strings.ContainsFunc(s, unicode.IsControl) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) {
			fmt.Fprintf(&b, "\\x%02x", r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Terminal renders to a writer, usually stdout. Methods may be called from
// the synchronizer loop and the input loop, so writes are serialized.
type Terminal struct {
	mu     sync.Mutex
	out    io.Writer
	colors bool
}

func NewTerminal(out io.Writer, colors bool) *Terminal {
	return &Terminal{out: out, colors: colors}
}

func (t *Terminal) paint(code, s string) string {
	if !t.colors {
		return s
	}
	return code + s + colorReset
}

func (t *Terminal) printf(format string, v ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format+"\n", v...)
}

// RoomList renders the sidebar: every room in server order, the current one
// marked.
func (t *Terminal) RoomList(rooms []domain.Room, currentID string) {
	t.printf("%s", t.paint(colorBold, "Rooms:"))
	for i, room := range rooms {
		marker := "  "
		if room.ID == currentID {
			marker = "* "
		}
		t.printf("%s[%d] %s %s", marker, i+1, Sanitize(room.Name),
			t.paint(colorDim, Sanitize(room.Description)))
	}
}

// Feed redraws the message feed for a room. An empty history gets the
// placeholder instead of silence.
func (t *Terminal) Feed(room domain.Room, msgs []domain.Message, selfID int) {
	t.printf("%s", t.paint(colorBold, "--- "+Sanitize(room.Name)+" ---"))
	if len(msgs) == 0 {
		t.printf("No messages yet. Start the conversation!")
		return
	}
	for _, m := range msgs {
		t.Message(m, m.UserID == selfID)
	}
}

// Message appends a single message line to the feed.
func (t *Terminal) Message(m domain.Message, own bool) {
	name := Sanitize(m.Username)
	if own {
		name = t.paint(colorCyan, name)
	}
	line := fmt.Sprintf("[%s] %s: %s", formatTime(m.Timestamp), name, Sanitize(m.Message))
	if m.IsEncrypted() {
		line += " " + t.paint(colorYellow, "[encrypted]")
	}
	t.printf("%s", line)
}

// System appends a server notice (user joined/left and the like).
func (t *Terminal) System(text string) {
	t.printf("%s", t.paint(colorDim, "-- "+Sanitize(text)+" --"))
}

// Typing shows or clears the typing indicator. Last typer wins.
func (t *Terminal) Typing(username string, active bool) {
	if !active {
		return
	}
	t.printf("%s", t.paint(colorDim, Sanitize(username)+" is typing..."))
}

// OnlineCount shows the size of the current roster.
func (t *Terminal) OnlineCount(n int) {
	noun := "users"
	if n == 1 {
		noun = "user"
	}
	t.printf("%s", t.paint(colorDim, fmt.Sprintf("%d %s online", n, noun)))
}

// formatTime shortens a server ISO timestamp to HH:MM, falling back to the
// sanitized raw value when it does not parse.
func formatTime(ts string) string {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
		if parsed, err := time.Parse(layout, ts); err == nil {
			return parsed.Format("15:04")
		}
	}
	return Sanitize(ts)
}
