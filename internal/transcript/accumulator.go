package transcript

import (
	"fmt"
	"strings"
)

// Role identifies the speaker of a committed turn.
type Role string

const (
	RoleAgent Role = "agent"
	RoleUser  Role = "user"
)

// Turn is one committed, attributed utterance in the transcript.
type Turn struct {
	Role Role
	Text string
	// Seq is the commit sequence number, assigned in commit order.
	Seq int
}

// Line renders the turn the way the webhook payload expects it.
func (t Turn) Line() string { return fmt.Sprintf("%s: %s", t.Role, t.Text) }

// Mode selects how incoming text events are assembled into turns.
type Mode int

const (
	// Delta accumulates per-role fragments and commits on a completion event.
	Delta Mode = iota
	// Direct commits each event as one already-finalized utterance.
	Direct
)

// Accumulator reconstructs ordered dialogue turns from streaming text events.
// It is owned by a single session event loop and is not safe for concurrent use.
type Accumulator struct {
	mode    Mode
	pending map[Role]*strings.Builder
	turns   []Turn
	seq     int
}

// NewAccumulator creates an accumulator for the given ingestion mode.
func NewAccumulator(mode Mode) *Accumulator {
	return &Accumulator{
		mode: mode,
		pending: map[Role]*strings.Builder{
			RoleAgent: {},
			RoleUser:  {},
		},
	}
}

// Mode reports the ingestion mode the accumulator was built with.
func (a *Accumulator) Mode() Mode { return a.mode }

// AddFragment appends a fragment to the role's pending buffer (delta mode).
// Roles are independent: a pending user fragment never blocks an agent commit.
func (a *Accumulator) AddFragment(role Role, text string) {
	if a.mode != Delta {
		return
	}
	a.pending[role].WriteString(text)
}

// Commit flushes the role's pending buffer as one turn and clears it.
// An empty or whitespace-only buffer commits nothing.
func (a *Accumulator) Commit(role Role) bool {
	b := a.pending[role]
	text := b.String()
	b.Reset()
	return a.commitText(role, text)
}

// CommitText commits one finalized utterance immediately (direct mode).
func (a *Accumulator) CommitText(role Role, text string) bool {
	return a.commitText(role, text)
}

func (a *Accumulator) commitText(role Role, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	a.turns = append(a.turns, Turn{Role: role, Text: text, Seq: a.seq})
	a.seq++
	return true
}

// Turns returns the committed turns in commit order.
func (a *Accumulator) Turns() []Turn {
	out := make([]Turn, len(a.turns))
	copy(out, a.turns)
	return out
}

// Lines renders committed turns as "role: text" strings in commit order.
func Lines(turns []Turn) []string {
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.Line())
	}
	return out
}

// RawText joins committed turns as newline-separated "role: text" lines.
func RawText(turns []Turn) string {
	return strings.Join(Lines(turns), "\n")
}
