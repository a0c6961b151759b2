package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role tags a turn with its speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// CardsAnnouncementPrefix opens the system turn that reports drawn cards.
const CardsAnnouncementPrefix = "The selected cards were"

// Turn is one message in the transcript.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// IsCardsAnnouncement reports whether t is the system turn listing drawn cards.
func (t Turn) IsCardsAnnouncement() bool {
	return t.Role == RoleSystem && strings.HasPrefix(t.Content, CardsAnnouncementPrefix)
}

// CardsAnnouncement builds the system text that reports the drawn cards.
func CardsAnnouncement(cards []string) string {
	return CardsAnnouncementPrefix + ": " + strings.Join(cards, ", ")
}

// Log is the append-only transcript replayed to the model on every request.
// The zero value is an empty log ready to use.
type Log struct {
	turns []Turn
}

// NewLog rebuilds a log from persisted turns.
func NewLog(turns []Turn) (*Log, error) {
	l := &Log{turns: make([]Turn, 0, len(turns))}
	for i, t := range turns {
		if !t.Role.Valid() {
			return nil, fmt.Errorf("turn %d: unknown role %q", i, t.Role)
		}
		l.turns = append(l.turns, t)
	}
	return l, nil
}

func (l *Log) AddUser(content string)      { l.add(RoleUser, content) }
func (l *Log) AddAssistant(content string) { l.add(RoleAssistant, content) }
func (l *Log) AddSystem(content string)    { l.add(RoleSystem, content) }

func (l *Log) add(role Role, content string) {
	l.turns = append(l.turns, Turn{Role: role, Content: content})
}

// Turns returns a copy of the transcript in insertion order.
func (l *Log) Turns() []Turn {
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

func (l *Log) Len() int { return len(l.turns) }

// Last returns the most recent turn.
func (l *Log) Last() (Turn, bool) {
	if len(l.turns) == 0 {
		return Turn{}, false
	}
	return l.turns[len(l.turns)-1], true
}

// LastAssistant returns the most recent assistant turn.
func (l *Log) LastAssistant() (Turn, bool) {
	for i := len(l.turns) - 1; i >= 0; i-- {
		if l.turns[i].Role == RoleAssistant {
			return l.turns[i], true
		}
	}
	return Turn{}, false
}

// Clone returns an independent log with the same turns. Appending to the
// clone leaves the original untouched.
func (l *Log) Clone() *Log {
	return &Log{turns: l.Turns()}
}

func (l *Log) MarshalJSON() ([]byte, error) {
	if l.turns == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.turns)
}

func (l *Log) UnmarshalJSON(data []byte) error {
	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return err
	}
	restored, err := NewLog(turns)
	if err != nil {
		return err
	}
	*l = *restored
	return nil
}
