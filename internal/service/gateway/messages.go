package gateway

import (
	"strings"

	"github.com/zhouzirui/z-tarot/backend/internal/model/chat"
)

// Prompts are the fixed system directives wrapped around every transcript.
type Prompts struct {
	Initial            string
	Reinforcement      string
	CardsReinforcement string
}

// BuildMessages prepends the initial directive to the transcript and appends
// one reinforcement directive. The cards variant is chosen when the last turn
// is the system announcement of drawn cards.
func BuildMessages(p Prompts, turns []chat.Turn) []chat.Turn {
	out := make([]chat.Turn, 0, len(turns)+2)
	out = append(out, chat.Turn{Role: chat.RoleSystem, Content: p.Initial})
	out = append(out, turns...)

	reinforcement := p.Reinforcement
	if n := len(turns); n > 0 && turns[n-1].IsCardsAnnouncement() {
		reinforcement = p.CardsReinforcement
	}
	return append(out, chat.Turn{Role: chat.RoleSystem, Content: reinforcement})
}

// FlattenPrompt renders messages as "Role: content" lines for backends that
// take a single text prompt.
func FlattenPrompt(messages []chat.Turn) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		role := string(m.Role)
		if role != "" {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}
