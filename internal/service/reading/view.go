package reading

import (
	"github.com/zhouzirui/z-tarot/backend/internal/analysis/directive"
	"github.com/zhouzirui/z-tarot/backend/internal/model/chat"
)

// HistoryEntry is one rendered transcript line.
type HistoryEntry struct {
	Role    chat.Role `json:"role"`
	Content string    `json:"content"`
}

// Directives are the widgets the UI must show for the current turn.
type Directives struct {
	Questions []string `json:"questions"`
	DrawCards int      `json:"drawCards"`
}

// View is everything the UI needs to render a session.
type View struct {
	SessionID          string         `json:"sessionId"`
	Phase              Phase          `json:"phase"`
	History            []HistoryEntry `json:"history"`
	Directives         Directives     `json:"directives"`
	DrawMode           DrawMode       `json:"drawMode,omitempty"`
	ChosenVirtualCards []string       `json:"chosenVirtualCards"`
	EligibleCards      []string       `json:"eligibleCards,omitempty"`
	ShuffleSeed        string         `json:"shuffleSeed,omitempty"`
	HeaderImages       []string       `json:"headerImages"`
	NarratorImage      string         `json:"narratorImage,omitempty"`
	ClosingImage       string         `json:"closingImage,omitempty"`
	Flagged            bool           `json:"flagged"`
	TotalTokensUsed    int            `json:"totalTokensUsed"`
	ShareLink          string         `json:"shareLink,omitempty"`
	Error              string         `json:"error,omitempty"`
	CanRetry           bool           `json:"canRetry"`
}

// History replays assistant turns without their directive lines, user turns
// verbatim and only the card announcements among system turns.
func History(log *chat.Log) []HistoryEntry {
	turns := log.Turns()
	out := make([]HistoryEntry, 0, len(turns))
	for _, t := range turns {
		switch {
		case t.Role == chat.RoleAssistant:
			out = append(out, HistoryEntry{Role: t.Role, Content: directive.Parse(t.Content).CleanedContent})
		case t.Role == chat.RoleUser:
			out = append(out, HistoryEntry{Role: t.Role, Content: t.Content})
		case t.IsCardsAnnouncement():
			out = append(out, HistoryEntry{Role: t.Role, Content: t.Content})
		}
	}
	return out
}

func (s *Service) view(sess *Session) View {
	set := sess.Directives()
	phase := sess.Phase()

	v := View{
		SessionID:          sess.ID,
		Phase:              phase,
		History:            History(sess.Log),
		DrawMode:           sess.State.DrawMode,
		ChosenVirtualCards: nonNil(sess.State.ChosenVirtualCards),
		ShuffleSeed:        sess.State.ShuffleSeed,
		HeaderImages:       nonNil(sess.State.HeaderImages),
		NarratorImage:      sess.State.NarratorImage,
		ClosingImage:       sess.State.ClosingImage,
		Flagged:            sess.State.Flagged,
		TotalTokensUsed:    sess.State.TotalTokensUsed,
	}

	switch phase {
	case PhaseAwaitingInput:
		v.Directives = Directives{Questions: nonNil(set.Questions), DrawCards: set.DrawCards}
		if set.DrawCards > 0 {
			v.EligibleCards = s.deck.Eligible(sess.State.AllChosenCards, sess.State.ChosenVirtualCards)
		}
	case PhaseConcluded:
		v.ShareLink = "?s=" + sess.ID
	}
	if v.Directives.Questions == nil {
		v.Directives.Questions = []string{}
	}
	return v
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return append([]string(nil), in...)
}
