package reading

import (
	"encoding/json"
	"fmt"

	"github.com/zhouzirui/z-tarot/backend/internal/analysis/directive"
	"github.com/zhouzirui/z-tarot/backend/internal/model/chat"
	"github.com/zhouzirui/z-tarot/backend/internal/repository/session"
)

// DrawMode selects how the seeker picks cards.
type DrawMode string

const (
	DrawVirtual  DrawMode = "virtual"
	DrawPhysical DrawMode = "physical"
)

func (m DrawMode) Valid() bool {
	return m == DrawVirtual || m == DrawPhysical
}

// Phase is where a session sits in the reading flow.
type Phase string

const (
	PhaseIntro         Phase = "intro"
	PhaseAwaitingInput Phase = "awaiting_input"
	PhaseSubmitting    Phase = "submitting"
	PhaseAwaitingModel Phase = "awaiting_model"
	PhaseConcluded     Phase = "concluded"
)

// State holds the auxiliary values persisted beside the conversation log.
type State struct {
	ReadingInProgress  bool     `json:"reading_in_progress"`
	StartedChat        bool     `json:"started_chat"`
	DrawMode           DrawMode `json:"card_draw_type,omitempty"`
	ChosenVirtualCards []string `json:"chosen_virtual_cards"`
	AllChosenCards     []string `json:"all_chosen_cards"`
	ShuffleSeed        string   `json:"shuffle_seed,omitempty"`
	HeaderImages       []string `json:"header_images"`
	NarratorImage      string   `json:"narrator_image,omitempty"`
	ClosingImage       string   `json:"closing_image,omitempty"`
	TotalTokensUsed    int      `json:"total_tokens_used"`
	Flagged            bool     `json:"flagged_input"`
}

func (s State) aux() (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("flatten state: %w", err)
	}
	return out, nil
}

func stateFromAux(aux map[string]any) (State, error) {
	var st State
	if len(aux) == 0 {
		return st, nil
	}
	data, err := json.Marshal(aux)
	if err != nil {
		return State{}, fmt.Errorf("encode aux state: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("decode aux state: %w", err)
	}
	return st, nil
}

// Session is the working copy of one reading.
type Session struct {
	ID    string
	Log   *chat.Log
	State State
}

func (s *Session) snapshot() (session.Snapshot, error) {
	aux, err := s.State.aux()
	if err != nil {
		return session.Snapshot{}, err
	}
	return session.Capture(s.Log, aux), nil
}

func sessionFromSnapshot(id string, snap session.Snapshot) (*Session, error) {
	st, err := stateFromAux(snap.State)
	if err != nil {
		return nil, err
	}
	log := snap.History
	if log == nil {
		log = &chat.Log{}
	}
	return &Session{ID: id, Log: log, State: st}, nil
}

// Directives are parsed from the latest assistant turn, which carries the
// narrator's current instructions.
func (s *Session) Directives() directive.Set {
	turn, ok := s.Log.LastAssistant()
	if !ok {
		return directive.Set{}
	}
	return directive.Parse(turn.Content)
}

func (s *Session) Phase() Phase {
	if !s.State.StartedChat {
		return PhaseIntro
	}
	if s.Directives().Empty() {
		return PhaseConcluded
	}
	return PhaseAwaitingInput
}
