package session

import (
	"encoding/json"
	"fmt"

	"github.com/zhouzirui/z-tarot/backend/internal/model/chat"
)

// HistoryKey is the snapshot key that holds the conversation log.
const HistoryKey = "chat_history"

// Snapshot is the durable form of one session: the conversation log plus a
// flat set of auxiliary state values. It encodes as a single JSON object with
// the log under "chat_history" and every auxiliary key beside it.
type Snapshot struct {
	History *chat.Log
	State   map[string]any
}

// Capture copies the log and keeps only the auxiliary values that encode as
// JSON. Values that do not encode are dropped without error.
func Capture(log *chat.Log, aux map[string]any) Snapshot {
	s := Snapshot{History: &chat.Log{}, State: make(map[string]any, len(aux))}
	if log != nil {
		s.History = log.Clone()
	}
	for k, v := range aux {
		if k == HistoryKey {
			continue
		}
		if _, err := json.Marshal(v); err != nil {
			continue
		}
		s.State[k] = v
	}
	return s
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.State)+1)
	for k, v := range s.State {
		if k == HistoryKey {
			continue
		}
		if _, err := json.Marshal(v); err != nil {
			continue
		}
		out[k] = v
	}
	history := s.History
	if history == nil {
		history = &chat.Log{}
	}
	out[HistoryKey] = history
	return json.Marshal(out)
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	history := &chat.Log{}
	if msg, ok := raw[HistoryKey]; ok {
		if err := json.Unmarshal(msg, history); err != nil {
			return fmt.Errorf("decode %s: %w", HistoryKey, err)
		}
		delete(raw, HistoryKey)
	}

	state := make(map[string]any, len(raw))
	for k, msg := range raw {
		var v any
		if err := json.Unmarshal(msg, &v); err != nil {
			return fmt.Errorf("decode %s: %w", k, err)
		}
		state[k] = v
	}

	s.History = history
	s.State = state
	return nil
}
