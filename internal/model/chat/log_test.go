package chat_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tarot/backend/internal/model/chat"
)

func TestLogAppendsInOrder(t *testing.T) {
	var log chat.Log
	log.AddAssistant("Welcome.")
	log.AddUser("Hi")
	log.AddSystem(chat.CardsAnnouncement([]string{"The Fool", "Death"}))

	turns := log.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, chat.Turn{Role: chat.RoleAssistant, Content: "Welcome."}, turns[0])
	assert.Equal(t, chat.Turn{Role: chat.RoleUser, Content: "Hi"}, turns[1])
	assert.Equal(t, "The selected cards were: The Fool, Death", turns[2].Content)
	assert.True(t, turns[2].IsCardsAnnouncement())
}

func TestLogTurnsReturnsCopy(t *testing.T) {
	var log chat.Log
	log.AddUser("original")

	turns := log.Turns()
	turns[0].Content = "mutated"

	last, ok := log.Last()
	require.True(t, ok)
	assert.Equal(t, "original", last.Content)
}

func TestLogCloneIsIndependent(t *testing.T) {
	var log chat.Log
	log.AddAssistant("one")

	draft := log.Clone()
	draft.AddUser("two")

	assert.Equal(t, 1, log.Len())
	assert.Equal(t, 2, draft.Len())
}

func TestLogLastAssistant(t *testing.T) {
	var log chat.Log
	_, ok := log.LastAssistant()
	assert.False(t, ok)

	log.AddAssistant("first")
	log.AddUser("answer")
	log.AddSystem("The selected cards were: The Star")

	turn, ok := log.LastAssistant()
	require.True(t, ok)
	assert.Equal(t, "first", turn.Content)
}

func TestLogJSONRoundTrip(t *testing.T) {
	var log chat.Log
	log.AddAssistant("Shall we begin?\nQUESTION: What is your name?")
	log.AddUser("Ada\n\nLove")
	log.AddSystem("The selected cards were: The Moon")
	log.AddAssistant("")

	data, err := json.Marshal(&log)
	require.NoError(t, err)

	var restored chat.Log
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, log.Turns(), restored.Turns())
}

func TestLogJSONEmpty(t *testing.T) {
	data, err := json.Marshal(&chat.Log{})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestLogRejectsUnknownRole(t *testing.T) {
	var log chat.Log
	err := json.Unmarshal([]byte(`[{"role":"narrator","content":"x"}]`), &log)
	assert.Error(t, err)
}
