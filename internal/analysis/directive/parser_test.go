package directive

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuestionAndDrawScenario(t *testing.T) {
	set := Parse("QUESTION: What troubles you?\nPULL TAROT CARDS: 2\nThe cards await.")

	assert.Equal(t, []string{"What troubles you?"}, set.Questions)
	assert.Equal(t, 2, set.DrawCards)
	assert.Equal(t, "The cards await.", set.CleanedContent)
	assert.False(t, set.Empty())
}

func TestParseWithoutDirectives(t *testing.T) {
	inputs := []string{
		"",
		"The reading is complete. Go gently.",
		"   Indented farewell\n   across two lines   \n",
		"question: lowercase is not a directive\nPULL TAROT CARDS: none",
	}
	for _, in := range inputs {
		set := Parse(in)
		assert.Empty(t, set.Questions, in)
		assert.Zero(t, set.DrawCards, in)
		assert.True(t, set.Empty(), in)
		assert.Equal(t, strings.TrimSpace(Dedent(in)), set.CleanedContent, in)
	}
}

func TestParseSumsDrawDirectives(t *testing.T) {
	text := "First, PULL TAROT CARDS: 9 is not at line start.\n" +
		"PULL TAROT CARDS: 1\n" +
		"Some prose.\n" +
		"PULL TAROT CARDS : 3 for the past\n" +
		"  PULL TAROT CARDS:2\n"

	set := Parse(text)

	assert.Equal(t, 6, set.DrawCards)
	assert.Equal(t, "First, PULL TAROT CARDS: 9 is not at line start.\nSome prose.", set.CleanedContent)
}

func TestParseCollectsQuestionsInOrder(t *testing.T) {
	text := "Welcome, seeker.\n" +
		"QUESTION: What is your name?\n" +
		"\tQUESTION:   What brings you here today?  \n" +
		"QUESTION:\n" +
		"Take your time."

	set := Parse(text)

	require.Len(t, set.Questions, 2)
	assert.Equal(t, "What is your name?", set.Questions[0])
	assert.Equal(t, "What brings you here today?", set.Questions[1])
	assert.Equal(t, "Welcome, seeker.\nQUESTION:\nTake your time.", set.CleanedContent)
}

func TestParseHandlesCRLF(t *testing.T) {
	set := Parse("Hello\r\nQUESTION: Ready?\r\nPULL TAROT CARDS: 1\r\n")

	assert.Equal(t, []string{"Ready?"}, set.Questions)
	assert.Equal(t, 1, set.DrawCards)
	assert.Equal(t, "Hello", set.CleanedContent)
}

func TestParseDedentsCleanedContent(t *testing.T) {
	text := "    The Tower speaks.\n" +
		"    QUESTION: Are you ready?\n" +
		"\n" +
		"      It trembles.\n"

	set := Parse(text)

	assert.Equal(t, "The Tower speaks.\n\n  It trembles.", set.CleanedContent)
}

func TestParseCleanedContentIsIdempotent(t *testing.T) {
	inputs := []string{
		"QUESTION: What troubles you?\nPULL TAROT CARDS: 2\nThe cards await.",
		"  Opening\n  QUESTION: one\n    QUESTION: nested\n  PULL TAROT CARDS: 1\n  end",
		"\t\tPULL TAROT CARDS: 3\n\t\tQUESTION: tabbed\n\t\tprose",
		"no directives at all",
		"\u00a0QUESTION: What troubles you?",
		"\rPULL TAROT CARDS: 2\nThe cards await.",
		"\vQUESTION: Why?",
		"\u00a0\tQUESTION: mixed\n\fprose",
	}
	for _, in := range inputs {
		again := Parse(Parse(in).CleanedContent)
		assert.True(t, again.Empty(), in)
		assert.Equal(t, Parse(in).CleanedContent, again.CleanedContent, in)
	}
}

func TestParseAcceptsUnicodeIndentation(t *testing.T) {
	set := Parse("\u00a0QUESTION: What troubles you?\u00a0\n\v PULL TAROT CARDS: 2\nThe cards await.")

	assert.Equal(t, []string{"What troubles you?"}, set.Questions)
	assert.Equal(t, 2, set.DrawCards)
	assert.Equal(t, "The cards await.", set.CleanedContent)
}

func TestParseIsDeterministic(t *testing.T) {
	text := "QUESTION: a\nQUESTION: b\nPULL TAROT CARDS: 4\nbody"
	assert.Equal(t, Parse(text), Parse(text))
}

func TestParseIgnoresOverflowingCounts(t *testing.T) {
	text := "PULL TAROT CARDS: 99999999999999999999999\nPULL TAROT CARDS: 2\nok"

	set := Parse(text)
	assert.Equal(t, 2, set.DrawCards)
	assert.Equal(t, "ok", set.CleanedContent)

	_, err := ParseStrict(text)
	assert.ErrorIs(t, err, ErrStructural)
}

func TestParseStrict(t *testing.T) {
	set, err := ParseStrict("QUESTION: Why now?\nAnswer honestly.")
	require.NoError(t, err)
	assert.Equal(t, []string{"Why now?"}, set.Questions)

	_, err = ParseStrict("   \n\t")
	assert.ErrorIs(t, err, ErrStructural)

	_, err = ParseStrict("bad \xff bytes")
	assert.ErrorIs(t, err, ErrStructural)

	set, err = ParseStrict("Farewell.")
	require.NoError(t, err)
	assert.True(t, set.Empty())
}

func TestDedent(t *testing.T) {
	assert.Equal(t, "a\n  b\n\nc", Dedent("  a\n    b\n   \n  c"))
	assert.Equal(t, "a\n b", Dedent("a\n b"))
	assert.Equal(t, " x\n\ty", Dedent(" x\n\ty"))
	assert.Equal(t, "x\ny", Dedent("\t x\n\t y"))
}
