// Package directive extracts narrator directives from assistant replies.
//
// Grammar v1, one directive per line, optional leading whitespace:
//
//	QUESTION: <prompt text>
//	PULL TAROT CARDS: <non-negative integer>
//
// Anything after the count on a draw line is ignored. Every matched line is
// removed from the display text.
package directive

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// GrammarVersion identifies the directive line syntax recognised by Parse.
const GrammarVersion = 1

// ErrStructural marks a reply that cannot be meaningfully parsed.
var ErrStructural = errors.New("directive: structural parse failure")

var (
	questionLine = regexp.MustCompile(`^QUESTION:[ \t]+(\S.*)$`)
	drawLine     = regexp.MustCompile(`^PULL TAROT CARDS[ \t]*:[ \t]*(\d+)`)
)

// Set is the structured view of one assistant reply.
type Set struct {
	Questions      []string `json:"questions"`
	DrawCards      int      `json:"drawCards"`
	CleanedContent string   `json:"cleanedContent"`
}

// Empty reports whether the reply asks for nothing, which ends a reading.
func (s Set) Empty() bool {
	return len(s.Questions) == 0 && s.DrawCards == 0
}

// Parse never fails. Draw counts that do not fit in an int are ignored.
func Parse(text string) Set {
	set, _ := parse(text)
	return set
}

// ParseStrict is Parse plus a validity check used on fresh model replies.
func ParseStrict(text string) (Set, error) {
	if !utf8.ValidString(text) {
		return Set{}, errors.Join(ErrStructural, errors.New("reply is not valid UTF-8"))
	}
	if strings.TrimSpace(text) == "" {
		return Set{}, errors.Join(ErrStructural, errors.New("reply is blank"))
	}
	set, err := parse(text)
	if err != nil {
		return Set{}, errors.Join(ErrStructural, err)
	}
	return set, nil
}

func parse(text string) (Set, error) {
	var (
		set      Set
		kept     []string
		firstErr error
	)

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSuffix(raw, "\r")
		// Leading whitespace is judged the same way the final trim judges it.
		body := strings.TrimLeftFunc(line, unicode.IsSpace)

		if m := questionLine.FindStringSubmatch(body); m != nil {
			set.Questions = append(set.Questions, strings.TrimRightFunc(m[1], unicode.IsSpace))
			continue
		}

		if m := drawLine.FindStringSubmatch(body); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if set.DrawCards > math.MaxInt-n {
				if firstErr == nil {
					firstErr = errors.New("draw count overflow")
				}
				continue
			}
			set.DrawCards += n
			continue
		}

		kept = append(kept, line)
	}

	set.CleanedContent = strings.TrimSpace(Dedent(strings.Join(kept, "\n")))
	return set, firstErr
}
