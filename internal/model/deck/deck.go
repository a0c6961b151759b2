package deck

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sync"
)

//go:embed data/tarot.json
var deckFS embed.FS

// ErrExhausted is returned when no eligible card is left to draw.
var ErrExhausted = errors.New("deck: no eligible cards left")

// Deck is an ordered, immutable list of card names.
type Deck struct {
	cards []string
	index map[string]struct{}
}

// New builds a deck from card names. Duplicate names are rejected.
func New(cards []string) (*Deck, error) {
	d := &Deck{
		cards: append([]string(nil), cards...),
		index: make(map[string]struct{}, len(cards)),
	}
	for _, c := range d.cards {
		if c == "" {
			return nil, fmt.Errorf("deck: empty card name")
		}
		if _, dup := d.index[c]; dup {
			return nil, fmt.Errorf("deck: duplicate card %q", c)
		}
		d.index[c] = struct{}{}
	}
	return d, nil
}

var (
	tarotOnce sync.Once
	tarot     *Deck
	tarotErr  error
)

// Tarot returns the embedded 78-card deck.
func Tarot() (*Deck, error) {
	tarotOnce.Do(func() {
		raw, err := deckFS.ReadFile("data/tarot.json")
		if err != nil {
			tarotErr = fmt.Errorf("read embedded deck: %w", err)
			return
		}
		var cards []string
		if err := json.Unmarshal(raw, &cards); err != nil {
			tarotErr = fmt.Errorf("parse embedded deck: %w", err)
			return
		}
		tarot, tarotErr = New(cards)
	})
	return tarot, tarotErr
}

// Cards returns a copy of the card names in deck order.
func (d *Deck) Cards() []string {
	return append([]string(nil), d.cards...)
}

func (d *Deck) Len() int { return len(d.cards) }

func (d *Deck) Contains(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Eligible returns the cards, in deck order, that appear in none of the
// excluded lists.
func (d *Deck) Eligible(excluded ...[]string) []string {
	skip := make(map[string]struct{})
	for _, list := range excluded {
		for _, c := range list {
			skip[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(d.cards))
	for _, c := range d.cards {
		if _, ok := skip[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// DrawSeeded picks one eligible card. The same seed and exclusions always
// yield the same card.
func (d *Deck) DrawSeeded(seed string, excluded ...[]string) (string, error) {
	pool := d.Eligible(excluded...)
	if len(pool) == 0 {
		return "", ErrExhausted
	}
	return pool[seededRand(seed).IntN(len(pool))], nil
}

func seededRand(seed string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	sum := h.Sum64()
	return rand.New(rand.NewPCG(sum, sum^0x9e3779b97f4a7c15))
}
