package narrator

import (
	_ "embed"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/z-tarot/backend/internal/analysis/directive"
)

//go:embed data/narrator.yaml
var defaultPack []byte

// Narrator holds the prompt texts and opening lines of the reader persona.
type Narrator struct {
	Name               string   `yaml:"name" json:"name"`
	Portrait           string   `yaml:"portrait" json:"portrait"`
	InitialPrompt      string   `yaml:"initial_prompt" json:"-"`
	Reinforcement      string   `yaml:"reinforcement" json:"-"`
	CardsReinforcement string   `yaml:"cards_reinforcement" json:"-"`
	Intros             []string `yaml:"intros" json:"-"`
}

// Default 返回内置的旁白角色。
func Default() (Narrator, error) {
	return Parse(defaultPack)
}

// Parse 解析 YAML 格式的角色包并校验必填字段。
func Parse(data []byte) (Narrator, error) {
	var n Narrator
	if err := yaml.Unmarshal(data, &n); err != nil {
		return Narrator{}, fmt.Errorf("parse narrator pack: %w", err)
	}
	n.InitialPrompt = strings.TrimSpace(n.InitialPrompt)
	n.Reinforcement = strings.TrimSpace(n.Reinforcement)
	n.CardsReinforcement = strings.TrimSpace(n.CardsReinforcement)

	intros := n.Intros[:0]
	for _, intro := range n.Intros {
		if trimmed := strings.TrimSpace(intro); trimmed != "" {
			intros = append(intros, trimmed)
		}
	}
	n.Intros = intros

	if err := n.validate(); err != nil {
		return Narrator{}, err
	}
	return n, nil
}

func (n Narrator) validate() error {
	var errs []error
	if n.InitialPrompt == "" {
		errs = append(errs, errors.New("initial_prompt is required"))
	}
	if n.Reinforcement == "" {
		errs = append(errs, errors.New("reinforcement is required"))
	}
	if n.CardsReinforcement == "" {
		errs = append(errs, errors.New("cards_reinforcement is required"))
	}
	if len(n.Intros) == 0 {
		errs = append(errs, errors.New("intros must not be empty"))
	}
	for i, intro := range n.Intros {
		// An intro without directives would end the reading before it starts.
		if directive.Parse(intro).Empty() {
			errs = append(errs, fmt.Errorf("intro %d asks no question and draws no cards", i))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid narrator pack: %w", err)
	}
	return nil
}

// Intro picks an opening line at random.
func (n Narrator) Intro() string {
	return n.Intros[rand.IntN(len(n.Intros))]
}
