package reading

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-tarot/backend/internal/analysis/directive"
	"github.com/zhouzirui/z-tarot/backend/internal/model/chat"
	"github.com/zhouzirui/z-tarot/backend/internal/model/deck"
	"github.com/zhouzirui/z-tarot/backend/internal/model/narrator"
	"github.com/zhouzirui/z-tarot/backend/internal/repository/session"
	"github.com/zhouzirui/z-tarot/backend/internal/service/gateway"
	"github.com/zhouzirui/z-tarot/backend/internal/service/moderation"
)

// Completer produces the narrator's next reply for a transcript.
type Completer interface {
	Complete(ctx context.Context, log *chat.Log) (gateway.Completion, error)
}

// forgetter is implemented by stores that keep an in-process copy.
type forgetter interface {
	Forget(id string)
}

const (
	defaultReplyAttempts = 3
	headerImageCount     = 3
)

// Options wires the collaborators of a Service.
type Options struct {
	Store         session.Store
	Completer     Completer
	Moderator     moderation.Moderator
	Deck          *deck.Deck
	Narrator      narrator.Narrator
	Images        ImageSource
	Logger        logrus.FieldLogger
	ReplyAttempts int
	NewSeed       func() string
}

// Service drives a reading: it validates submissions, extends the log,
// consults the model and persists the outcome.
type Service struct {
	store         session.Store
	completer     Completer
	moderator     moderation.Moderator
	deck          *deck.Deck
	narrator      narrator.Narrator
	images        ImageSource
	log           logrus.FieldLogger
	replyAttempts int
	newSeed       func() string

	locks keyedLocks
}

func NewService(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("reading: store is required")
	}
	if opts.Completer == nil {
		return nil, errors.New("reading: completer is required")
	}
	if opts.Deck == nil {
		return nil, errors.New("reading: deck is required")
	}
	if len(opts.Narrator.Intros) == 0 {
		return nil, errors.New("reading: narrator has no intros")
	}

	s := &Service{
		store:         opts.Store,
		completer:     opts.Completer,
		moderator:     opts.Moderator,
		deck:          opts.Deck,
		narrator:      opts.Narrator,
		images:        opts.Images,
		log:           opts.Logger,
		replyAttempts: opts.ReplyAttempts,
		newSeed:       opts.NewSeed,
	}
	if s.moderator == nil {
		s.moderator = moderation.Noop{}
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.replyAttempts < 1 {
		s.replyAttempts = defaultReplyAttempts
	}
	if s.newSeed == nil {
		s.newSeed = func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }
	}
	return s, nil
}

// Deck returns the card deck readings draw from.
func (s *Service) Deck() *deck.Deck { return s.deck }

// lock serialises work on one session. Ids that cannot name a session are
// rejected before any lock is taken.
func (s *Service) lock(id string) (func(), error) {
	if err := session.ValidateID(id); err != nil {
		return nil, ErrSessionNotFound
	}
	return s.locks.acquire(id), nil
}

func (s *Service) load(ctx context.Context, id string) (*Session, error) {
	snap, err := s.store.Load(ctx, id)
	if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrInvalidID) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return sessionFromSnapshot(id, snap)
}

func (s *Service) save(ctx context.Context, sess *Session) error {
	snap, err := sess.snapshot()
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, sess.ID, snap); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *Service) logger(sess *Session) logrus.FieldLogger {
	return s.log.WithField("session", sess.ID)
}

// Start creates a session seeded with a random intro and persists it.
func (s *Service) Start(ctx context.Context) (View, error) {
	log := &chat.Log{}
	log.AddAssistant(s.narrator.Intro())

	sess := &Session{
		ID:  uuid.NewString(),
		Log: log,
		State: State{
			ReadingInProgress:  true,
			ChosenVirtualCards: []string{},
			AllChosenCards:     []string{},
			HeaderImages:       []string{},
		},
	}
	if s.images != nil {
		imgs := s.images.Sample(headerImageCount + 1)
		if len(imgs) > headerImageCount {
			sess.State.ClosingImage = imgs[headerImageCount]
			imgs = imgs[:headerImageCount]
		}
		sess.State.HeaderImages = imgs
		sess.State.NarratorImage = s.images.Portrait()
	}

	if err := s.save(ctx, sess); err != nil {
		return View{}, err
	}
	s.logger(sess).WithField("phase", PhaseIntro).Info("reading session created")
	return s.view(sess), nil
}

// Resume restores a persisted session.
func (s *Service) Resume(ctx context.Context, id string) (View, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return View{}, err
	}
	return s.view(sess), nil
}

// Begin records the draw mode and leaves the intro.
func (s *Service) Begin(ctx context.Context, id string, mode DrawMode) (View, error) {
	if !mode.Valid() {
		return View{}, fmt.Errorf("%w: %q", ErrInvalidDrawMode, mode)
	}
	unlock, err := s.lock(id)
	if err != nil {
		return View{}, err
	}
	defer unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		return View{}, err
	}
	if sess.State.StartedChat {
		return View{}, ErrAlreadyStarted
	}

	sess.State.StartedChat = true
	sess.State.DrawMode = mode
	if mode == DrawVirtual && sess.State.ShuffleSeed == "" {
		sess.State.ShuffleSeed = s.newSeed()
	}
	if err := s.save(ctx, sess); err != nil {
		return View{}, err
	}
	s.logger(sess).WithFields(logrus.Fields{"phase": sess.Phase(), "mode": mode}).Info("reading started")
	return s.view(sess), nil
}

// Shuffle replaces the virtual shuffle seed.
func (s *Service) Shuffle(ctx context.Context, id string) (View, error) {
	unlock, err := s.lock(id)
	if err != nil {
		return View{}, err
	}
	defer unlock()

	sess, err := s.loadForVirtualDraw(ctx, id)
	if err != nil {
		return View{}, err
	}
	sess.State.ShuffleSeed = s.newSeed()
	if err := s.save(ctx, sess); err != nil {
		return View{}, err
	}
	return s.view(sess), nil
}

// DrawVirtual pulls one card from the eligible pool using seed, or the
// session's shuffle seed when seed is blank.
func (s *Service) DrawVirtual(ctx context.Context, id, seed string) (View, error) {
	unlock, err := s.lock(id)
	if err != nil {
		return View{}, err
	}
	defer unlock()

	sess, err := s.loadForVirtualDraw(ctx, id)
	if err != nil {
		return View{}, err
	}
	if len(sess.State.ChosenVirtualCards) >= sess.Directives().DrawCards {
		return View{}, ErrDrawComplete
	}

	seed = strings.TrimSpace(seed)
	if seed == "" {
		seed = sess.State.ShuffleSeed
	}
	card, err := s.deck.DrawSeeded(seed, sess.State.ChosenVirtualCards, sess.State.AllChosenCards)
	if err != nil {
		return View{}, err
	}
	sess.State.ShuffleSeed = seed
	sess.State.ChosenVirtualCards = append(sess.State.ChosenVirtualCards, card)
	if err := s.save(ctx, sess); err != nil {
		return View{}, err
	}
	s.logger(sess).WithField("card", card).Debug("virtual card pulled")
	return s.view(sess), nil
}

func (s *Service) loadForVirtualDraw(ctx context.Context, id string) (*Session, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Phase() != PhaseAwaitingInput {
		return nil, ErrNotAwaitingInput
	}
	if sess.State.DrawMode != DrawVirtual {
		return nil, ErrInvalidDrawMode
	}
	return sess, nil
}

// SwitchToVirtual moves a physical-deck session to virtual drawing.
func (s *Service) SwitchToVirtual(ctx context.Context, id string) (View, error) {
	unlock, err := s.lock(id)
	if err != nil {
		return View{}, err
	}
	defer unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		return View{}, err
	}
	if sess.Phase() != PhaseAwaitingInput {
		return View{}, ErrNotAwaitingInput
	}
	if sess.State.DrawMode == DrawVirtual {
		return View{}, ErrInvalidDrawMode
	}

	sess.State.DrawMode = DrawVirtual
	sess.State.ChosenVirtualCards = []string{}
	if sess.State.ShuffleSeed == "" {
		sess.State.ShuffleSeed = s.newSeed()
	}
	if err := s.save(ctx, sess); err != nil {
		return View{}, err
	}
	return s.view(sess), nil
}

// Home drops the in-process copy of a session. The durable snapshot stays so
// the share link keeps working.
func (s *Service) Home(_ context.Context, id string) {
	if f, ok := s.store.(forgetter); ok {
		f.Forget(id)
	}
}

// Submission is the seeker's input for one turn.
type Submission struct {
	Answers []string `json:"answers"`
	Cards   []string `json:"cards"`
}

// Submit runs one turn. See SubmitObserved.
func (s *Service) Submit(ctx context.Context, id string, sub Submission) (Result, error) {
	return s.SubmitObserved(ctx, id, sub, nil)
}

// SubmitObserved validates the submission, extends the log, asks the model
// and persists the outcome. observe, if set, is told about the transient
// phases. Errors are returned only for missing sessions, wrong phase,
// persistence failures and cancellation; every other outcome is a Result.
func (s *Service) SubmitObserved(ctx context.Context, id string, sub Submission, observe func(Phase)) (Result, error) {
	if observe == nil {
		observe = func(Phase) {}
	}
	unlock, err := s.lock(id)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if sess.Phase() != PhaseAwaitingInput {
		return Result{}, ErrNotAwaitingInput
	}
	log := s.logger(sess)

	set := sess.Directives()
	cards := sub.Cards
	if sess.State.DrawMode == DrawVirtual {
		cards = sess.State.ChosenVirtualCards
	}
	if err := s.validate(set, sub.Answers, cards, sess.State.AllChosenCards); err != nil {
		log.WithError(err).Info("submission rejected")
		return s.failure(sess, ResultValidationFailed, err.Error(), false), nil
	}
	cards = append([]string(nil), cards...)

	observe(PhaseSubmitting)
	log.WithField("phase", PhaseSubmitting).Debug("submission accepted")

	draft := sess.Log.Clone()
	var userText string
	if len(set.Questions) > 0 {
		userText = strings.Join(sub.Answers, "\n\n")
		draft.AddUser(userText)
	}
	if len(cards) > 0 {
		draft.AddSystem(chat.CardsAnnouncement(cards))
	}

	if userText != "" {
		err := s.moderator.Check(ctx, userText)
		switch {
		case errors.Is(err, moderation.ErrFlagged):
			return s.flag(ctx, sess, draft, cards)
		case err != nil:
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			log.WithError(err).Warn("moderation unavailable, continuing")
		}
	}

	observe(PhaseAwaitingModel)
	remaining := len(s.deck.Eligible(sess.State.AllChosenCards, cards))
	var (
		reply  string
		tokens int
	)
	for attempt := 1; attempt <= s.replyAttempts; attempt++ {
		completion, err := s.completer.Complete(ctx, draft)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			log.WithError(err).Error("model gateway failed")
			return s.failure(sess, ResultGatewayExhausted, msgGatewayExhausted, true), nil
		}
		if err := checkReply(completion.Text, remaining); err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"attempt": attempt,
				"backend": completion.Backend,
				"tokens":  completion.TotalTokens,
			}).Warn("discarding unparseable reply")
			continue
		}
		reply = completion.Text
		tokens = completion.TotalTokens
		break
	}
	if reply == "" {
		return s.failure(sess, ResultReplyUnparseable, msgReplyUnparseable, true), nil
	}

	draft.AddAssistant(reply)
	sess.Log = draft
	sess.State.AllChosenCards = append(sess.State.AllChosenCards, cards...)
	sess.State.ChosenVirtualCards = []string{}
	sess.State.TotalTokensUsed += tokens
	sess.State.Flagged = false
	if sess.Phase() == PhaseConcluded {
		sess.State.ReadingInProgress = false
	}
	if err := s.save(ctx, sess); err != nil {
		return Result{}, err
	}

	log.WithFields(logrus.Fields{"phase": sess.Phase(), "tokens": tokens}).Info("turn committed")
	return Result{Kind: ResultCommitted, View: s.view(sess)}, nil
}

// flag persists the partial log without an assistant turn.
func (s *Service) flag(ctx context.Context, sess *Session, draft *chat.Log, cards []string) (Result, error) {
	sess.Log = draft
	sess.State.AllChosenCards = append(sess.State.AllChosenCards, cards...)
	sess.State.ChosenVirtualCards = []string{}
	sess.State.Flagged = true
	if err := s.save(ctx, sess); err != nil {
		return Result{}, err
	}
	s.logger(sess).Warn("submission flagged by moderation")

	v := s.view(sess)
	v.Error = msgFlagged
	return Result{Kind: ResultFlagged, Message: msgFlagged, View: v}, nil
}

func (s *Service) failure(sess *Session, kind ResultKind, msg string, retry bool) Result {
	v := s.view(sess)
	v.Error = msg
	v.CanRetry = retry
	return Result{Kind: kind, Message: msg, View: v}
}

func (s *Service) validate(set directive.Set, answers, cards, previous []string) error {
	if len(answers) != len(set.Questions) || len(cards) != set.DrawCards {
		return &ValidationError{Message: msgIncomplete}
	}
	for _, a := range answers {
		if strings.TrimSpace(a) == "" {
			return &ValidationError{Message: msgIncomplete}
		}
	}

	drawn := make(map[string]struct{}, len(previous))
	for _, c := range previous {
		drawn[c] = struct{}{}
	}
	seen := make(map[string]struct{}, len(cards))
	for _, c := range cards {
		if strings.TrimSpace(c) == "" {
			return &ValidationError{Message: msgIncomplete}
		}
		if !s.deck.Contains(c) {
			return &ValidationError{Message: fmt.Sprintf("Unknown card: %s", c)}
		}
		if _, dup := seen[c]; dup {
			return &ValidationError{Message: msgDuplicateCard}
		}
		if _, ok := drawn[c]; ok {
			return &ValidationError{Message: fmt.Sprintf("%s was already drawn in this reading", c)}
		}
		seen[c] = struct{}{}
	}
	return nil
}

// checkReply accepts a reply that parses and does not ask for more cards
// than the deck still holds.
func checkReply(text string, remaining int) error {
	set, err := directive.ParseStrict(text)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReplyUnparseable, err)
	}
	if set.DrawCards > remaining {
		return fmt.Errorf("%w: asks for %d cards, %d left", ErrReplyUnparseable, set.DrawCards, remaining)
	}
	return nil
}
