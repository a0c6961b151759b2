package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-tarot/backend/internal/model/chat"
)

// Backend is one model provider in the fallback chain.
type Backend interface {
	Name() string
	Complete(ctx context.Context, messages []chat.Turn) (Completion, error)
}

// Completion is a successful model reply.
type Completion struct {
	Text        string
	Backend     string
	TotalTokens int
}

// Policy bounds the attempts made against one backend. The pause before
// attempt n+1 is Delay*n.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Tier pairs a backend with its retry policy.
type Tier struct {
	Backend Backend
	Policy  Policy
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Gateway sends a transcript through an ordered chain of backends and returns
// the first non-blank reply.
type Gateway struct {
	tiers   []Tier
	prompts Prompts
	log     logrus.FieldLogger
	sleep   SleepFunc
}

// Option customises a Gateway.
type Option func(*Gateway)

func WithLogger(log logrus.FieldLogger) Option {
	return func(g *Gateway) { g.log = log }
}

// WithSleep replaces the backoff timer.
func WithSleep(sleep SleepFunc) Option {
	return func(g *Gateway) { g.sleep = sleep }
}

// New builds a gateway over tiers, tried in the given order.
func New(prompts Prompts, tiers []Tier, opts ...Option) (*Gateway, error) {
	if len(tiers) == 0 {
		return nil, errors.New("gateway: at least one backend is required")
	}
	for i, t := range tiers {
		if t.Backend == nil {
			return nil, fmt.Errorf("gateway: backend %d is nil", i)
		}
	}

	g := &Gateway{
		tiers:   append([]Tier(nil), tiers...),
		prompts: prompts,
		log:     logrus.StandardLogger(),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Backends lists backend names in chain order.
func (g *Gateway) Backends() []string {
	names := make([]string, len(g.tiers))
	for i, t := range g.tiers {
		names[i] = t.Backend.Name()
	}
	return names
}

// Complete wraps the transcript with the system directives and asks the chain
// for a reply. Only the last backend's failure is fatal; it is reported as
// ErrGatewayExhausted wrapping the backend's ExhaustedError.
func (g *Gateway) Complete(ctx context.Context, log *chat.Log) (Completion, error) {
	messages := BuildMessages(g.prompts, log.Turns())

	for i, tier := range g.tiers {
		name := tier.Backend.Name()
		completion, err := g.run(ctx, tier, messages)
		if err == nil {
			g.log.WithFields(logrus.Fields{
				"backend": name,
				"tokens":  completion.TotalTokens,
			}).Info("model reply received")
			return completion, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Completion{}, ctxErr
		}

		if i == len(g.tiers)-1 {
			g.log.WithError(err).WithField("backend", name).Error("last model backend exhausted")
			return Completion{}, fmt.Errorf("%w: %w", ErrGatewayExhausted, err)
		}
		g.log.WithError(err).WithFields(logrus.Fields{
			"backend": name,
			"next":    g.tiers[i+1].Backend.Name(),
		}).Warn("falling back to next model backend")
	}
	return Completion{}, ErrGatewayExhausted
}

func (g *Gateway) run(ctx context.Context, tier Tier, messages []chat.Turn) (Completion, error) {
	name := tier.Backend.Name()
	attempts := tier.Policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for n := 1; n <= attempts; n++ {
		if err := ctx.Err(); err != nil {
			return Completion{}, err
		}

		completion, err := tier.Backend.Complete(ctx, messages)
		if err == nil && strings.TrimSpace(completion.Text) == "" {
			err = Transient(ErrBlankReply)
		}
		if err == nil {
			completion.Backend = name
			return completion, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Completion{}, ctxErr
		}

		lastErr = err
		entry := g.log.WithError(err).WithFields(logrus.Fields{
			"backend": name,
			"attempt": n,
		})
		if IsPermanent(err) {
			entry.Warn("model backend failed permanently")
			return Completion{}, &ExhaustedError{Backend: name, Attempts: n, Err: err}
		}
		entry.Warn("model backend attempt failed")

		if n < attempts {
			if err := g.sleep(ctx, tier.Policy.Delay*time.Duration(n)); err != nil {
				return Completion{}, err
			}
		}
	}
	return Completion{}, &ExhaustedError{Backend: name, Attempts: attempts, Err: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Unconfigured fills a chain slot whose provider has no credentials. It
// fails permanently so the chain moves on without waiting.
type Unconfigured string

func (u Unconfigured) Name() string { return string(u) }

func (u Unconfigured) Complete(context.Context, []chat.Turn) (Completion, error) {
	return Completion{}, Permanent(fmt.Errorf("%s: %w", string(u), ErrNotConfigured))
}
