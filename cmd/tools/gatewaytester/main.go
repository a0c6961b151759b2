package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-tarot/backend/internal/analysis/directive"
	"github.com/zhouzirui/z-tarot/backend/internal/config"
	"github.com/zhouzirui/z-tarot/backend/internal/logging"
	"github.com/zhouzirui/z-tarot/backend/internal/model/chat"
	"github.com/zhouzirui/z-tarot/backend/internal/model/narrator"
	"github.com/zhouzirui/z-tarot/backend/internal/repository/session"
	"github.com/zhouzirui/z-tarot/backend/internal/service/gateway"
)

type options struct {
	backend string
	timeout time.Duration
	verbose bool
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] 无法加载 .env，改用系统环境变量: %v\n", err)
	}
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "gatewaytester",
		Short:        "Exercise the model gateway outside the web server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.backend, "backend", "b", "chain", "chain, gemini, ark or openai")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall request timeout")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log every attempt")

	root.AddCommand(newAskCmd(opts), newReplayCmd(opts))
	return root
}

func newAskCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <message>",
		Short: "Send an intro plus one seeker message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			persona, err := narrator.Default()
			if err != nil {
				return err
			}
			log := &chat.Log{}
			log.AddAssistant(persona.Intro())
			log.AddUser(strings.Join(args, " "))
			return complete(cmd, opts, persona, log)
		},
	}
}

func newReplayCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <session-id>",
		Short: "Re-send a stored session's transcript without saving the reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, closeStore, err := session.Open(cmd.Context(), cfg.Store)
			if err != nil {
				return err
			}
			defer closeStore()

			snap, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("load session %s: %w", args[0], err)
			}
			persona, err := narrator.Default()
			if err != nil {
				return err
			}
			return complete(cmd, opts, persona, snap.History)
		},
	}
}

func complete(cmd *cobra.Command, opts *options, persona narrator.Narrator, log *chat.Log) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.Discard()
	if opts.verbose {
		logger.SetOutput(cmd.ErrOrStderr())
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	tiers, err := gateway.Tiers(ctx, cfg.Gateway, logger)
	if err != nil {
		return err
	}
	tiers, err = selectTiers(tiers, opts.backend)
	if err != nil {
		return err
	}
	gw, err := gateway.New(gateway.Prompts{
		Initial:            persona.InitialPrompt,
		Reinforcement:      persona.Reinforcement,
		CardsReinforcement: persona.CardsReinforcement,
	}, tiers, gateway.WithLogger(logger))
	if err != nil {
		return err
	}

	started := time.Now()
	completion, err := gw.Complete(ctx, log)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), completion, time.Since(started))
}

// selectTiers keeps the whole chain or only the named provider's slot.
func selectTiers(tiers []gateway.Tier, backend string) ([]gateway.Tier, error) {
	slots := map[string]int{gateway.SlotGemini: 0, gateway.SlotArk: 1, gateway.SlotOpenAI: 2}
	if backend == "chain" {
		return tiers, nil
	}
	i, ok := slots[backend]
	if !ok || i >= len(tiers) {
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
	return tiers[i : i+1], nil
}

func render(w io.Writer, c gateway.Completion, took time.Duration) error {
	if _, err := directive.ParseStrict(c.Text); err != nil {
		fmt.Fprintf(w, "[WARN] reply would be rejected: %v\n", err)
	}
	set := directive.Parse(c.Text)
	fmt.Fprintf(w, "backend: %s\ntokens:  %d\nelapsed: %s\n\n", c.Backend, c.TotalTokens, took.Round(time.Millisecond))
	fmt.Fprintln(w, set.CleanedContent)
	for _, q := range set.Questions {
		fmt.Fprintf(w, "\n? %s", q)
	}
	if set.DrawCards > 0 {
		fmt.Fprintf(w, "\n# draw %d card(s)", set.DrawCards)
	}
	if set.Empty() {
		fmt.Fprint(w, "\n# reading concluded")
	}
	_, err := fmt.Fprintln(w)
	return err
}
