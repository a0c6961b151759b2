package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-tarot/backend/internal/config"
	"github.com/zhouzirui/z-tarot/backend/internal/handler"
	"github.com/zhouzirui/z-tarot/backend/internal/logging"
	"github.com/zhouzirui/z-tarot/backend/internal/model/deck"
	"github.com/zhouzirui/z-tarot/backend/internal/model/narrator"
	"github.com/zhouzirui/z-tarot/backend/internal/repository/session"
	"github.com/zhouzirui/z-tarot/backend/internal/service/gateway"
	"github.com/zhouzirui/z-tarot/backend/internal/service/moderation"
	"github.com/zhouzirui/z-tarot/backend/internal/service/reading"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Info("no .env file, using system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		logrus.WithError(err).Fatal("failed to configure logging")
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("server error")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	cards, err := deck.Tarot()
	if err != nil {
		return err
	}
	persona, err := narrator.Default()
	if err != nil {
		return err
	}

	gw, err := gateway.NewFromConfig(ctx, cfg.Gateway, gateway.Prompts{
		Initial:            persona.InitialPrompt,
		Reinforcement:      persona.Reinforcement,
		CardsReinforcement: persona.CardsReinforcement,
	}, logger)
	if err != nil {
		return err
	}
	logger.WithField("backends", gw.Backends()).Info("model gateway ready")

	var moderator moderation.Moderator = moderation.Noop{}
	if cfg.Moderation.Enabled {
		moderator = moderation.NewOpenAIModerator(cfg.Moderation.APIKey, cfg.Moderation.BaseURL, cfg.Moderation.Model)
		logger.WithField("model", cfg.Moderation.Model).Info("input moderation enabled")
	}

	store, closeStore, err := session.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.WithError(err).Warn("failed to close session store")
		}
	}()
	logger.WithField("driver", cfg.Store.Driver).Info("session store ready")

	svc, err := reading.NewService(reading.Options{
		Store:     store,
		Completer: gw,
		Moderator: moderator,
		Deck:      cards,
		Narrator:  persona,
		Images:    reading.NewDirImages(cfg.Assets.ImageDir, handler.ImagePrefix, persona.Portrait),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	router := handler.NewRouter(handler.Options{
		Readings: svc,
		Deck:     cards,
		ImageDir: cfg.Assets.ImageDir,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	logger.WithField("addr", srv.Addr).Infof("%s is reading the cards", persona.Name)
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
