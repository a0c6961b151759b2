package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-tarot/backend/internal/handler/reading"
	"github.com/zhouzirui/z-tarot/backend/internal/handler/socket"
	"github.com/zhouzirui/z-tarot/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/z-tarot/backend/internal/middleware"
	"github.com/zhouzirui/z-tarot/backend/internal/model/deck"
	readingService "github.com/zhouzirui/z-tarot/backend/internal/service/reading"
	"github.com/zhouzirui/z-tarot/backend/pkg/utils"
)

// ImagePrefix is the URL path images are served under.
const ImagePrefix = "/images/"

// Options configures NewRouter.
type Options struct {
	Readings *readingService.Service
	Deck     *deck.Deck
	ImageDir string
	Logger   *logrus.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: opts.Logger, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if opts.ImageDir != "" {
		r.Handle(ImagePrefix+"*", http.StripPrefix(ImagePrefix, http.FileServer(http.Dir(opts.ImageDir))))
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/deck", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{"cards": opts.Deck.Cards()})
		})

		reading.New(opts.Readings, opts.Logger).RegisterRoutes(api)
		stream.New(opts.Readings, opts.Logger).RegisterRoutes(api)
		socket.New(opts.Readings, opts.Logger).RegisterRoutes(api)
	})

	return r
}
