package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/readaloud/internal/api/handlers"
	"github.com/nikhilbhutani/readaloud/internal/api/middleware"
	"github.com/nikhilbhutani/readaloud/internal/config"
)

type Router struct {
	mux    *chi.Mux
	db     *pgxpool.Pool
	redis  *redis.Client
	cfg    *config.Config
	runner handlers.Runner
}

// NewRouter wires the HTTP surface. db and rdb may be nil when the
// corresponding store is not configured.
func NewRouter(cfg *config.Config, runner handlers.Runner, db *pgxpool.Pool, rdb *redis.Client) *Router {
	return &Router{
		mux:    chi.NewRouter(),
		db:     db,
		redis:  rdb,
		cfg:    cfg,
		runner: runner,
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	demo := handlers.NewDemoHandler()
	r.Get("/", demo.Root)

	transcribeH := handlers.NewTranscribeHandler(rt.runner, int64(rt.cfg.Upload.MaxMemoryMiB)<<20, rt.cfg.Development())
	r.Route("/api", func(r chi.Router) {
		r.Get("/users/{id}", demo.GetUser)
		r.Post("/users", demo.CreateUser)
		r.Post("/transcribe", transcribeH.Transcribe)
	})

	return r
}
