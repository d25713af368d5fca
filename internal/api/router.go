package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/texttospeech/internal/account"
	"github.com/nikhilbhutani/texttospeech/internal/api/handlers"
	"github.com/nikhilbhutani/texttospeech/internal/api/middleware"
	"github.com/nikhilbhutani/texttospeech/internal/auth"
	"github.com/nikhilbhutani/texttospeech/internal/cache"
	"github.com/nikhilbhutani/texttospeech/internal/config"
	"github.com/nikhilbhutani/texttospeech/internal/queue"
	"github.com/nikhilbhutani/texttospeech/internal/speech"
	"github.com/nikhilbhutani/texttospeech/internal/storage"
	"github.com/nikhilbhutani/texttospeech/internal/synthesis"
	"github.com/nikhilbhutani/texttospeech/internal/voice"
)

// Services are the collaborators the HTTP layer dispatches to.
type Services struct {
	Speech *speech.Service
	Auth   *auth.Service
	JWT    *auth.JWTMiddleware
	Health *handlers.HealthHandler
}

type Router struct {
	mux     *chi.Mux
	cfg     *config.Config
	svc     Services
	limiter *middleware.RateLimiter
	closers []io.Closer
}

// NewRouter builds the production services on top of db and rdb.
func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config) (*Router, error) {
	var closers []io.Closer

	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open voice storage: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		closers = append(closers, c)
	}

	synth, err := synthesis.New(cfg.TTS)
	if err != nil {
		closeAll(closers)
		return nil, fmt.Errorf("create synthesizer: %w", err)
	}
	if c, ok := synth.(io.Closer); ok {
		closers = append(closers, c)
	}

	queueClient := queue.NewClient(cfg.Redis)
	closers = append(closers, queueClient)

	speechSvc := speech.NewService(
		speech.NewPostgresRepository(db),
		synth,
		voice.NewManager(store, cfg.Voice.Dir),
		queueClient,
		speech.Options{
			SynthesisTimeout: cfg.TTSTimeout(),
			ValidateMP3:      cfg.Voice.ValidateMP3,
		},
	)

	accounts := account.NewStore(db)
	var tokenCache auth.TokenCache
	if rdb != nil {
		tokenCache = cache.NewCache(rdb, "tts:auth:")
	}

	return New(cfg, Services{
		Speech: speechSvc,
		Auth:   auth.NewService(accounts, cfg.Auth.JWTSecret, cfg.TokenTTL()),
		JWT:    auth.NewJWTMiddleware(cfg.Auth.JWTSecret, accounts, tokenCache, cfg.AuthCacheTTL()),
		Health: handlers.NewHealthHandler(db, rdb),
	}, closers...), nil
}

// New wires svc into a router. closers are closed by Close.
func New(cfg *config.Config, svc Services, closers ...io.Closer) *Router {
	return &Router{
		mux:     chi.NewRouter(),
		cfg:     cfg,
		svc:     svc,
		closers: closers,
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.StripSlashes)
	r.Use(middleware.CORS(rt.cfg.Server.CORSOrigins))

	if rt.cfg.RateLimit.RPS > 0 {
		rt.limiter = middleware.NewRateLimiter(rt.cfg.RateLimit.RPS, rt.cfg.RateLimit.Burst)
		r.Use(rt.limiter.Limit)
	}

	// Health endpoints (no auth)
	r.Get("/healthz", rt.svc.Health.Healthz)
	r.Get("/readyz", rt.svc.Health.Readyz)

	authH := handlers.NewAuthHandler(rt.svc.Auth)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authH.Register)
		r.Post("/token", authH.Token)
	})

	speechH := handlers.NewSpeechHandler(rt.svc.Speech)
	r.Group(func(r chi.Router) {
		r.Use(rt.svc.JWT.Authenticate)

		r.Route("/text-to-speech", func(r chi.Router) {
			r.Get("/", speechH.List)
			r.Post("/", speechH.Create)
			r.Get("/{id}", speechH.Get)
			r.Put("/{id}", speechH.Update)
			r.Delete("/{id}", speechH.Delete)
		})
		r.Get("/download-voice/{file_name}", speechH.Download)
	})

	return r
}

// Close stops background work and releases backend connections.
func (rt *Router) Close() error {
	if rt.limiter != nil {
		rt.limiter.Stop()
	}
	return closeAll(rt.closers)
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
