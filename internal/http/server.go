package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"metas/internal/log"
	"metas/internal/metrics"
	"metas/internal/middleware/auth"
	"metas/internal/middleware/ratelimit"
	"metas/internal/middleware/security"
	"metas/internal/middleware/trace"
	"metas/internal/services"
	"metas/internal/session"
)

// DefaultMaxUploadSize caps a proof upload when Deps leaves it unset.
const DefaultMaxUploadSize int64 = 10 << 20

const fileCacheMaxAge = 24 * 60 * 60

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the server routes to. Limiter, Files and
// Ready are optional.
type Deps struct {
	Services *services.Services
	Sessions *session.Store
	Verifier *auth.Verifier
	Logger   *log.Logger

	// Limiter throttles writes per user. Nil disables rate limiting.
	Limiter ratelimit.Allower
	// Files serves stored proof files relative to the upload root.
	Files http.Handler
	// Ready lists the dependencies checked by /readyz, by name.
	Ready map[string]Pinger
	// TrustedProxies extend the private ranges allowed to forward client IPs.
	TrustedProxies []string

	MaxUploadSize int64
}

type Server struct {
	http.Server
	deps      Deps
	logger    *log.Logger
	detector  *security.Detector
	startedAt time.Time

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}
	if deps.MaxUploadSize <= 0 {
		deps.MaxUploadSize = DefaultMaxUploadSize
	}

	s := &Server{
		deps:      deps,
		logger:    deps.Logger.WithComponent(log.ComponentHTTP),
		detector:  security.NewDetector(),
		startedAt: time.Now(),
	}
	for _, cidr := range deps.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			s.logger.Warn("Ignoring trusted proxy", "cidr", cidr, log.FieldError, err)
		}
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(trace.NewMiddleware(s.deps.Logger, s.detector.ExtractClientIP).Middleware)
	r.Use(chimw.Recoverer)
	r.Use(s.detector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.deps.Verifier.Middleware)
		r.Use(s.limitWrites)

		r.Post("/session", s.handleSignIn)

		r.Group(func(r chi.Router) {
			r.Use(s.withSession)

			r.Delete("/session", s.handleSignOut)
			r.Get("/me", s.handleMe)
			r.Put("/me/payout-key", s.handleUpdatePayoutKey)

			r.Get("/goals", s.handleListGoals)
			r.Post("/goals", s.handleCreateGoal)
			r.Route("/goals/{goalID}", func(r chi.Router) {
				r.Get("/", s.handleGetGoal)
				r.Patch("/", s.handleUpdateGoal)
				r.Delete("/", s.handleDeleteGoal)

				r.Post("/slots", s.handleRequestSlots)
				r.Post("/slots/draw", s.handleDrawSlot)
				r.Delete("/slots/{slot}", s.handleReleaseSlot)

				r.Get("/proofs", s.handleListProofs)
				r.Post("/proofs", s.handleSubmitProof)
				r.Get("/aggregate", s.handleAggregate)
				r.Get("/ranking", s.handleRanking)

				r.Get("/invitations", s.handleListGoalInvitations)
				r.Post("/invitations", s.handleInvite)
			})

			r.Post("/proofs/{proofID}/decision", s.handleDecideProof)

			r.Get("/invitations", s.handleListMyInvitations)
			r.Post("/invitations/{invitationID}/accept", s.handleAcceptInvitation)
			r.Post("/invitations/{invitationID}/reject", s.handleRejectInvitation)
		})
	})

	if s.deps.Files != nil {
		r.With(s.deps.Verifier.Middleware, s.withSession, security.PrivateFileMiddleware(fileCacheMaxAge)).
			Get("/files/{goalID}/*", s.handleFile)
	}

	return r
}

// limitWrites applies the rate limiter to state-changing requests, keyed
// by the authenticated user.
func (s *Server) limitWrites(next http.Handler) http.Handler {
	if s.deps.Limiter == nil {
		return next
	}
	limited := ratelimit.Middleware(s.deps.Limiter, "api_writes", func(r *http.Request) string {
		if u, err := auth.UserFromContext(r.Context()); err == nil {
			return "user:" + u.ID
		}
		return "ip:" + s.detector.ExtractClientIP(r)
	})(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
		default:
			limited.ServeHTTP(w, r)
		}
	})
}

// Shutdown stops accepting requests and snapshots live sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
		if s.deps.Sessions != nil {
			n := s.deps.Sessions.Flush()
			s.logger.Info("Sessions flushed", "count", n)
		}
	})
	return shutdownErr
}
