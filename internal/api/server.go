package api

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/dgallion1/stockclass/internal/config"
	"github.com/dgallion1/stockclass/internal/selection"
	"github.com/dgallion1/stockclass/internal/workflow"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
)

const cookieName = "stockclass"

// Server is the HTTP front end for the classification filter. Each browser
// gets its own workflow, keyed by a signed session cookie.
type Server struct {
	router   chi.Router
	client   workflow.Client
	sessions *SessionStore
	cookies  sessions.Store
	page     *template.Template
	intro    template.HTML
	log      *slog.Logger
	cfg      config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(client workflow.Client, log *slog.Logger, cfg config.Config) (*Server, error) {
	page, intro, err := loadTemplates()
	if err != nil {
		return nil, err
	}

	cookies := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	s := &Server{
		client:  client,
		cookies: cookies,
		page:    page,
		intro:   intro,
		log:     log,
		cfg:     cfg,
	}
	s.sessions = NewSessionStore(cfg.SessionTTL, s.newWorkflow)
	s.setupRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Sessions exposes the session registry so the caller can run eviction.
func (s *Server) Sessions() *SessionStore {
	return s.sessions
}

// Close closes every session and waits for their background work.
func (s *Server) Close() {
	s.sessions.CloseAll()
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	r.Get("/api/stats/upstream", s.handleUpstreamStats)

	// Session endpoints.
	r.Group(func(r chi.Router) {
		r.Use(SessionMiddleware(s.cookies, s.sessions, s.log))

		r.Get("/", s.handlePage)
		r.Post("/load", s.handleLoad)
		r.Post("/select/{level}", s.handleSelect)
		r.Post("/search", s.handleSearch)

		r.Post("/edit/open/{row}", s.handleEditOpen)
		r.Post("/edit/draft", s.handleEditDraft)
		r.Post("/edit/cancel", s.handleEditCancel)
		r.Post("/edit/submit", s.handleEditSubmit)

		r.Get("/api/state", s.handleState)
	})

	s.router = r
}

// newWorkflow builds and mounts the controller for a new session.
func (s *Server) newWorkflow() *workflow.Workflow {
	log := s.log.With("component", "workflow")
	wf := workflow.New(s.client, log,
		workflow.WithRefreshTimeout(s.cfg.HTTPTimeout),
		workflow.WithNotifier(func(n selection.Notification) {
			log.Debug("selection changed", "selection", n)
		}),
	)
	wf.Mount()
	return wf
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type ctxKey struct{}

func withSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, sess)
}

// sessionFrom returns the session attached by SessionMiddleware.
func sessionFrom(ctx context.Context) *Session {
	sess, _ := ctx.Value(ctxKey{}).(*Session)
	return sess
}
