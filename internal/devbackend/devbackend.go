// Package devbackend is an in-memory stand-in for the reading tracker
// backend. It serves the profile endpoints, an OAuth2 token endpoint and a
// health check, and applies the same server-side normalization as the real
// service so optimistic and confirmed values can diverge.
package devbackend

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/ory/fosite"
	"github.com/readtrack/profilesync/internal/crypto"
	jsonwriter "github.com/readtrack/profilesync/internal/json"
	"github.com/readtrack/profilesync/internal/log"
	"github.com/readtrack/profilesync/internal/server"
)

const (
	ProfilePath = "/api/auth/profile/"
	UpdatePath  = "/api/auth/user/profile/update"
	TokenPath   = "/oauth/token"
	HealthPath  = "/health"

	// ProfileScope is the only scope the dev client may request
	ProfileScope = "profile"

	DefaultTokenTTL = time.Hour
)

// Config configures a dev backend
type Config struct {
	ClientID     string
	ClientSecret string
	// Users maps usernames to passwords for the password grant
	Users map[string]string
	// GlobalSecret signs HMAC access tokens, generated when empty
	GlobalSecret   []byte
	TokenTTL       time.Duration
	Latency        time.Duration
	AllowedOrigins []string
}

// Profile is a stored reader profile. A nil Bio is served as null.
type Profile struct {
	Username string
	Bio      *string
}

// Server holds the backend state
type Server struct {
	cfg    Config
	oauth  fosite.OAuth2Provider
	router chi.Router

	mu       sync.RWMutex
	profiles map[string]Profile
	updates  int
}

// New validates cfg and builds the server with its routes
func New(cfg Config) (*Server, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if len(cfg.GlobalSecret) == 0 {
		secret, err := crypto.RandomBytes(32)
		if err != nil {
			return nil, err
		}
		cfg.GlobalSecret = secret
	}
	if len(cfg.GlobalSecret) < 32 {
		return nil, fmt.Errorf("global secret must be at least 32 bytes long, got %d bytes", len(cfg.GlobalSecret))
	}

	provider, err := newOAuth2Provider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OAuth2 provider: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		oauth:    provider,
		profiles: make(map[string]Profile, len(cfg.Users)),
	}
	for username := range cfg.Users {
		s.profiles[username] = Profile{Username: username}
	}
	s.router = s.routes()

	users := make([]string, 0, len(cfg.Users))
	for username := range cfg.Users {
		users = append(users, username)
	}
	sort.Strings(users)
	log.LogInfoWithFields("devbackend", "Dev backend initialized", map[string]any{
		"client_id": cfg.ClientID,
		"users":     users,
		"token_ttl": cfg.TokenTTL.String(),
		"latency":   cfg.Latency.String(),
	})
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(
		server.NewRequestIDMiddleware(),
		server.NewLoggerMiddleware("devbackend"),
		server.NewRecoverMiddleware("devbackend"),
		server.NewCORSMiddleware(s.cfg.AllowedOrigins),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonwriter.WriteNotFound(w, "Not found.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", fmt.Sprintf("Method %q not allowed.", r.Method))
	})

	r.Method(http.MethodGet, HealthPath, server.NewHealthHandler())
	r.Post(TokenPath, s.handleToken)
	r.Get(ProfilePath, s.handleGetProfile)
	r.With(chimiddleware.AllowContentType("application/json")).Post(UpdatePath, s.handleUpdateProfile)
	return r
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Profile returns the stored profile for subject
func (s *Server) Profile(subject string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[subject]
	if ok && p.Bio != nil {
		bio := *p.Bio
		p.Bio = &bio
	}
	return p, ok
}

// SetProfile replaces the stored profile for subject
func (s *Server) SetProfile(subject string, p Profile) {
	if p.Bio != nil {
		bio := *p.Bio
		p.Bio = &bio
	}
	s.mu.Lock()
	s.profiles[subject] = p
	s.mu.Unlock()
}

// Updates returns the number of accepted profile updates
func (s *Server) Updates() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updates
}

// profileFor returns the subject's profile, creating a default one for
// subjects that have none yet (client credentials tokens).
func (s *Server) profileFor(subject string) Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[subject]
	if !ok {
		p = Profile{Username: subject}
		s.profiles[subject] = p
	}
	return p
}

// delay simulates network latency; false means the request went away
func (s *Server) delay(ctx context.Context) bool {
	if s.cfg.Latency <= 0 {
		return true
	}
	t := time.NewTimer(s.cfg.Latency)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
