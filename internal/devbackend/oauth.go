package devbackend

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ory/fosite"
	"github.com/ory/fosite/compose"
	"github.com/ory/fosite/storage"
	"github.com/readtrack/profilesync/internal/crypto"
	"github.com/readtrack/profilesync/internal/log"
)

var (
	errNoCredentials = errors.New("Authentication credentials were not provided.")
	errInvalidToken  = errors.New("Given token not valid for any token type")
)

func newOAuth2Provider(cfg Config) (fosite.OAuth2Provider, error) {
	hashed, err := crypto.HashClientSecret(cfg.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to hash client secret: %w", err)
	}

	store := storage.NewMemoryStore()
	store.Clients[cfg.ClientID] = &fosite.DefaultClient{
		ID:            cfg.ClientID,
		Secret:        hashed,
		GrantTypes:    fosite.Arguments{"password", "client_credentials"},
		ResponseTypes: fosite.Arguments{"token"},
		Scopes:        fosite.Arguments{ProfileScope},
	}
	for username, password := range cfg.Users {
		store.Users[username] = storage.MemoryUserRelation{
			Username: username,
			Password: password,
		}
	}

	// Only HMAC access tokens are issued, the key backs the unused OpenID strategy
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	fositeConfig := &fosite.Config{
		AccessTokenLifespan:      cfg.TokenTTL,
		RefreshTokenLifespan:     cfg.TokenTTL * 2,
		GlobalSecret:             cfg.GlobalSecret,
		ScopeStrategy:            fosite.HierarchicScopeStrategy,
		AudienceMatchingStrategy: fosite.DefaultAudienceMatchingStrategy,
	}
	return compose.ComposeAllEnabled(fositeConfig, store, key), nil
}

// handleToken serves the password and client credentials grants
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session := &fosite.DefaultSession{}
	ar, err := s.oauth.NewAccessRequest(ctx, r, session)
	if err != nil {
		log.LogWarnWithFields("devbackend", "Token request rejected", map[string]any{
			"error": fosite.ErrorToRFC6749Error(err).ErrorField,
			"hint":  fosite.ErrorToRFC6749Error(err).HintField,
		})
		s.oauth.WriteAccessError(ctx, w, ar, err)
		return
	}

	for _, scope := range ar.GetRequestedScopes() {
		ar.GrantScope(scope)
	}

	subject := ar.GetClient().GetID()
	if ar.GetGrantTypes().ExactOne("password") {
		subject = r.PostFormValue("username")
	}
	session.Subject = subject
	session.Username = subject

	resp, err := s.oauth.NewAccessResponse(ctx, ar)
	if err != nil {
		log.LogErrorWithFields("devbackend", "Failed to issue access token", map[string]any{
			"error": err.Error(),
		})
		s.oauth.WriteAccessError(ctx, w, ar, err)
		return
	}

	log.LogInfoWithFields("devbackend", "Access token issued", map[string]any{
		"subject": subject,
		"grant":   strings.Join(ar.GetGrantTypes(), " "),
	})
	s.oauth.WriteAccessResponse(ctx, w, ar, resp)
}

// authenticate resolves the bearer token on r to its subject
func (s *Server) authenticate(r *http.Request) (string, error) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", errNoCredentials
	}

	// The returned requester carries the stored session, not the argument
	_, ar, err := s.oauth.IntrospectToken(r.Context(), token, fosite.AccessToken, &fosite.DefaultSession{})
	if err != nil || ar == nil {
		return "", errInvalidToken
	}
	subject := ar.GetSession().GetSubject()
	if subject == "" {
		return "", errInvalidToken
	}
	return subject, nil
}
