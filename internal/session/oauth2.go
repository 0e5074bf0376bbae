package session

import (
	"context"
	"fmt"
	"net/http"

	"github.com/readtrack/profilesync/internal/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Grant selects the OAuth2 grant used to obtain the credential
type Grant string

const (
	GrantPassword          Grant = "password"
	GrantClientCredentials Grant = "client_credentials"
)

// OAuth2Config configures an OAuth2 token-endpoint provider
type OAuth2Config struct {
	Grant        Grant
	TokenURL     string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	Scopes       []string

	// HTTPClient is used for the token request when set
	HTTPClient *http.Client
}

// OAuth2 acquires the reader's credential from an OAuth2 token endpoint.
// Only the access token is used; expiry is not tracked client side because
// the credential lives exactly as long as the session that cached it.
type OAuth2 struct {
	cfg OAuth2Config
}

// NewOAuth2 validates cfg and creates the provider
func NewOAuth2(cfg OAuth2Config) (*OAuth2, error) {
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("tokenURL is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("clientId is required")
	}
	switch cfg.Grant {
	case GrantPassword:
		if cfg.Username == "" || cfg.Password == "" {
			return nil, fmt.Errorf("password grant requires username and password")
		}
	case GrantClientCredentials:
	default:
		return nil, fmt.Errorf("unsupported grant: %q", cfg.Grant)
	}
	return &OAuth2{cfg: cfg}, nil
}

// Acquire implements Provider
func (p *OAuth2) Acquire(ctx context.Context) (string, error) {
	if p.cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.cfg.HTTPClient)
	}

	var (
		tok *oauth2.Token
		err error
	)
	switch p.cfg.Grant {
	case GrantPassword:
		conf := &oauth2.Config{
			ClientID:     p.cfg.ClientID,
			ClientSecret: p.cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: p.cfg.TokenURL},
			Scopes:       p.cfg.Scopes,
		}
		tok, err = conf.PasswordCredentialsToken(ctx, p.cfg.Username, p.cfg.Password)
	case GrantClientCredentials:
		conf := &clientcredentials.Config{
			ClientID:     p.cfg.ClientID,
			ClientSecret: p.cfg.ClientSecret,
			TokenURL:     p.cfg.TokenURL,
			Scopes:       p.cfg.Scopes,
		}
		tok, err = conf.Token(ctx)
	}
	if err != nil {
		return "", fmt.Errorf("requesting %s token: %w", p.cfg.Grant, err)
	}
	if tok == nil || tok.AccessToken == "" {
		return "", ErrNoCredential
	}

	log.LogDebugWithFields("session", "Acquired OAuth2 credential", map[string]any{
		"grant":     string(p.cfg.Grant),
		"tokenType": tok.Type(),
		"length":    len(tok.AccessToken),
	})
	return tok.AccessToken, nil
}
