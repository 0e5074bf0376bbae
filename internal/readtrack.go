package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/readtrack/profilesync/internal/backend"
	"github.com/readtrack/profilesync/internal/config"
	"github.com/readtrack/profilesync/internal/crypto"
	"github.com/readtrack/profilesync/internal/log"
	"github.com/readtrack/profilesync/internal/profile"
	"github.com/readtrack/profilesync/internal/session"
	"github.com/readtrack/profilesync/internal/storage"
	"github.com/readtrack/profilesync/internal/token"
	"google.golang.org/api/option"
)

// App holds the long-lived dependencies built from configuration. Sessions
// opened from it share storage and the backend client but nothing else.
type App struct {
	config   config.Config
	storage  storage.Storage
	provider session.Provider
	stored   *session.Stored
	backend  *backend.Client
	policy   profile.SaveFailurePolicy
	reporter profile.Reporter
}

type appOptions struct {
	httpClient *http.Client
	reporter   profile.Reporter
	storage    storage.Storage
}

// AppOption configures NewApp
type AppOption func(*appOptions)

// WithHTTPClient routes backend and token endpoint requests through c
func WithHTTPClient(c *http.Client) AppOption {
	return func(o *appOptions) {
		o.httpClient = c
	}
}

// WithReporter adds a reporter next to the structured log reporter
func WithReporter(r profile.Reporter) AppOption {
	return func(o *appOptions) {
		o.reporter = r
	}
}

// WithStorage uses s instead of the storage named in the config
func WithStorage(s storage.Storage) AppOption {
	return func(o *appOptions) {
		o.storage = s
	}
}

// NewApp builds storage, the session provider and the backend client
func NewApp(ctx context.Context, cfg config.Config, opts ...AppOption) (*App, error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	log.LogInfoWithFields("readtrack", "Building application", map[string]any{
		"baseURL": cfg.Backend.BaseURL,
		"session": string(cfg.Session.Kind),
		"storage": string(cfg.Storage.Kind),
	})

	policy, err := profile.ParseSaveFailurePolicy(cfg.Sync.OnSaveFailure)
	if err != nil {
		return nil, err
	}

	store := o.storage
	if store == nil {
		store, err = setupStorage(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to setup storage: %w", err)
		}
	}

	provider, stored, err := setupProvider(cfg.Session, store, o.httpClient)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to setup session provider: %w", err)
	}

	clientOpts := []backend.Option{
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithPaths(cfg.Backend.ProfilePath, cfg.Backend.UpdatePath),
	}
	if cfg.Backend.UserAgent != "" {
		clientOpts = append(clientOpts, backend.WithUserAgent(cfg.Backend.UserAgent))
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, backend.WithHTTPClient(o.httpClient))
	}
	client, err := backend.NewClient(cfg.Backend.BaseURL, clientOpts...)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	var reporter profile.Reporter = profile.LogReporter{}
	if o.reporter != nil {
		reporter = profile.MultiReporter{profile.LogReporter{}, o.reporter}
	}

	return &App{
		config:   cfg,
		storage:  store,
		provider: provider,
		stored:   stored,
		backend:  client,
		policy:   policy,
		reporter: reporter,
	}, nil
}

// setupStorage creates storage based on configuration
func setupStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	var encryptor crypto.Encryptor
	if cfg.EncryptionKey != "" {
		var err error
		encryptor, err = crypto.NewEncryptor([]byte(cfg.EncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create encryptor: %w", err)
		}
	}

	switch cfg.Kind {
	case config.StorageKindSQLite:
		log.LogInfoWithFields("storage", "Using SQLite storage", map[string]any{
			"path":      cfg.Path,
			"encrypted": encryptor != nil,
		})
		s, err := storage.NewSQLiteStorage(ctx, cfg.Path, encryptor)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StorageKindFirestore:
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    cfg.GCPProject,
			"database":   cfg.Database,
			"collection": cfg.Collection,
		})
		var opts []option.ClientOption
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
		s, err := storage.NewFirestoreStorage(ctx, cfg.GCPProject, cfg.Database, cfg.Collection, encryptor, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		log.LogInfoWithFields("storage", "Using in-memory storage", map[string]any{})
		return storage.NewMemoryStorage(), nil
	}
}

// setupProvider builds the credential provider. The second return value is
// set for stored sessions so logout can delete the persisted credential.
func setupProvider(cfg config.SessionConfig, store storage.CredentialStore, httpClient *http.Client) (session.Provider, *session.Stored, error) {
	var fallback session.Provider
	source := string(config.SessionKindStatic)
	if cfg.OAuth2 != nil {
		p, err := session.NewOAuth2(session.OAuth2Config{
			Grant:        session.Grant(cfg.OAuth2.Grant),
			TokenURL:     cfg.OAuth2.TokenURL,
			ClientID:     cfg.OAuth2.ClientID,
			ClientSecret: string(cfg.OAuth2.ClientSecret),
			Username:     cfg.OAuth2.Username,
			Password:     string(cfg.OAuth2.Password),
			Scopes:       cfg.OAuth2.Scopes,
			HTTPClient:   httpClient,
		})
		if err != nil {
			return nil, nil, err
		}
		fallback = p
		source = "oauth2:" + cfg.OAuth2.Grant
	} else if cfg.Token != "" {
		fallback = session.NewStatic(string(cfg.Token))
	}

	switch cfg.Kind {
	case config.SessionKindStatic:
		return session.NewStatic(string(cfg.Token)), nil, nil
	case config.SessionKindOAuth2:
		if fallback == nil {
			return nil, nil, fmt.Errorf("oauth2 session requires an oauth2 block")
		}
		return fallback, nil, nil
	case config.SessionKindStored:
		stored := session.NewStored(store, cfg.Account, fallback, source)
		return stored, stored, nil
	default:
		return nil, nil, fmt.Errorf("unknown session kind %q", cfg.Kind)
	}
}

// Config returns the configuration the app was built from
func (a *App) Config() config.Config {
	return a.config
}

// Close releases storage
func (a *App) Close() error {
	return a.storage.Close()
}

// Session is one signed-in period. It owns a token cache, a profile store
// and the controller writing to it; all three end with Close.
type Session struct {
	Store      *profile.Store
	Controller *profile.Controller
	Tokens     *token.Cache

	app    *App
	cancel context.CancelFunc
}

// OpenSession starts a session and shows the last confirmed profile, if one
// was persisted, until the first fetch completes.
func (a *App) OpenSession(ctx context.Context) (*Session, error) {
	lifetime, cancel := context.WithCancel(context.WithoutCancel(ctx))

	tokens := token.NewCache(a.provider)
	store := profile.NewStore(profile.Data{})
	controller := profile.NewController(lifetime, store, tokens, a.backend,
		profile.WithReporter(a.reporter),
		profile.WithSaveFailurePolicy(a.policy),
		profile.WithSnapshotStore(a.storage, a.config.Session.Account),
	)

	s := &Session{
		Store:      store,
		Controller: controller,
		Tokens:     tokens,
		app:        a,
		cancel:     cancel,
	}

	restored, err := controller.Restore(ctx)
	if err != nil {
		// Last-known-good data is a convenience, the session works without it
		log.LogWarnWithFields("readtrack", "Failed to restore profile snapshot", map[string]any{
			"account": a.config.Session.Account,
			"error":   err.Error(),
		})
	}

	log.LogDebugWithFields("readtrack", "Session opened", map[string]any{
		"account":  a.config.Session.Account,
		"restored": restored,
		"policy":   a.policy.String(),
	})
	return s, nil
}

// Close cancels work in flight, waits for it and drops the cached credential
func (s *Session) Close() {
	s.Controller.Close()
	s.Tokens.Close()
	s.Store.Close()
	s.cancel()
}

// Logout ends the session and deletes what it persisted: the stored
// credential and the profile snapshot.
func (s *Session) Logout(ctx context.Context) error {
	s.Close()

	var errs []error
	if s.app.stored != nil {
		if err := s.app.stored.Forget(ctx); err != nil && !errors.Is(err, storage.ErrNotFound) {
			errs = append(errs, fmt.Errorf("deleting credential: %w", err))
		}
	}
	if err := s.Controller.Forget(ctx); err != nil && !errors.Is(err, storage.ErrNotFound) {
		errs = append(errs, fmt.Errorf("deleting profile snapshot: %w", err))
	}
	return errors.Join(errs...)
}
