package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/readtrack/profilesync/internal/envutil"
	"github.com/readtrack/profilesync/internal/log"
)

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, VersionPrefix) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	ApplyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// secretFields lists the raw paths that must be env references
var secretFields = []struct {
	section string
	nested  string
	name    string
}{
	{"session", "", "token"},
	{"session", "oauth2", "clientSecret"},
	{"session", "oauth2", "password"},
	{"storage", "", "encryptionKey"},
}

// validateRawConfig validates the config structure before environment resolution
func validateRawConfig(rawConfig map[string]any) error {
	for _, f := range secretFields {
		section, ok := rawConfig[f.section].(map[string]any)
		if !ok {
			continue
		}
		if f.nested != "" {
			if section, ok = section[f.nested].(map[string]any); !ok {
				continue
			}
		}
		value, exists := section[f.name]
		if !exists {
			continue
		}
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s must use environment variable reference for security", f.name)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s must use {\"$env\": \"VAR_NAME\"} format", f.name)
			}
		}
	}
	return nil
}

// ApplyDefaults fills in everything a minimal config leaves out
func ApplyDefaults(config *Config) {
	if config.Backend.Timeout == 0 {
		config.Backend.Timeout = DefaultTimeout
	}
	if config.Session.Kind == "" {
		config.Session.Kind = SessionKindStatic
	}
	if config.Session.Account == "" {
		if o := config.Session.OAuth2; o != nil && o.Username != "" {
			config.Session.Account = o.Username
		} else {
			config.Session.Account = DefaultAccount
		}
	}
	if config.Storage.Kind == "" {
		config.Storage.Kind = StorageKindMemory
	}
	if config.Storage.Kind == StorageKindFirestore && config.Storage.Collection == "" {
		config.Storage.Collection = DefaultFirestoreCollection
	}
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if err := validateBackendConfig(&config.Backend); err != nil {
		return fmt.Errorf("backend config: %w", err)
	}
	if err := validateSessionConfig(&config.Session); err != nil {
		return fmt.Errorf("session config: %w", err)
	}
	if err := validateStorageConfig(&config.Storage); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	switch strings.ToLower(config.Sync.OnSaveFailure) {
	case "", "keep", "revert":
	default:
		return fmt.Errorf("sync.onSaveFailure must be keep or revert, got %q", config.Sync.OnSaveFailure)
	}

	if config.Session.Kind == SessionKindStored && config.Storage.Kind == StorageKindMemory {
		log.LogWarn("Stored session with memory storage: the credential will not outlive this process")
	}
	return nil
}

func validateBackendConfig(backend *BackendConfig) error {
	if backend.BaseURL == "" {
		return fmt.Errorf("baseURL is required")
	}
	u, err := url.Parse(backend.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid baseURL: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("baseURL must be an absolute URL")
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !envutil.IsDev() {
			return fmt.Errorf("baseURL must use https (set READTRACK_ENV=dev to allow http)")
		}
	default:
		return fmt.Errorf("baseURL must use https, got scheme %q", u.Scheme)
	}
	if backend.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}

func validateSessionConfig(session *SessionConfig) error {
	switch session.Kind {
	case SessionKindStatic:
		if session.Token == "" {
			return fmt.Errorf("static session requires token")
		}
	case SessionKindOAuth2:
		if session.OAuth2 == nil {
			return fmt.Errorf("oauth2 session requires an oauth2 block")
		}
		return validateOAuth2Config(session.OAuth2)
	case SessionKindStored:
		if session.OAuth2 != nil {
			return validateOAuth2Config(session.OAuth2)
		}
	default:
		return fmt.Errorf("kind must be static, oauth2 or stored, got %q", session.Kind)
	}
	return nil
}

func validateOAuth2Config(o *OAuth2Config) error {
	if o.TokenURL == "" {
		return fmt.Errorf("oauth2.tokenURL is required")
	}
	if o.ClientID == "" {
		return fmt.Errorf("oauth2.clientId is required")
	}
	switch o.Grant {
	case "password":
		if o.Username == "" || o.Password == "" {
			return fmt.Errorf("oauth2 password grant requires username and password")
		}
	case "client_credentials":
		if o.ClientSecret == "" {
			return fmt.Errorf("oauth2 client_credentials grant requires clientSecret")
		}
	default:
		return fmt.Errorf("oauth2.grant must be password or client_credentials, got %q", o.Grant)
	}
	return nil
}

func validateStorageConfig(storage *StorageConfig) error {
	switch storage.Kind {
	case StorageKindMemory:
	case StorageKindSQLite:
		if storage.Path == "" {
			return fmt.Errorf("path is required when using sqlite storage")
		}
	case StorageKindFirestore:
		if storage.GCPProject == "" {
			return fmt.Errorf("gcpProject is required when using firestore storage")
		}
		if storage.EncryptionKey == "" {
			return fmt.Errorf("encryptionKey is required when using firestore storage")
		}
	default:
		return fmt.Errorf("kind must be memory, sqlite or firestore, got %q", storage.Kind)
	}
	return nil
}
