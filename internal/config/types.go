package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// VersionPrefix is the config format this build reads
const VersionPrefix = "v0.0.1"

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// SessionKind selects where the bearer credential comes from
type SessionKind string

const (
	// SessionKindStatic uses a fixed token
	SessionKindStatic SessionKind = "static"
	// SessionKindOAuth2 requests a token from an OAuth2 token endpoint
	SessionKindOAuth2 SessionKind = "oauth2"
	// SessionKindStored reuses a token persisted by an earlier run and falls
	// back to oauth2 (or a static token) when none is stored
	SessionKindStored SessionKind = "stored"
)

// StorageKind selects the persistence backend
type StorageKind string

const (
	StorageKindMemory    StorageKind = "memory"
	StorageKindSQLite    StorageKind = "sqlite"
	StorageKindFirestore StorageKind = "firestore"
)

const (
	DefaultTimeout             = 15 * time.Second
	DefaultFirestoreCollection = "readtrack_sessions"
	DefaultAccount             = "default"
)

// BackendConfig locates the profile API
type BackendConfig struct {
	BaseURL     string        `json:"baseURL"`
	ProfilePath string        `json:"profilePath,omitempty"`
	UpdatePath  string        `json:"updatePath,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
	UserAgent   string        `json:"userAgent,omitempty"`
}

// OAuth2Config configures the OAuth2 session provider
type OAuth2Config struct {
	Grant        string   `json:"grant"`
	TokenURL     string   `json:"tokenURL"`
	ClientID     string   `json:"clientId"`
	ClientSecret Secret   `json:"clientSecret,omitempty"`
	Username     string   `json:"username,omitempty"`
	Password     Secret   `json:"password,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
}

// SessionConfig configures how the reader is authenticated
type SessionConfig struct {
	Kind    SessionKind   `json:"kind"`
	Account string        `json:"account,omitempty"`
	Token   Secret        `json:"token,omitempty"`
	OAuth2  *OAuth2Config `json:"oauth2,omitempty"`
}

// StorageConfig configures persistence of credentials and profile snapshots
type StorageConfig struct {
	Kind            StorageKind `json:"kind"`
	Path            string      `json:"path,omitempty"`
	GCPProject      string      `json:"gcpProject,omitempty"`
	Database        string      `json:"database,omitempty"`
	Collection      string      `json:"collection,omitempty"`
	CredentialsFile string      `json:"credentialsFile,omitempty"`
	EncryptionKey   Secret      `json:"encryptionKey,omitempty"`
}

// SyncConfig tunes the profile sync controller
type SyncConfig struct {
	OnSaveFailure string `json:"onSaveFailure,omitempty"`
}

// LogConfig overrides LOG_LEVEL and LOG_FORMAT
type LogConfig struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"`
}

// Config is the whole configuration file
type Config struct {
	Version string        `json:"version"`
	Backend BackendConfig `json:"backend"`
	Session SessionConfig `json:"session"`
	Storage StorageConfig `json:"storage"`
	Sync    SyncConfig    `json:"sync"`
	Log     LogConfig     `json:"log"`
}

// RawConfigValue represents a value that could be a string or env ref
// This is only used during parsing, not in the final config
type RawConfigValue struct {
	value string
}

// ParseConfigValue parses a JSON value that could be a string or reference object
func ParseConfigValue(raw json.RawMessage) (*RawConfigValue, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return &RawConfigValue{value: str}, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("config value must be string or reference object")
	}

	if envVar, ok := ref["$env"]; ok {
		value := os.Getenv(envVar)
		if value == "" {
			return nil, fmt.Errorf("environment variable %s not set", envVar)
		}
		// Strip surrounding quotes if present (only matching pairs)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		return &RawConfigValue{value: value}, nil
	}

	return nil, fmt.Errorf("unknown reference type in config value")
}

// parseField resolves an optional raw value, naming the field in errors
func parseField(raw json.RawMessage, name string) (string, error) {
	if raw == nil {
		return "", nil
	}
	parsed, err := ParseConfigValue(raw)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", name, err)
	}
	return parsed.value, nil
}
