package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// UnmarshalJSON implements custom unmarshaling for BackendConfig
func (b *BackendConfig) UnmarshalJSON(data []byte) error {
	type rawBackend struct {
		BaseURL     json.RawMessage `json:"baseURL"`
		ProfilePath string          `json:"profilePath,omitempty"`
		UpdatePath  string          `json:"updatePath,omitempty"`
		Timeout     string          `json:"timeout,omitempty"`
		UserAgent   string          `json:"userAgent,omitempty"`
	}

	var raw rawBackend
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	b.ProfilePath = raw.ProfilePath
	b.UpdatePath = raw.UpdatePath
	b.UserAgent = raw.UserAgent

	if raw.Timeout != "" {
		timeout, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("parsing timeout: %w", err)
		}
		b.Timeout = timeout
	}

	baseURL, err := parseField(raw.BaseURL, "baseURL")
	if err != nil {
		return err
	}
	b.BaseURL = baseURL
	return nil
}

// UnmarshalJSON implements custom unmarshaling for OAuth2Config
func (o *OAuth2Config) UnmarshalJSON(data []byte) error {
	type rawOAuth2 struct {
		Grant        string          `json:"grant"`
		TokenURL     json.RawMessage `json:"tokenURL"`
		ClientID     json.RawMessage `json:"clientId"`
		ClientSecret json.RawMessage `json:"clientSecret,omitempty"`
		Username     json.RawMessage `json:"username,omitempty"`
		Password     json.RawMessage `json:"password,omitempty"`
		Scopes       []string        `json:"scopes,omitempty"`
	}

	var raw rawOAuth2
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	o.Grant = raw.Grant
	o.Scopes = raw.Scopes

	var err error
	if o.TokenURL, err = parseField(raw.TokenURL, "tokenURL"); err != nil {
		return err
	}
	if o.ClientID, err = parseField(raw.ClientID, "clientId"); err != nil {
		return err
	}
	if o.Username, err = parseField(raw.Username, "username"); err != nil {
		return err
	}

	secret, err := parseField(raw.ClientSecret, "clientSecret")
	if err != nil {
		return err
	}
	o.ClientSecret = Secret(secret)

	password, err := parseField(raw.Password, "password")
	if err != nil {
		return err
	}
	o.Password = Secret(password)

	return nil
}

// UnmarshalJSON implements custom unmarshaling for SessionConfig
func (s *SessionConfig) UnmarshalJSON(data []byte) error {
	type rawSession struct {
		Kind    SessionKind     `json:"kind"`
		Account json.RawMessage `json:"account,omitempty"`
		Token   json.RawMessage `json:"token,omitempty"`
		OAuth2  *OAuth2Config   `json:"oauth2,omitempty"`
	}

	var raw rawSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Kind = raw.Kind
	s.OAuth2 = raw.OAuth2

	account, err := parseField(raw.Account, "account")
	if err != nil {
		return err
	}
	s.Account = account

	token, err := parseField(raw.Token, "token")
	if err != nil {
		return err
	}
	s.Token = Secret(token)
	return nil
}

// UnmarshalJSON implements custom unmarshaling for StorageConfig
func (s *StorageConfig) UnmarshalJSON(data []byte) error {
	type rawStorage struct {
		Kind            StorageKind     `json:"kind"`
		Path            json.RawMessage `json:"path,omitempty"`
		GCPProject      json.RawMessage `json:"gcpProject,omitempty"`
		Database        string          `json:"database,omitempty"`
		Collection      string          `json:"collection,omitempty"`
		CredentialsFile json.RawMessage `json:"credentialsFile,omitempty"`
		EncryptionKey   json.RawMessage `json:"encryptionKey,omitempty"`
	}

	var raw rawStorage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Kind = raw.Kind
	s.Database = raw.Database
	s.Collection = raw.Collection

	var err error
	if s.Path, err = parseField(raw.Path, "path"); err != nil {
		return err
	}
	if s.GCPProject, err = parseField(raw.GCPProject, "gcpProject"); err != nil {
		return err
	}
	if s.CredentialsFile, err = parseField(raw.CredentialsFile, "credentialsFile"); err != nil {
		return err
	}

	key, err := parseField(raw.EncryptionKey, "encryptionKey")
	if err != nil {
		return err
	}
	s.EncryptionKey = Secret(key)

	if s.EncryptionKey != "" && len(s.EncryptionKey) != 32 {
		return fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(s.EncryptionKey))
	}
	return nil
}
