package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result, nil
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": %q", VersionPrefix)
	} else if !strings.HasPrefix(version, VersionPrefix) {
		result.addError("version", "unsupported version '%s' - use '%s' or '%s-<variant>'", version, VersionPrefix, VersionPrefix)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		result.addError("", "%v", err)
	}

	validateBackendStructure(rawConfig, result)
	validateSessionStructure(rawConfig, result)
	validateStorageStructure(rawConfig, result)
	validateSyncStructure(rawConfig, result)

	return result, nil
}

func validateBackendStructure(rawConfig map[string]any, result *ValidationResult) {
	backend, ok := rawConfig["backend"].(map[string]any)
	if !ok {
		result.addError("backend", "backend field is required and must be an object")
		return
	}

	if _, ok := backend["baseURL"]; !ok {
		result.addError("backend.baseURL", "baseURL is required. Example: \"https://api.readtrack.example\"")
	} else if s, ok := backend["baseURL"].(string); ok && strings.HasPrefix(s, "http://") {
		result.addWarning("backend.baseURL", "baseURL uses plain http; this is only accepted with READTRACK_ENV=dev")
	}

	if t, ok := backend["timeout"].(string); ok {
		if d, err := time.ParseDuration(t); err != nil {
			result.addError("backend.timeout", "invalid duration %q. Example: \"15s\"", t)
		} else if d > 2*time.Minute {
			result.addWarning("backend.timeout", "timeout of %s is long; a stalled request will hold the profile screen in a loading state", t)
		}
	}
}

func validateSessionStructure(rawConfig map[string]any, result *ValidationResult) {
	session, ok := rawConfig["session"].(map[string]any)
	if !ok {
		result.addError("session", "session field is required and must be an object")
		return
	}

	kind, _ := session["kind"].(string)
	switch SessionKind(kind) {
	case SessionKindStatic, "":
		if _, ok := session["token"]; !ok {
			result.addError("session.token", "static session requires token. Example: {\"$env\": \"READTRACK_TOKEN\"}")
		}
	case SessionKindOAuth2:
		if _, ok := session["oauth2"].(map[string]any); !ok {
			result.addError("session.oauth2", "oauth2 session requires an oauth2 object")
		}
	case SessionKindStored:
		_, hasOAuth2 := session["oauth2"]
		_, hasToken := session["token"]
		if !hasOAuth2 && !hasToken {
			result.addWarning("session", "stored session has no fallback; it only works once a credential has been stored")
		}
	default:
		result.addError("session.kind", "unknown session kind '%s' - use static, oauth2 or stored", kind)
	}

	if oauth2, ok := session["oauth2"].(map[string]any); ok {
		for _, field := range []string{"tokenURL", "clientId", "grant"} {
			if _, ok := oauth2[field]; !ok {
				result.addError("session.oauth2."+field, "%s is required", field)
			}
		}
		if grant, ok := oauth2["grant"].(string); ok && grant != "password" && grant != "client_credentials" {
			result.addError("session.oauth2.grant", "unknown grant '%s' - use password or client_credentials", grant)
		}
	}
}

func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) {
	storage, ok := rawConfig["storage"].(map[string]any)
	if !ok {
		return
	}

	kind, _ := storage["kind"].(string)
	_, hasKey := storage["encryptionKey"]
	switch StorageKind(kind) {
	case StorageKindMemory, "":
	case StorageKindSQLite:
		if _, ok := storage["path"]; !ok {
			result.addError("storage.path", "path is required when using sqlite storage")
		}
		if !hasKey {
			result.addWarning("storage.encryptionKey", "sqlite storage without encryptionKey stores credentials in plain text")
		}
	case StorageKindFirestore:
		if _, ok := storage["gcpProject"]; !ok {
			result.addError("storage.gcpProject", "gcpProject is required when using firestore storage")
		}
		if !hasKey {
			result.addError("storage.encryptionKey", "encryptionKey is required when using firestore storage")
		}
	default:
		result.addError("storage.kind", "unknown storage kind '%s' - use memory, sqlite or firestore", kind)
	}
}

func validateSyncStructure(rawConfig map[string]any, result *ValidationResult) {
	sync, ok := rawConfig["sync"].(map[string]any)
	if !ok {
		return
	}
	if policy, ok := sync["onSaveFailure"].(string); ok {
		switch strings.ToLower(policy) {
		case "", "keep", "revert":
		default:
			result.addError("sync.onSaveFailure", "unknown policy '%s' - use keep or revert", policy)
		}
	}
}

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	bashStyleRegex := regexp.MustCompile(`\$\{?[A-Z_][A-Z0-9_]*\}?`)

	switch v := value.(type) {
	case string:
		if matches := bashStyleRegex.FindAllString(v, -1); len(matches) > 0 {
			for _, match := range matches {
				varName := strings.Trim(match, "${}")
				result.Warnings = append(result.Warnings, ValidationError{
					Path:    path,
					Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion in scripts/CI and ensures unambiguous parsing", match, varName),
				})
			}
		}
	case map[string]any:
		// Skip if this is already an env ref
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}

		for key, val := range v {
			newPath := path
			if newPath == "" {
				newPath = key
			} else {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			newPath := fmt.Sprintf("%s[%d]", path, i)
			checkBashStyleSyntax(item, newPath, result)
		}
	}
}
