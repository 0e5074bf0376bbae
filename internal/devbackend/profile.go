package devbackend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	jsonwriter "github.com/readtrack/profilesync/internal/json"
	"github.com/readtrack/profilesync/internal/log"
)

const (
	MaxDisplayNameLength = 150
	MaxBioLength         = 500

	maxUpdateBody = 64 << 10
)

type profileResponse struct {
	Username    string            `json:"username"`
	Bio         *string           `json:"bio"`
	ZipCode     *string           `json:"zip_code"`
	SocialLinks map[string]string `json:"social_links"`
	ProfilePic  *string           `json:"profile_pic"`
}

type updateRequest struct {
	DisplayName *string `json:"displayName"`
	Bio         *string `json:"bio"`
}

// FieldError is a validation failure on one request field
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	subject, err := s.authenticate(r)
	if err != nil {
		jsonwriter.WriteUnauthorized(w, err.Error())
		return
	}
	if !s.delay(r.Context()) {
		return
	}

	p := s.profileFor(subject)
	_ = jsonwriter.Write(w, profileResponse{
		Username:    p.Username,
		Bio:         p.Bio,
		SocialLinks: map[string]string{},
	})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	subject, err := s.authenticate(r)
	if err != nil {
		jsonwriter.WriteText(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req updateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateBody))
	if err := dec.Decode(&req); err != nil {
		jsonwriter.WriteText(w, http.StatusBadRequest, fmt.Sprintf("JSON parse error - %v", err))
		return
	}

	if !s.delay(r.Context()) {
		return
	}

	updated, err := s.update(subject, req)
	if err != nil {
		var fieldErr *FieldError
		if errors.As(err, &fieldErr) {
			jsonwriter.WriteText(w, http.StatusBadRequest, fieldErr.Error())
			return
		}
		jsonwriter.WriteText(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.LogInfoWithFields("devbackend", "Profile updated", map[string]any{
		"subject":  subject,
		"username": updated.Username,
		"bio_len":  bioLen(updated.Bio),
	})
	_ = jsonwriter.Write(w, map[string]string{"message": "Profile updated successfully."})
}

// update normalizes req and applies it to subject's profile
func (s *Server) update(subject string, req updateRequest) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.profiles[subject]
	if !ok {
		current = Profile{Username: subject}
	}

	next, err := Normalize(current, req.DisplayName, req.Bio)
	if err != nil {
		return Profile{}, err
	}
	for other, p := range s.profiles {
		if other != subject && p.Username == next.Username {
			return Profile{}, &FieldError{Field: "displayName", Message: "A user with that username already exists."}
		}
	}

	s.profiles[subject] = next
	s.updates++
	return next, nil
}

// Normalize applies an update to current the way the backend stores it:
// both fields are trimmed, the display name is required and the bio is
// truncated to MaxBioLength runes. A nil bio leaves the current one.
func Normalize(current Profile, displayName, bio *string) (Profile, error) {
	if displayName == nil {
		return Profile{}, &FieldError{Field: "displayName", Message: "This field is required."}
	}
	name := strings.TrimSpace(*displayName)
	if name == "" {
		return Profile{}, &FieldError{Field: "displayName", Message: "This field may not be blank."}
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return Profile{}, &FieldError{
			Field:   "displayName",
			Message: fmt.Sprintf("Ensure this field has no more than %d characters.", MaxDisplayNameLength),
		}
	}

	next := Profile{Username: name, Bio: current.Bio}
	if bio != nil {
		trimmed := truncateRunes(strings.TrimSpace(*bio), MaxBioLength)
		next.Bio = &trimmed
	}
	return next, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}

func bioLen(bio *string) int {
	if bio == nil {
		return 0
	}
	return utf8.RuneCountInString(*bio)
}
