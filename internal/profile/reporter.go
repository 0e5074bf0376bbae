package profile

import (
	"errors"

	"github.com/readtrack/profilesync/internal/backend"
	"github.com/readtrack/profilesync/internal/log"
)

// Stage names the step of an operation that failed
type Stage string

const (
	StageToken Stage = "token"
	StageFetch Stage = "fetch"
	StageSave  Stage = "save"
)

// Reporter receives every failure. It does not recover.
type Reporter interface {
	Report(stage Stage, err error)
}

// ReporterFunc adapts a function to the Reporter interface
type ReporterFunc func(stage Stage, err error)

// Report implements Reporter
func (f ReporterFunc) Report(stage Stage, err error) {
	f(stage, err)
}

// LogReporter writes failures to the structured log
type LogReporter struct{}

// Report implements Reporter
func (LogReporter) Report(stage Stage, err error) {
	fields := map[string]any{
		"stage": string(stage),
		"error": err.Error(),
	}

	var se *backend.ServerError
	var ne *backend.NetworkError
	switch {
	case errors.As(err, &se):
		fields["status"] = se.StatusCode
		fields["requestId"] = se.RequestID
		if se.Field != "" {
			fields["field"] = se.Field
		}
	case errors.As(err, &ne):
		fields["requestId"] = ne.RequestID
	}

	log.LogErrorWithFields("profile_sync", "Profile sync failed", fields)
}

// MultiReporter forwards every report to each reporter in order
type MultiReporter []Reporter

// Report implements Reporter
func (m MultiReporter) Report(stage Stage, err error) {
	for _, r := range m {
		r.Report(stage, err)
	}
}
