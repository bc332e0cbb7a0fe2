package domain

import (
	"errors"
	"fmt"
)

var (
	ErrArticleNotFound  = errors.New("article not found")
	ErrTopicNotFound    = errors.New("topic not found")
	ErrAnalysisNotFound = errors.New("analysis not found")
	ErrObjectNotFound   = errors.New("object not found")

	// ErrConfiguration means the classifier cannot be used with the current settings.
	ErrConfiguration = errors.New("classifier misconfigured")
	ErrEmptyResponse = errors.New("classifier returned an empty response")
	ErrNoJSONFound   = errors.New("no json object found in classifier response")
	ErrMalformedJSON = errors.New("malformed json in classifier response")
)

// TransportError reports a failed exchange with the classification service.
type TransportError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s: upstream status %d: %s", e.Provider, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: upstream status %d", e.Provider, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	default:
		return e.Provider + ": transport failure"
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// ConfigError wraps ErrConfiguration with the missing setting name.
func ConfigError(provider, setting string) error {
	return fmt.Errorf("%s: %s is not set: %w", provider, setting, ErrConfiguration)
}
