package tokenclient

import (
	"errors"
	"fmt"
)

// unableToRetrieveTokenMessage is formatted with the service URL and the failure reason.
const unableToRetrieveTokenMessage = "TokenServiceClient: Error when attempting to retrieve bearer token from %s: %s"

const (
	reasonDeserialize = "Unable to deserialize response from token service."
	reasonUnexpected  = "Unexpected error occurred"
)

var (
	// ErrTokenRequest matches every *RequestError with errors.Is.
	ErrTokenRequest = errors.New("token request failed")
	// ErrConfiguration matches every *ConfigError with errors.Is.
	ErrConfiguration = errors.New("token service configuration error")
)

// RequestError reports a failed acquisition from the token service.
type RequestError struct {
	ServiceURL string
	// StatusCode is set when the service answered with a non-success status.
	StatusCode int
	Reason     string
	// Err is the underlying cause, if any.
	Err error
}

func newStatusError(serviceURL string, code int, reasonPhrase string) *RequestError {
	return &RequestError{
		ServiceURL: serviceURL,
		StatusCode: code,
		Reason:     fmt.Sprintf("Service returned response %d %s", code, reasonPhrase),
	}
}

func (e *RequestError) Error() string {
	return fmt.Sprintf(unableToRetrieveTokenMessage, e.ServiceURL, e.Reason)
}

func (e *RequestError) Unwrap() error { return e.Err }

func (e *RequestError) Is(target error) bool { return target == ErrTokenRequest }

// ConfigError reports invalid setup. It is never retryable.
type ConfigError struct {
	Field   string
	Value   any
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

func missingDependency(name string) *ConfigError {
	return &ConfigError{Field: name, Message: "value cannot be nil"}
}
