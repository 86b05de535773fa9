package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrUnauthenticated is returned when no valid token is available or the
	// service rejects the one presented.
	ErrUnauthenticated = errors.New("authentication required: run 'tessera auth login'")

	// ErrNotFound is matched by APIError values with status 404.
	ErrNotFound = errors.New("not found")
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.RequestID != "" {
		return fmt.Sprintf("%s (status %d, request %s)", msg, e.StatusCode, e.RequestID)
	}
	return fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthenticated:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// authError wraps a token lookup failure so it surfaces as ErrUnauthenticated
// after passing through the oauth2 transport.
type authError struct {
	err error
}

func (e *authError) Error() string {
	return fmt.Sprintf("%v: %v", ErrUnauthenticated, e.err)
}

func (e *authError) Is(target error) bool { return target == ErrUnauthenticated }

func (e *authError) Unwrap() error { return e.err }

// decodeError reads an error body. The service answers with
// {"error": "..."} or {"message": "..."}; anything else is used verbatim.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get(requestIDHeader),
	}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && (payload.Error != "" || payload.Message != "") {
		apiErr.Message = payload.Message
		if payload.Error != "" {
			apiErr.Message = payload.Error
			if payload.Message != "" && payload.Message != payload.Error {
				apiErr.Message = payload.Error + ": " + payload.Message
			}
		}
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
