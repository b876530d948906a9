package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	ErrNotAuthenticated    = errors.New("client: not authenticated")
	ErrLoginInProgress     = errors.New("client: login already in progress")
	ErrUnknownOrganization = errors.New("client: organization is not one of the user's memberships")
)

type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
	Errors     []FieldError
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("client: http %d", e.StatusCode)
	}
	return fmt.Sprintf("client: http %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

type errorEnvelope struct {
	Error struct {
		Type    string       `json:"type"`
		Message string       `json:"message"`
		Errors  []FieldError `json:"errors"`
	} `json:"error"`
}

// checkError returns nil for 2xx responses.
func checkError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apiErr
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}
	apiErr.Type = envelope.Error.Type
	apiErr.Message = envelope.Error.Message
	apiErr.Errors = envelope.Error.Errors
	return apiErr
}
