package bitmex

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// APIError is a well-formed non-2xx response from the exchange.
type APIError struct {
	Status  int
	Name    string
	Message string
}

func (e APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("bitmex api error %d (%s): %s", e.Status, e.Name, e.Message)
	}
	return fmt.Sprintf("bitmex api error %d", e.Status)
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Name    string `json:"name"`
	} `json:"error"`
}

func parseAPIError(status int, body []byte) error {
	var wrapped errorBody
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error.Message != "" {
		return APIError{Status: status, Name: wrapped.Error.Name, Message: wrapped.Error.Message}
	}
	return APIError{Status: status, Message: strings.TrimSpace(string(body))}
}

func AsAPIError(err error) (APIError, bool) {
	if err == nil {
		return APIError{}, false
	}
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		return APIError{}, false
	}
	return apiErr, true
}
