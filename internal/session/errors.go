package session

import (
	"fmt"
	"strings"
)

// ValidationError means the caller omitted identity fields the mode requires.
// It is always raised before any network activity.
type ValidationError struct {
	Mode    IdentityMode
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("identity mode %s requires %s", e.Mode, strings.Join(e.Missing, " and "))
}

// LoginFailedError carries the non-success status returned by the login endpoint.
type LoginFailedError struct {
	StatusCode int
	Status     string
}

func (e *LoginFailedError) Error() string {
	return fmt.Sprintf("login failed with status %s", e.Status)
}

// MalformedResponseError means the login succeeded but the body did not carry
// all three credentials.
type MalformedResponseError struct {
	Missing []string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed login response: %v", e.Err)
	}
	return fmt.Sprintf("malformed login response: missing %s", strings.Join(e.Missing, ", "))
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}
