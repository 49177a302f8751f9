package oauthflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for flow validation failures.
var (
	// ErrStateMismatch means the authorization redirect returned a state
	// that does not match the one sent.
	ErrStateMismatch = errors.New("state parameter mismatch")

	// ErrConsentPage means the authorization endpoint served an interactive
	// consent form. The servers under test must auto-approve; a consent page
	// is a configuration error, not a pass.
	ErrConsentPage = errors.New("consent form returned, expected auto-approval")

	// ErrNoAuthorizationCode means the redirect carried neither a code nor
	// an OAuth2 error.
	ErrNoAuthorizationCode = errors.New("no authorization code in response")

	// ErrMalformedToken means the access token is not in JWT compact form.
	ErrMalformedToken = errors.New("access token is not a valid JWT format")

	// ErrRejectionExpected means a request built to fail was accepted.
	ErrRejectionExpected = errors.New("server accepted a request it must reject")
)

// OAuth2Error is the standard error shape returned by authorization and
// token endpoints (RFC 6749 sections 4.1.2.1 and 5.2).
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *OAuth2Error) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("oauth2 error: %s", e.Code)
	}
	return fmt.Sprintf("oauth2 error: %s - %s", e.Code, e.Description)
}

// StatusError reports an HTTP status the flow did not expect.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected HTTP status %d", e.Op, e.Status)
}
