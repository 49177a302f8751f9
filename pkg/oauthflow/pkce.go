package oauthflow

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/mcptester/mcptester/pkg/defaults"
)

// MethodS256 is the only code challenge method this client uses. RFC 7636
// allows "plain" but the servers under test must support S256.
const MethodS256 = "S256"

// PKCEChallenge is a verifier/challenge pair for one authorization attempt.
type PKCEChallenge struct {
	Verifier  string
	Challenge string
	Method    string
}

// GenerateChallenge creates a fresh PKCE pair. The verifier is 32 random
// bytes base64url-encoded without padding, which yields 43 characters, the
// RFC 7636 minimum.
func GenerateChallenge() (PKCEChallenge, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return PKCEChallenge{}, fmt.Errorf("generating code verifier: %w", err)
	}
	return ChallengeFromVerifier(base64.RawURLEncoding.EncodeToString(raw)), nil
}

// ChallengeFromVerifier derives the S256 challenge for a known verifier.
// Tests use it to pin exact values; the flow uses GenerateChallenge.
func ChallengeFromVerifier(verifier string) PKCEChallenge {
	sum := sha256.Sum256([]byte(verifier))
	return PKCEChallenge{
		Verifier:  verifier,
		Challenge: base64.RawURLEncoding.EncodeToString(sum[:]),
		Method:    MethodS256,
	}
}

// ValidateVerifier enforces the RFC 7636 length bounds.
func ValidateVerifier(verifier string) error {
	if len(verifier) < defaults.VerifierMinLen || len(verifier) > defaults.VerifierMaxLen {
		return fmt.Errorf("code verifier length %d outside %d-%d",
			len(verifier), defaults.VerifierMinLen, defaults.VerifierMaxLen)
	}
	return nil
}

// GenerateState creates an opaque state value for CSRF binding.
func GenerateState() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
