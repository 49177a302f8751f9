// Package malform builds deliberately broken JWTs and JSON-RPC bodies for
// conformance testing. Every variant violates exactly one rule so that a
// rejection can be attributed to a single validation step on the server.
//
// All constructors are pure: no network, no clock reads beyond the variants
// that need timestamps, and the same variant always yields the same shape.
package malform

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/mcptester/mcptester/pkg/defaults"
	"github.com/mcptester/mcptester/pkg/jsonutil"
)

// JWTVariant names one way a token can be broken.
type JWTVariant string

const (
	// JWTInvalidStructure is a token with two dot-segments instead of three.
	JWTInvalidStructure JWTVariant = "invalid_structure"

	// JWTInvalidHeader has a header segment that is not valid JSON.
	JWTInvalidHeader JWTVariant = "invalid_header"

	// JWTInvalidPayload has a claims segment that is not valid JSON.
	JWTInvalidPayload JWTVariant = "invalid_payload"

	// JWTInvalidSignature has a signature that can never verify.
	JWTInvalidSignature JWTVariant = "invalid_signature"

	// JWTExpired has an exp claim one hour in the past.
	JWTExpired JWTVariant = "expired"

	// JWTMissingSubject omits the required sub claim.
	JWTMissingSubject JWTVariant = "missing_subject"

	// JWTMissingAudience omits the required aud claim.
	JWTMissingAudience JWTVariant = "missing_audience"

	// JWTAlgorithmNone sets alg to "none" with an empty signature.
	JWTAlgorithmNone JWTVariant = "algorithm_none"

	// JWTOversized carries a padding claim pushing the token past 8KB.
	JWTOversized JWTVariant = "oversized"

	// JWTWrongAudience has an aud claim the server never accepts.
	JWTWrongAudience JWTVariant = "wrong_audience"

	// JWTFutureIssuedAt has an iat claim one hour in the future.
	JWTFutureIssuedAt JWTVariant = "future_issued_at"

	// JWTStrippedSignature keeps the trailing dot but removes the signature.
	JWTStrippedSignature JWTVariant = "stripped_signature"

	// JWTAlgorithmConfusion claims HS256 and is HMAC-signed with a key the
	// server does not hold, probing asymmetric-to-symmetric confusion.
	JWTAlgorithmConfusion JWTVariant = "algorithm_confusion"

	// JWTWrongKid references a key id absent from the JWKS document.
	JWTWrongKid JWTVariant = "wrong_kid"

	// JWTWrongIssuer has an iss claim the server is not configured to trust.
	JWTWrongIssuer JWTVariant = "wrong_issuer"
)

// JWTVariants returns every token variant in a stable order.
func JWTVariants() []JWTVariant {
	return []JWTVariant{
		JWTInvalidStructure,
		JWTInvalidHeader,
		JWTInvalidPayload,
		JWTInvalidSignature,
		JWTExpired,
		JWTMissingSubject,
		JWTMissingAudience,
		JWTAlgorithmNone,
		JWTOversized,
		JWTWrongAudience,
		JWTFutureIssuedAt,
		JWTStrippedSignature,
		JWTAlgorithmConfusion,
		JWTWrongKid,
		JWTWrongIssuer,
	}
}

// JWT builds the token for a variant. The result is never acceptable to a
// correctly configured server; each variant should draw a 401 (JWTOversized
// may instead draw a 400 or 413 when the server enforces size limits before
// token parsing).
func JWT(v JWTVariant) (string, error) {
	now := time.Now().Unix()

	switch v {
	case JWTInvalidStructure:
		header := encodeJSON(map[string]any{"alg": "RS256", "typ": "JWT"})
		payload := encodeJSON(map[string]any{"sub": defaults.TokenSubject})
		return header + "." + payload, nil

	case JWTInvalidHeader:
		// Trailing comma makes the header unparseable JSON.
		header := encodeSegment([]byte(`{"alg":"RS256","typ":"JWT",}`))
		payload := encodeJSON(map[string]any{"sub": defaults.TokenSubject})
		return header + "." + payload + ".invalid_signature", nil

	case JWTInvalidPayload:
		header := encodeJSON(map[string]any{"alg": "RS256", "typ": "JWT"})
		payload := encodeSegment([]byte(`{"sub":"test",}`))
		return header + "." + payload + ".invalid_signature", nil

	case JWTInvalidSignature:
		return assemble(baseClaims(now), "completely_invalid_signature_that_will_never_verify"), nil

	case JWTExpired:
		claims := baseClaims(now)
		claims["iat"] = now - 3600
		claims["exp"] = now - 3300
		return assemble(claims, "expired_signature"), nil

	case JWTMissingSubject:
		claims := baseClaims(now)
		delete(claims, "sub")
		return assemble(claims, "missing_claims_signature"), nil

	case JWTMissingAudience:
		claims := baseClaims(now)
		delete(claims, "aud")
		return assemble(claims, "missing_claims_signature"), nil

	case JWTAlgorithmNone:
		header := encodeJSON(map[string]any{"alg": "none", "typ": "JWT"})
		payload := encodeJSON(baseClaims(now))
		return header + "." + payload + ".", nil

	case JWTOversized:
		claims := baseClaims(now)
		claims["large_data"] = strings.Repeat("x", defaults.MaxTokenSize+2048)
		return assemble(claims, "signature"), nil

	case JWTWrongAudience:
		claims := baseClaims(now)
		claims["aud"] = "wrong-audience"
		return assemble(claims, "wrong_audience_signature"), nil

	case JWTFutureIssuedAt:
		claims := baseClaims(now)
		claims["iat"] = now + 3600
		claims["exp"] = now + 7200
		return assemble(claims, "future_iat_signature"), nil

	case JWTStrippedSignature:
		return assemble(baseClaims(now), ""), nil

	case JWTAlgorithmConfusion:
		header := encodeJSON(map[string]any{"alg": "HS256", "typ": "JWT"})
		payload := encodeJSON(baseClaims(now))
		input := header + "." + payload
		mac := hmac.New(sha256.New, []byte("attacker-chosen-secret"))
		mac.Write([]byte(input))
		return input + "." + encodeSegment(mac.Sum(nil)), nil

	case JWTWrongKid:
		header := encodeJSON(map[string]any{"alg": "RS256", "typ": "JWT", "kid": "nonexistent-key-id"})
		payload := encodeJSON(baseClaims(now))
		return header + "." + payload + ".wrong_kid_signature", nil

	case JWTWrongIssuer:
		claims := baseClaims(now)
		claims["iss"] = "http://evil.example.com"
		return assemble(claims, "wrong_issuer_signature"), nil

	default:
		return "", fmt.Errorf("unknown jwt variant: %q", v)
	}
}

// OversizedBearer returns an Authorization header value whose token portion
// is pure padding, sized to trip server header limits.
func OversizedBearer() string {
	return "Bearer " + strings.Repeat("A", defaults.OversizedHeaderSize)
}

// baseClaims returns a claim set that would be fully valid if signed,
// so each variant breaks only what it changes.
func baseClaims(now int64) map[string]any {
	return map[string]any{
		"sub":   defaults.TokenSubject,
		"aud":   defaults.TokenAudience,
		"iss":   defaults.TokenIssuer,
		"iat":   now,
		"exp":   now + 3600,
		"scope": strings.Join(defaults.Scopes(), " "),
	}
}

func assemble(claims map[string]any, signature string) string {
	header := encodeJSON(map[string]any{"alg": "RS256", "typ": "JWT"})
	return header + "." + encodeJSON(claims) + "." + signature
}

func encodeJSON(v any) string {
	data, err := jsonutil.Marshal(v)
	if err != nil {
		// Only reachable with unmarshalable values, which the fixed claim
		// sets above never contain.
		panic(err)
	}
	return encodeSegment(data)
}

func encodeSegment(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}
