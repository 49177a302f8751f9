// Package defaults provides canonical default values for the entire codebase.
// This is the SINGLE SOURCE OF TRUTH for all runtime configuration defaults.
//
// Usage:
//
//	cfg.MaxAttempts = defaults.GateAttempts
//	req.Header.Set("Content-Type", defaults.ContentTypeJSON)
//
// DO NOT use hardcoded values like `MaxAttempts: 30` anywhere.
// Instead, reference the appropriate constant from this package.
package defaults

// Version is the current mcptester version
const Version = "1.2.0"

// ============================================================================
// SERVICE PORTS
// ============================================================================
//
// Default ports of the four-server architecture under test: the direct MCP
// server, the reverse proxy in front of it, the OAuth2 authorization server,
// and the JWKS key server.
// ============================================================================

const (
	// PortMCP is the direct MCP server port (3001)
	PortMCP = 3001

	// PortProxy is the reverse-proxy port; MCP traffic normally goes
	// through here (3002)
	PortProxy = 3002

	// PortAuth is the OAuth2 authorization server port (3003)
	PortAuth = 3003

	// PortJWKS is the JWKS key server port (3004)
	PortJWKS = 3004
)

// ============================================================================
// RETRY / GATE SETTINGS
// ============================================================================

const (
	// GateAttempts is the number of readiness probes before a health gate
	// gives up (30)
	GateAttempts = 30

	// GateAttemptsAux is the probe budget for auxiliary services that come
	// up after the primary, e.g. the JWKS server (10)
	GateAttemptsAux = 10

	// RetryLow is the attempt budget for quick artifact fetches (2)
	RetryLow = 2

	// RetryMedium is the standard attempt budget for artifact fetches (3)
	RetryMedium = 3
)

// ============================================================================
// PAYLOAD SIZE LIMITS
// ============================================================================
//
// Thresholds the services under test are expected to enforce. The
// malformation factory deliberately exceeds them.
// ============================================================================

const (
	// MaxTokenSize is the largest JWT a well-behaved server should accept (8KB)
	MaxTokenSize = 8 * 1024

	// MaxBodySize is the largest JSON-RPC body a server should accept (1MB)
	MaxBodySize = 1024 * 1024

	// OversizedHeaderSize is the Authorization header size used to provoke
	// header-limit rejections (32KB)
	OversizedHeaderSize = 32 * 1024

	// NestingDepth is the params nesting depth used to provoke
	// recursion-limit rejections (100)
	NestingDepth = 100
)

// ============================================================================
// OAUTH2 CLIENT SETTINGS
// ============================================================================

const (
	// ClientID is the test client registered with the authorization server
	ClientID = "test-client-oauth2-mcp"

	// ClientSecret pairs with ClientID
	ClientSecret = "test-secret-oauth2-mcp"

	// RedirectURI is the callback the authorization server redirects to
	RedirectURI = "http://localhost:3000/callback"

	// VerifierMinLen and VerifierMaxLen bound a PKCE code verifier (RFC 7636)
	VerifierMinLen = 43
	VerifierMaxLen = 128
)

// Scopes returns the OAuth2 scopes requested during the authorization flow.
func Scopes() []string {
	return []string{"mcp:read", "mcp:write"}
}

// ============================================================================
// JWT CLAIM DEFAULTS
// ============================================================================
//
// Claim values used by the token malformation factory. The audience and
// issuer match what the servers under test are configured to validate, so
// a variant that keeps them correct isolates exactly one violation.
// ============================================================================

const (
	// TokenSubject is the subject claim in crafted tokens
	TokenSubject = "test-user-123"

	// TokenAudience is the audience the servers under test expect
	TokenAudience = "oauth2-mcp-test"

	// TokenIssuer is the issuer the servers under test expect
	TokenIssuer = "http://localhost:8080"
)

// ============================================================================
// HTTP DEFAULTS
// ============================================================================

const (
	// ContentTypeJSON is the standard JSON content type
	ContentTypeJSON = "application/json"

	// ContentTypeForm is the OAuth2 token-endpoint content type
	ContentTypeForm = "application/x-www-form-urlencoded"

	// UserAgent identifies the harness in outbound requests
	UserAgent = "mcptester/" + Version
)

// ============================================================================
// JSON-RPC ERROR CODES
// ============================================================================

const (
	// RPCParseError signals unparseable JSON (-32700)
	RPCParseError = -32700

	// RPCInvalidRequest signals a structurally invalid request (-32600)
	RPCInvalidRequest = -32600

	// RPCMethodNotFound signals an unknown method (-32601)
	RPCMethodNotFound = -32601

	// RPCInvalidParams signals bad method parameters (-32602)
	RPCInvalidParams = -32602
)
