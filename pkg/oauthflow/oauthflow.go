// Package oauthflow drives the OAuth2 authorization code flow with PKCE
// against the authorization server under test, and fetches the supporting
// artifacts (discovery metadata, JWKS document, pre-issued dev tokens).
//
// The client never follows redirects: the authorization code is extracted
// from the redirect response itself.
package oauthflow

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/mcptester/mcptester/pkg/defaults"
	"github.com/mcptester/mcptester/pkg/duration"
	"github.com/mcptester/mcptester/pkg/httpclient"
	"github.com/mcptester/mcptester/pkg/iohelper"
	"github.com/mcptester/mcptester/pkg/jsonutil"
	"github.com/mcptester/mcptester/pkg/retry"
)

// Discovery endpoints probed in order. The first 200 wins.
var wellKnownPaths = []string{
	"/.well-known/oauth-authorization-server",
	"/.well-known/openid-configuration",
}

// Metadata is the authorization server discovery document (RFC 8414).
type Metadata struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	JWKSURI                       string   `json:"jwks_uri,omitempty"`
	ResponseTypesSupported        []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported           []string `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
	ScopesSupported               []string `json:"scopes_supported,omitempty"`
}

// Token is a successful token endpoint response.
type Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// DevToken is one entry from the JWKS server's pre-issued token endpoint.
type DevToken struct {
	Token          string   `json:"token"`
	Scopes         []string `json:"scopes"`
	ExpiresMinutes int      `json:"expires_minutes"`
}

// JWK is a single key from the JWKS document.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid,omitempty"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// JWKS is the key set document.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// Config holds flow client settings. Zero values fall back to the standard
// four-server layout on localhost.
type Config struct {
	// AuthBaseURL is the authorization server base (default http://localhost:3003)
	AuthBaseURL string

	// JWKSBaseURL is the key server base (default http://localhost:3004)
	JWKSBaseURL string

	// ClientID identifies the test client (default defaults.ClientID)
	ClientID string

	// ClientSecret authenticates the test client at the token endpoint
	// (default defaults.ClientSecret)
	ClientSecret string

	// RedirectURI is the registered callback (default defaults.RedirectURI)
	RedirectURI string

	// Scopes are the requested scopes (default defaults.Scopes())
	Scopes []string

	// HTTPClient overrides the shared flow client. It must not follow
	// redirects.
	HTTPClient *http.Client

	// Logger receives debug output (default slog.Default())
	Logger *slog.Logger
}

// Client drives the authorization flow.
type Client struct {
	cfg Config

	// Endpoint overrides discovered via Discover. Empty until then; the
	// conventional paths under AuthBaseURL are used as fallback.
	authorizeURL string
	tokenURL     string
}

// New creates a flow client. Missing config fields get defaults.
func New(cfg Config) *Client {
	if cfg.AuthBaseURL == "" {
		cfg.AuthBaseURL = fmt.Sprintf("http://localhost:%d", defaults.PortAuth)
	}
	if cfg.JWKSBaseURL == "" {
		cfg.JWKSBaseURL = fmt.Sprintf("http://localhost:%d", defaults.PortJWKS)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = defaults.ClientID
	}
	if cfg.ClientSecret == "" {
		cfg.ClientSecret = defaults.ClientSecret
	}
	if cfg.RedirectURI == "" {
		cfg.RedirectURI = defaults.RedirectURI
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaults.Scopes()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpclient.New(httpclient.FlowConfig())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{cfg: cfg}
}

// Discover fetches the authorization server metadata, trying each well-known
// path in order. On success the discovered authorization and token endpoints
// replace the conventional defaults for subsequent calls.
func (c *Client) Discover(ctx context.Context) (*Metadata, error) {
	var lastErr error
	for _, path := range wellKnownPaths {
		meta, err := c.fetchMetadata(ctx, c.cfg.AuthBaseURL+path)
		if err != nil {
			lastErr = err
			continue
		}
		if meta.AuthorizationEndpoint == "" || meta.TokenEndpoint == "" {
			lastErr = fmt.Errorf("discovery document at %s missing required endpoints", path)
			continue
		}
		if len(meta.ResponseTypesSupported) == 0 {
			return nil, fmt.Errorf("discovery document missing response_types_supported")
		}
		if !slices.Contains(meta.CodeChallengeMethodsSupported, MethodS256) {
			return nil, fmt.Errorf("server does not advertise S256 code challenge support")
		}
		c.authorizeURL = meta.AuthorizationEndpoint
		c.tokenURL = meta.TokenEndpoint
		c.cfg.Logger.Debug("discovery complete",
			slog.String("authorization_endpoint", meta.AuthorizationEndpoint),
			slog.String("token_endpoint", meta.TokenEndpoint))
		return meta, nil
	}
	return nil, fmt.Errorf("oauth2 discovery failed: %w", lastErr)
}

func (c *Client) fetchMetadata(ctx context.Context, u string) (*Metadata, error) {
	body, status, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &StatusError{Op: "discovery", Status: status, Body: string(body)}
	}
	var meta Metadata
	if err := jsonutil.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("parsing discovery document: %w", err)
	}
	return &meta, nil
}

// Authorize requests an authorization code with the given PKCE pair and
// state. It accepts either a 302/303 redirect to the registered redirect URI
// or a 200 JSON body carrying the code (auto-approval shortcut). A consent
// page is ErrConsentPage; a mismatched state is ErrStateMismatch; an OAuth2
// error lands as *OAuth2Error.
func (c *Client) Authorize(ctx context.Context, pkce PKCEChallenge, state string) (string, error) {
	q := url.Values{
		"response_type":         {"code"},
		"client_id":             {c.cfg.ClientID},
		"redirect_uri":          {c.cfg.RedirectURI},
		"scope":                 {strings.Join(c.cfg.Scopes, " ")},
		"state":                 {state},
		"code_challenge":        {pkce.Challenge},
		"code_challenge_method": {pkce.Method},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.authorizeEndpoint()+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("building authorize request: %w", err)
	}
	req.Header.Set("User-Agent", defaults.UserAgent)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("authorize request: %w", err)
	}
	defer iohelper.DrainAndClose(resp.Body)

	c.cfg.Logger.Debug("authorize response", slog.Int("status", resp.StatusCode))

	switch resp.StatusCode {
	case http.StatusFound, http.StatusSeeOther:
		return c.codeFromRedirect(resp.Header.Get("Location"), state)
	case http.StatusOK:
		body, err := iohelper.ReadBodyDefault(resp.Body)
		if err != nil {
			return "", fmt.Errorf("reading authorize response: %w", err)
		}
		return codeFromBody(body)
	default:
		body := iohelper.ReadBodyOrLog(resp.Body, c.cfg.Logger)
		return "", &StatusError{Op: "authorize", Status: resp.StatusCode, Body: string(body)}
	}
}

func (c *Client) codeFromRedirect(location, state string) (string, error) {
	if !strings.HasPrefix(location, c.cfg.RedirectURI) {
		return "", fmt.Errorf("unexpected redirect location: %s", location)
	}
	parsed, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parsing redirect location: %w", err)
	}
	q := parsed.Query()

	if errCode := q.Get("error"); errCode != "" {
		return "", &OAuth2Error{Code: errCode, Description: q.Get("error_description")}
	}
	code := q.Get("code")
	if code == "" {
		return "", ErrNoAuthorizationCode
	}
	if q.Get("state") != state {
		return "", ErrStateMismatch
	}
	return code, nil
}

// codeFromBody handles the 200 case: either a JSON body with the code
// (acceptable auto-approval) or an interactive page (a hard failure).
func codeFromBody(body []byte) (string, error) {
	lower := strings.ToLower(string(body))
	if strings.Contains(lower, "authorization") || strings.Contains(lower, "consent") {
		return "", ErrConsentPage
	}
	var payload struct {
		Code string `json:"code"`
	}
	if err := jsonutil.Unmarshal(body, &payload); err == nil && payload.Code != "" {
		return payload.Code, nil
	}
	return "", ErrNoAuthorizationCode
}

// Exchange trades an authorization code and its PKCE verifier for tokens.
// The response must carry a JWT-shaped access token, a bearer token type
// (case-insensitive) and a positive expiry.
func (c *Client) Exchange(ctx context.Context, code, verifier string) (*Token, error) {
	if err := ValidateVerifier(verifier); err != nil {
		return nil, err
	}
	body, status, err := c.postToken(ctx, code, verifier)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		if oe := parseOAuth2Error(body); oe != nil {
			return nil, oe
		}
		return nil, &StatusError{Op: "token exchange", Status: status, Body: string(body)}
	}

	var tok Token
	if err := jsonutil.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("parsing token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	if !strings.EqualFold(tok.TokenType, "bearer") {
		return nil, fmt.Errorf("unexpected token type: %q", tok.TokenType)
	}
	if tok.ExpiresIn <= 0 {
		return nil, fmt.Errorf("token response has non-positive expires_in: %d", tok.ExpiresIn)
	}
	if strings.Count(tok.AccessToken, ".") != 2 {
		return nil, ErrMalformedToken
	}
	return &tok, nil
}

// ExchangeInvalid performs a token exchange that the server must reject with
// HTTP 400 and a standard OAuth2 error body. It returns the parsed error on
// a correct rejection, or ErrRejectionExpected when the server accepted.
func (c *Client) ExchangeInvalid(ctx context.Context, code, verifier string) (*OAuth2Error, error) {
	body, status, err := c.postToken(ctx, code, verifier)
	if err != nil {
		return nil, err
	}
	if status == http.StatusOK {
		return nil, ErrRejectionExpected
	}
	if status != http.StatusBadRequest {
		return nil, &StatusError{Op: "token exchange rejection", Status: status, Body: string(body)}
	}
	oe := parseOAuth2Error(body)
	if oe == nil {
		return nil, fmt.Errorf("rejection missing OAuth2 error body: %s", body)
	}
	return oe, nil
}

func (c *Client) postToken(ctx context.Context, code, verifier string) ([]byte, int, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {c.cfg.RedirectURI},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"code_verifier": {verifier},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", defaults.ContentTypeForm)
	req.Header.Set("User-Agent", defaults.UserAgent)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("token request: %w", err)
	}
	defer iohelper.DrainAndClose(resp.Body)

	body, err := iohelper.ReadBodyDefault(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading token response: %w", err)
	}
	c.cfg.Logger.Debug("token response", slog.Int("status", resp.StatusCode))
	return body, resp.StatusCode, nil
}

func parseOAuth2Error(body []byte) *OAuth2Error {
	var oe OAuth2Error
	if err := jsonutil.Unmarshal(body, &oe); err != nil || oe.Code == "" {
		return nil
	}
	return &oe
}

// getWithRetry fetches a supporting artifact, retrying dropped connections.
// An HTTP response of any status comes back without retry; only a transport
// failure is worth another attempt against a service that just passed its
// gate.
func (c *Client) getWithRetry(ctx context.Context, u string, attempts int) ([]byte, int, error) {
	var body []byte
	var status int
	err := retry.Do(ctx, retry.Config{
		MaxAttempts: attempts,
		InitDelay:   duration.FetchRetry,
		Strategy:    retry.Constant,
	}, func() error {
		var err error
		body, status, err = c.get(ctx, u)
		return err
	})
	return body, status, err
}

// FetchDevTokens retrieves the pre-issued tokens the key server exposes for
// development, keyed by token type. The "full" entry carries both scopes.
func (c *Client) FetchDevTokens(ctx context.Context) (map[string]DevToken, error) {
	body, status, err := c.getWithRetry(ctx, c.cfg.JWKSBaseURL+"/auth/tokens", defaults.RetryMedium)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &StatusError{Op: "dev tokens", Status: status, Body: string(body)}
	}
	var payload struct {
		Tokens map[string]DevToken `json:"tokens"`
	}
	if err := jsonutil.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing dev tokens: %w", err)
	}
	if len(payload.Tokens) == 0 {
		return nil, fmt.Errorf("dev token response carries no tokens")
	}
	return payload.Tokens, nil
}

// FetchJWKS retrieves the key set document and requires at least one key.
func (c *Client) FetchJWKS(ctx context.Context) (*JWKS, error) {
	body, status, err := c.getWithRetry(ctx, c.cfg.JWKSBaseURL+"/.well-known/jwks.json", defaults.RetryLow)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &StatusError{Op: "jwks", Status: status, Body: string(body)}
	}
	var jwks JWKS
	if err := jsonutil.Unmarshal(body, &jwks); err != nil {
		return nil, fmt.Errorf("parsing jwks document: %w", err)
	}
	if len(jwks.Keys) == 0 {
		return nil, fmt.Errorf("jwks document carries no keys")
	}
	return &jwks, nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", defaults.UserAgent)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("GET %s: %w", u, err)
	}
	defer iohelper.DrainAndClose(resp.Body)

	body, err := iohelper.ReadBodyDefault(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) authorizeEndpoint() string {
	if c.authorizeURL != "" {
		return c.authorizeURL
	}
	return c.cfg.AuthBaseURL + "/authorize"
}

func (c *Client) tokenEndpoint() string {
	if c.tokenURL != "" {
		return c.tokenURL
	}
	return c.cfg.AuthBaseURL + "/token"
}
