package suites

import (
	"context"
	"fmt"

	"github.com/mcptester/mcptester/pkg/conformance"
	"github.com/mcptester/mcptester/pkg/oauthflow"
)

// runFlow drives the complete authorization code flow: discovery, PKCE
// authorize, token exchange, an MCP call with the obtained token, and the
// two exchange negatives. Steps build on each other, so a failed step fails
// the dependents with a clear detail instead of a cascade of noise.
func runFlow(ctx context.Context, t Target, _ *conformance.Runner) ([]conformance.Result, error) {
	t = t.WithDefaults()
	flow := oauthflow.New(oauthflow.Config{AuthBaseURL: t.AuthBaseURL, JWKSBaseURL: t.JWKSBaseURL})

	var results []conformance.Result

	results = append(results, step("discovery",
		"authorization server metadata with S256 support", func() error {
			_, err := flow.Discover(ctx)
			return err
		}))

	pkce, err := oauthflow.GenerateChallenge()
	if err != nil {
		return results, fmt.Errorf("generating PKCE pair: %w", err)
	}
	state, err := oauthflow.GenerateState()
	if err != nil {
		return results, fmt.Errorf("generating state: %w", err)
	}

	var code string
	results = append(results, step("pkce_authorize",
		"authorization code issued, state round-trips", func() error {
			code, err = flow.Authorize(ctx, pkce, state)
			return err
		}))

	var token *oauthflow.Token
	results = append(results, step("token_exchange",
		"code plus verifier yields a bearer JWT", func() error {
			if code == "" {
				return fmt.Errorf("no authorization code from previous step")
			}
			token, err = flow.Exchange(ctx, code, pkce.Verifier)
			return err
		}))

	results = append(results, step("mcp_initialize_with_token",
		"flow-issued token accepted by the MCP endpoint", func() error {
			if token == nil {
				return fmt.Errorf("no access token from previous step")
			}
			return initializeMCP(ctx, t.MCPURL, token.AccessToken)
		}))

	results = append(results, step("reject_invalid_code",
		"exchange with an unknown code draws 400 plus OAuth2 error", func() error {
			_, err := flow.ExchangeInvalid(ctx, "invalid_"+state, pkce.Verifier)
			return err
		}))

	results = append(results, step("reject_wrong_verifier",
		"exchange with a mismatched verifier draws 400 plus OAuth2 error", func() error {
			freshPKCE, err := oauthflow.GenerateChallenge()
			if err != nil {
				return err
			}
			freshState, err := oauthflow.GenerateState()
			if err != nil {
				return err
			}
			freshCode, err := flow.Authorize(ctx, freshPKCE, freshState)
			if err != nil {
				return fmt.Errorf("obtaining fresh code: %w", err)
			}
			wrong, err := oauthflow.GenerateChallenge()
			if err != nil {
				return err
			}
			_, err = flow.ExchangeInvalid(ctx, freshCode, wrong.Verifier)
			return err
		}))

	return results, nil
}
