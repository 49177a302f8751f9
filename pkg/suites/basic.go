package suites

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mcptester/mcptester/pkg/conformance"
	"github.com/mcptester/mcptester/pkg/malform"
	"github.com/mcptester/mcptester/pkg/oauthflow"
)

// runBasic checks that all services serve their endpoints, that the dev
// token endpoint yields a usable token, and that MCP initialize succeeds
// with it.
func runBasic(ctx context.Context, t Target, r *conformance.Runner) ([]conformance.Result, error) {
	t = t.WithDefaults()

	initBody, err := malform.Request("initialize", 1, nil)
	if err != nil {
		return nil, err
	}

	rejectCase := postCase("reject_unauthenticated",
		"MCP request without credentials must draw 401", t.MCPURL, initBody, "")
	rejectCase.ExpectStatuses = []int{http.StatusUnauthorized}

	jwksCase := getCase("jwks_document",
		"key set document must be served unprotected", t.JWKSBaseURL+"/.well-known/jwks.json")
	jwksCase.ExpectStatuses = []int{http.StatusOK}
	jwksCase.MustNotContain = []string{`"d":`} // private exponent must never leak

	devCase := getCase("dev_tokens_endpoint",
		"pre-issued dev tokens must be available", t.JWKSBaseURL+"/auth/tokens")
	devCase.ExpectStatuses = []int{http.StatusOK}

	results := r.Run(ctx, []conformance.Case{rejectCase, jwksCase, devCase})

	flow := oauthflow.New(oauthflow.Config{AuthBaseURL: t.AuthBaseURL, JWKSBaseURL: t.JWKSBaseURL})

	var token string
	results = append(results, step("fetch_dev_token",
		"extract the full-scope token from the dev endpoint", func() error {
			tokens, err := flow.FetchDevTokens(ctx)
			if err != nil {
				return err
			}
			full, ok := tokens["full"]
			if !ok || full.Token == "" {
				return fmt.Errorf("dev tokens missing full-scope entry")
			}
			token = full.Token
			return nil
		}))

	results = append(results, step("mcp_initialize",
		"MCP initialize handshake with a valid token", func() error {
			if token == "" {
				return fmt.Errorf("no token available")
			}
			return initializeMCP(ctx, t.MCPURL, token)
		}))

	return results, nil
}
