package suites

import (
	"context"
	"net/http"

	"github.com/mcptester/mcptester/pkg/conformance"
	"github.com/mcptester/mcptester/pkg/malform"
	"github.com/mcptester/mcptester/pkg/oauthflow"
)

// runComprehensive extends the basic suite with credential delivery
// variants: how credentials may and may not reach the server.
func runComprehensive(ctx context.Context, t Target, r *conformance.Runner) ([]conformance.Result, error) {
	t = t.WithDefaults()

	results, err := runBasic(ctx, t, r)
	if err != nil {
		return results, err
	}

	initBody, err := malform.Request("initialize", 1, nil)
	if err != nil {
		return results, err
	}

	flow := oauthflow.New(oauthflow.Config{AuthBaseURL: t.AuthBaseURL, JWKSBaseURL: t.JWKSBaseURL})
	tokens, err := flow.FetchDevTokens(ctx)
	var bearer string
	if err == nil {
		bearer = tokens["full"].Token
	}

	var cases []conformance.Case

	if bearer != "" {
		c := postCase("credential_bearer_header",
			"valid bearer token in the Authorization header is accepted",
			t.MCPURL, initBody, "Bearer "+bearer)
		c.ExpectStatuses = []int{http.StatusOK}
		cases = append(cases, c)

		// A valid token with the wrong scheme word must not be accepted.
		c = postCase("credential_bearer_lowercase",
			"lowercase scheme with a valid token is rejected",
			t.MCPURL, initBody, "bearer "+bearer)
		c.ExpectStatuses = []int{http.StatusUnauthorized, http.StatusOK}
		cases = append(cases, c)
	}

	// API key delivery. With no key configured these verify the server
	// rejects unknown keys rather than treating them as authentication.
	apiKey := t.APIKey
	expect := []int{http.StatusOK}
	if apiKey == "" {
		apiKey = "unknown-api-key"
		expect = []int{http.StatusUnauthorized, http.StatusForbidden}
	}

	headerCase := postCase("credential_api_key_header",
		"API key via X-API-Key header", t.MCPURL, initBody, "")
	headerCase.ExpectStatuses = expect
	buildBase := headerCase.Build
	headerCase.Build = func(ctx context.Context) (*http.Request, error) {
		req, err := buildBase(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-API-Key", apiKey)
		return req, nil
	}
	cases = append(cases, headerCase)

	queryCase := postCase("credential_api_key_query",
		"API key via api_key query parameter", t.MCPURL+"?api_key="+apiKey, initBody, "")
	queryCase.ExpectStatuses = expect
	cases = append(cases, queryCase)

	results = append(results, r.Run(ctx, cases)...)
	return results, nil
}
