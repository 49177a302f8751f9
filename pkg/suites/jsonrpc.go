package suites

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mcptester/mcptester/pkg/conformance"
	"github.com/mcptester/mcptester/pkg/defaults"
	"github.com/mcptester/mcptester/pkg/malform"
	"github.com/mcptester/mcptester/pkg/oauthflow"
)

// sensitivePatterns are fragments that must never surface in an error
// response: stack traces, source paths, internal panics.
var sensitivePatterns = []string{"panic", "backtrace", ".rs:", "src/", "/home/"}

// rpcExpectation describes how a server may answer one malformed body.
type rpcExpectation struct {
	statuses      []int
	rpcCode       int
	networkReject bool
}

// rpcExpectations is the JSON-RPC matrix. Structural violations draw
// -32600, syntax violations -32700; either way an HTTP 400 without a body
// is also a correct rejection.
var rpcExpectations = map[malform.RPCVariant]rpcExpectation{
	malform.RPCMissingVersion: {statuses: []int{http.StatusOK, http.StatusBadRequest}, rpcCode: defaults.RPCInvalidRequest},
	malform.RPCWrongVersion:   {statuses: []int{http.StatusOK, http.StatusBadRequest}, rpcCode: defaults.RPCInvalidRequest},
	malform.RPCMissingMethod:  {statuses: []int{http.StatusOK, http.StatusBadRequest}, rpcCode: defaults.RPCInvalidRequest},
	malform.RPCNumericMethod:  {statuses: []int{http.StatusOK, http.StatusBadRequest}, rpcCode: defaults.RPCInvalidRequest},
	malform.RPCArrayID:        {statuses: []int{http.StatusOK, http.StatusBadRequest}, rpcCode: defaults.RPCInvalidRequest},
	malform.RPCObjectID:       {statuses: []int{http.StatusOK, http.StatusBadRequest}, rpcCode: defaults.RPCInvalidRequest},
	malform.RPCTrailingComma:  {statuses: []int{http.StatusOK, http.StatusBadRequest}, rpcCode: defaults.RPCParseError},
	malform.RPCUnterminated:   {statuses: []int{http.StatusOK, http.StatusBadRequest}, rpcCode: defaults.RPCParseError},
	malform.RPCNotJSON:        {statuses: []int{http.StatusOK, http.StatusBadRequest}, rpcCode: defaults.RPCParseError},
	malform.RPCEmptyBody:      {statuses: []int{http.StatusOK, http.StatusBadRequest}, rpcCode: defaults.RPCParseError},
	malform.RPCOversizedBody: {
		statuses:      []int{http.StatusOK, http.StatusBadRequest, http.StatusRequestEntityTooLarge},
		networkReject: true,
	},
	malform.RPCDeepNesting: {
		statuses:      []int{http.StatusOK, http.StatusBadRequest},
		networkReject: true,
	},
}

// runJSONRPC exercises the protocol layer behind auth: it first obtains a
// valid token so rejections are attributable to the JSON-RPC layer, then
// runs the malformation matrix and the unknown-method checks.
func runJSONRPC(ctx context.Context, t Target, r *conformance.Runner) ([]conformance.Result, error) {
	t = t.WithDefaults()

	flow := oauthflow.New(oauthflow.Config{AuthBaseURL: t.AuthBaseURL, JWKSBaseURL: t.JWKSBaseURL})
	tokens, err := flow.FetchDevTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtaining token for jsonrpc suite: %w", err)
	}
	full, ok := tokens["full"]
	if !ok || full.Token == "" {
		return nil, fmt.Errorf("dev tokens missing full-scope entry")
	}
	auth := "Bearer " + full.Token

	var cases []conformance.Case

	for _, v := range malform.RPCVariants() {
		body, err := malform.JSONRPC(v)
		if err != nil {
			return nil, err
		}
		exp := rpcExpectations[v]
		c := postCase("rpc_"+string(v),
			"request body with "+string(v)+" must be rejected",
			t.MCPURL, body, auth)
		c.ExpectStatuses = exp.statuses
		c.ExpectRPCCode = exp.rpcCode
		c.AllowNetworkReject = exp.networkReject
		c.MustNotContain = sensitivePatterns
		cases = append(cases, c)
	}

	badParams, err := malform.Request("initialize", 1, "params-must-be-structured")
	if err != nil {
		return nil, err
	}
	invalidParams := postCase("rpc_invalid_params",
		"params of a non-structured type draw invalid-params", t.MCPURL, badParams, auth)
	invalidParams.ExpectStatuses = []int{http.StatusOK, http.StatusBadRequest}
	invalidParams.ExpectRPCCode = defaults.RPCInvalidParams
	invalidParams.MustNotContain = sensitivePatterns
	cases = append(cases, invalidParams)

	for _, method := range []string{"nonexistent_method", "system.exec", "rpc.discover"} {
		body, err := malform.Request(method, 1, nil)
		if err != nil {
			return nil, err
		}
		c := postCase("rpc_unknown_method_"+method,
			"unknown method draws method-not-found", t.MCPURL, body, auth)
		c.ExpectStatuses = []int{http.StatusOK, http.StatusBadRequest, http.StatusNotFound}
		c.ExpectRPCCode = defaults.RPCMethodNotFound
		c.MustNotContain = sensitivePatterns
		cases = append(cases, c)
	}

	return r.Run(ctx, cases), nil
}
