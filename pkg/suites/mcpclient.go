package suites

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcptester/mcptester/pkg/defaults"
	"github.com/mcptester/mcptester/pkg/httpclient"
)

// bearerTransport injects the access token into every request the MCP SDK
// client makes.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(clone)
}

// initializeMCP runs the MCP initialize handshake against the endpoint with
// the given bearer token, using the official SDK client. Connect performs
// the initialize exchange; a clean session means the server accepted both
// the token and the protocol handshake.
func initializeMCP(ctx context.Context, endpoint, token string) error {
	hc := httpclient.New(httpclient.FlowConfig())
	hc.Transport = &bearerTransport{token: token, base: hc.Transport}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "mcptester",
		Version: defaults.Version,
	}, nil)

	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{
		Endpoint:   endpoint,
		HTTPClient: hc,
	}, nil)
	if err != nil {
		return fmt.Errorf("mcp initialize: %w", err)
	}
	defer session.Close()

	if res := session.InitializeResult(); res != nil && res.ServerInfo == nil {
		return fmt.Errorf("initialize result missing server info")
	}
	return nil
}
