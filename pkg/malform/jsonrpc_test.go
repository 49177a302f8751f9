package malform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcptester/mcptester/pkg/defaults"
	"github.com/mcptester/mcptester/pkg/jsonutil"
)

func TestJSONRPCUnknownVariant(t *testing.T) {
	_, err := JSONRPC("no_such_variant")
	require.Error(t, err)
}

func TestJSONRPCStructuralVariantsAreValidJSON(t *testing.T) {
	// These bodies must parse, so the server's rejection targets the
	// JSON-RPC structure rather than the JSON syntax.
	structural := []RPCVariant{
		RPCMissingVersion, RPCWrongVersion, RPCMissingMethod,
		RPCNumericMethod, RPCArrayID, RPCObjectID,
		RPCOversizedBody, RPCDeepNesting,
	}
	for _, v := range structural {
		body, err := JSONRPC(v)
		require.NoError(t, err, "variant %s", v)
		assert.True(t, jsonutil.Valid(body), "variant %s must be parseable", v)
	}
}

func TestJSONRPCSyntaxVariantsAreInvalidJSON(t *testing.T) {
	broken := []RPCVariant{RPCTrailingComma, RPCUnterminated, RPCNotJSON, RPCEmptyBody}
	for _, v := range broken {
		body, err := JSONRPC(v)
		require.NoError(t, err, "variant %s", v)
		assert.False(t, jsonutil.Valid(body), "variant %s must not be parseable", v)
	}
}

func TestJSONRPCMissingVersion(t *testing.T) {
	body, err := JSONRPC(RPCMissingVersion)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, jsonutil.Unmarshal(body, &m))
	assert.NotContains(t, m, "jsonrpc")
	assert.Equal(t, "initialize", m["method"])
}

func TestJSONRPCWrongVersion(t *testing.T) {
	body, err := JSONRPC(RPCWrongVersion)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, jsonutil.Unmarshal(body, &m))
	assert.Equal(t, "1.0", m["jsonrpc"])
}

func TestJSONRPCInvalidIDTypes(t *testing.T) {
	for _, v := range []RPCVariant{RPCArrayID, RPCObjectID} {
		body, err := JSONRPC(v)
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, jsonutil.Unmarshal(body, &m))
		switch v {
		case RPCArrayID:
			assert.IsType(t, []any{}, m["id"])
		case RPCObjectID:
			assert.IsType(t, map[string]any{}, m["id"])
		}
	}
}

func TestJSONRPCEmptyBody(t *testing.T) {
	body, err := JSONRPC(RPCEmptyBody)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestJSONRPCOversizedBody(t *testing.T) {
	body, err := JSONRPC(RPCOversizedBody)
	require.NoError(t, err)
	assert.Greater(t, len(body), defaults.MaxBodySize)
}

func TestJSONRPCDeepNesting(t *testing.T) {
	body, err := JSONRPC(RPCDeepNesting)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, jsonutil.Unmarshal(body, &m))

	depth := 0
	cur, _ := m["params"].(map[string]any)
	for cur != nil {
		next, _ := cur["nested"].(map[string]any)
		if next == nil {
			break
		}
		depth++
		cur = next
	}
	assert.Equal(t, defaults.NestingDepth, depth)
}

func TestRequestWellFormed(t *testing.T) {
	body, err := Request("initialize", 1, map[string]any{"protocolVersion": "2024-11-05"})
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, jsonutil.Unmarshal(body, &m))
	assert.Equal(t, "2.0", m["jsonrpc"])
	assert.Equal(t, "initialize", m["method"])
	assert.Contains(t, m, "params")

	body, err = Request("ping", "abc", nil)
	require.NoError(t, err)
	require.NoError(t, jsonutil.Unmarshal(body, &m))
	assert.NotContains(t, m, "params")
}
