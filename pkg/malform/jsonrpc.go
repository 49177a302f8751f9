package malform

import (
	"fmt"
	"strings"

	"github.com/mcptester/mcptester/pkg/defaults"
	"github.com/mcptester/mcptester/pkg/jsonutil"
)

// RPCVariant names one way a JSON-RPC 2.0 request body can be broken.
type RPCVariant string

const (
	// RPCMissingVersion omits the jsonrpc field entirely.
	RPCMissingVersion RPCVariant = "missing_version"

	// RPCWrongVersion carries jsonrpc "1.0" instead of "2.0".
	RPCWrongVersion RPCVariant = "wrong_version"

	// RPCMissingMethod omits the method field.
	RPCMissingMethod RPCVariant = "missing_method"

	// RPCNumericMethod has a number where the method string belongs.
	RPCNumericMethod RPCVariant = "numeric_method"

	// RPCArrayID uses an array as the request id, which JSON-RPC 2.0 forbids.
	RPCArrayID RPCVariant = "array_id"

	// RPCObjectID uses an object as the request id.
	RPCObjectID RPCVariant = "object_id"

	// RPCTrailingComma is otherwise-valid JSON with a trailing comma.
	RPCTrailingComma RPCVariant = "trailing_comma"

	// RPCUnterminated is truncated JSON missing its closing brace.
	RPCUnterminated RPCVariant = "unterminated"

	// RPCNotJSON is a body that is not JSON at all.
	RPCNotJSON RPCVariant = "not_json"

	// RPCEmptyBody is a zero-length body.
	RPCEmptyBody RPCVariant = "empty_body"

	// RPCOversizedBody carries params pushing the body past 1MB.
	RPCOversizedBody RPCVariant = "oversized_body"

	// RPCDeepNesting nests params 100 objects deep.
	RPCDeepNesting RPCVariant = "deep_nesting"
)

// RPCVariants returns every request variant in a stable order.
func RPCVariants() []RPCVariant {
	return []RPCVariant{
		RPCMissingVersion,
		RPCWrongVersion,
		RPCMissingMethod,
		RPCNumericMethod,
		RPCArrayID,
		RPCObjectID,
		RPCTrailingComma,
		RPCUnterminated,
		RPCNotJSON,
		RPCEmptyBody,
		RPCOversizedBody,
		RPCDeepNesting,
	}
}

// JSONRPC builds the raw request body for a variant. Structurally invalid
// requests should draw -32600, unparseable ones -32700; the oversized and
// deeply nested bodies may instead be rejected at the HTTP layer.
func JSONRPC(v RPCVariant) ([]byte, error) {
	switch v {
	case RPCMissingVersion:
		return marshal(map[string]any{"method": "initialize", "id": 1})

	case RPCWrongVersion:
		return marshal(map[string]any{"jsonrpc": "1.0", "method": "initialize", "id": 1})

	case RPCMissingMethod:
		return marshal(map[string]any{"jsonrpc": "2.0", "id": 1})

	case RPCNumericMethod:
		return marshal(map[string]any{"jsonrpc": "2.0", "method": 123, "id": 1})

	case RPCArrayID:
		return marshal(map[string]any{"jsonrpc": "2.0", "method": "ping", "id": []int{1, 2, 3}})

	case RPCObjectID:
		return marshal(map[string]any{"jsonrpc": "2.0", "method": "ping", "id": map[string]any{"nested": "object"}})

	case RPCTrailingComma:
		return []byte(`{"jsonrpc": "2.0", "method": "initialize", "id": 1,}`), nil

	case RPCUnterminated:
		return []byte(`{"jsonrpc": "2.0", "method": "initialize", "id": 1`), nil

	case RPCNotJSON:
		return []byte("not_json_at_all"), nil

	case RPCEmptyBody:
		return []byte{}, nil

	case RPCOversizedBody:
		return marshal(map[string]any{
			"jsonrpc": "2.0",
			"method":  "initialize",
			"params":  map[string]any{"large_field": strings.Repeat("x", defaults.MaxBodySize)},
			"id":      1,
		})

	case RPCDeepNesting:
		nested := map[string]any{"value": "deep"}
		for range defaults.NestingDepth {
			nested = map[string]any{"nested": nested}
		}
		return marshal(map[string]any{
			"jsonrpc": "2.0",
			"method":  "initialize",
			"params":  nested,
			"id":      1,
		})

	default:
		return nil, fmt.Errorf("unknown jsonrpc variant: %q", v)
	}
}

// Request builds a well-formed JSON-RPC 2.0 request body. The runner uses it
// for the control cases that must succeed past parsing.
func Request(method string, id any, params any) ([]byte, error) {
	body := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"id":      id,
	}
	if params != nil {
		body["params"] = params
	}
	return marshal(body)
}

func marshal(v any) ([]byte, error) {
	data, err := jsonutil.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}
	return data, nil
}
