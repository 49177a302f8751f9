package jsonutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	data, err := Marshal(payload{Name: "edge", Count: 3})
	require.NoError(t, err)

	var out payload
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, "edge", out.Name)
	assert.Equal(t, 3, out.Count)
}

func TestMarshalIndent(t *testing.T) {
	data, err := MarshalIndent(map[string]int{"a": 1}, "", "  ")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "\n"))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid([]byte(`{"jsonrpc":"2.0","id":1}`)))
	assert.False(t, Valid([]byte(`{"jsonrpc":`)))
	assert.False(t, Valid([]byte(`{"a":1,}`)))
}
