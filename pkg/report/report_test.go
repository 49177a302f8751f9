package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcptester/mcptester/pkg/conformance"
	"github.com/mcptester/mcptester/pkg/jsonutil"
)

func sampleResults() []conformance.Result {
	return []conformance.Result{
		{Name: "reject_missing_auth", Passed: true, Status: 401},
		{Name: "reject_expired_token", Passed: true, Status: 401},
		{Name: "reject_none_alg", Passed: false, Status: 200, Detail: "unexpected status 200"},
	}
}

func TestNewHasRunID(t *testing.T) {
	r := New("http://localhost:3001/mcp")
	_, err := uuid.Parse(r.RunID)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3001/mcp", r.Target)
	assert.False(t, r.StartedAt.IsZero())
	assert.True(t, r.Passed())
}

func TestAddSuiteTallies(t *testing.T) {
	r := New("target")
	r.AddSuite("edge", sampleResults())

	require.Len(t, r.Suites, 1)
	assert.Equal(t, 2, r.Suites[0].Passed)
	assert.Equal(t, 1, r.Suites[0].Failed)

	passed, failed, total := r.Totals()
	assert.Equal(t, 2, passed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 3, total)
	assert.False(t, r.Passed())
}

func TestFailuresTaggedWithSuite(t *testing.T) {
	r := New("target")
	r.AddSuite("edge", sampleResults())
	r.AddSuite("basic", []conformance.Result{{Name: "initialize", Passed: true}})

	failures := r.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "edge/reject_none_alg", failures[0].Name)
}

func TestMerge(t *testing.T) {
	a := New("target")
	a.AddSuite("edge", sampleResults())

	b := New("target")
	b.StartedAt = a.StartedAt.Add(-time.Minute)
	b.AddSuite("jsonrpc", []conformance.Result{{Name: "trailing_comma", Passed: true}})
	b.Finish()

	a.Merge(b)
	require.Len(t, a.Suites, 2)
	assert.Equal(t, b.StartedAt, a.StartedAt)
	assert.Equal(t, b.FinishedAt, a.FinishedAt)

	a.Merge(nil)
	assert.Len(t, a.Suites, 2)
}

func TestWriteJSONRoundTrip(t *testing.T) {
	r := New("http://localhost:3002/mcp")
	r.AddSuite("edge", sampleResults())
	r.Finish()

	var buf bytes.Buffer
	require.NoError(t, r.WriteJSON(&buf))

	var decoded Report
	require.NoError(t, jsonutil.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, r.RunID, decoded.RunID)
	require.Len(t, decoded.Suites, 1)
	assert.Len(t, decoded.Suites[0].Results, 3)
	assert.Equal(t, 1, decoded.Suites[0].Failed)
}
