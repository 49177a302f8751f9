package iohelper

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBodyLimitsSize(t *testing.T) {
	data, err := ReadBody(strings.NewReader("0123456789"), 4)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(data))
}

func TestReadBodyNilReader(t *testing.T) {
	data, err := ReadBody(nil, 100)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestReadBodyDefault(t *testing.T) {
	data, err := ReadBodyDefault(strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestDrainAndClose(t *testing.T) {
	rc := &closeTracker{Reader: strings.NewReader("leftover body")}
	require.NoError(t, DrainAndClose(rc))
	assert.True(t, rc.closed)

	n, _ := rc.Read(make([]byte, 1))
	assert.Zero(t, n, "reader should be drained")
}

func TestDrainAndCloseNil(t *testing.T) {
	assert.NoError(t, DrainAndClose(nil))
}
