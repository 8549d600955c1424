package clipboard

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

func failing(string) error { return errors.New("nope") }

func TestCopyEmpty(t *testing.T) {
	_, err := copier{}.copy("")
	assert.ErrorIs(t, err, errEmpty)
}

func TestCopyPrefersClipExeUnderWSL(t *testing.T) {
	var got string
	c := copier{
		wsl:     true,
		clipExe: func(s string) error { got = s; return nil },
		native:  func(string) error { t.Fatal("native should not run"); return nil },
	}
	method, err := c.copy("s-1")
	require.NoError(t, err)
	assert.Equal(t, MethodClipExe, method)
	assert.Equal(t, "s-1", got)
}

func TestCopyFallsBackToOSC52(t *testing.T) {
	var buf bytes.Buffer
	c := copier{
		wsl:     true,
		clipExe: failing,
		native:  failing,
		tty:     func() (io.WriteCloser, error) { return nopCloser{&buf}, nil },
	}
	method, err := c.copy("hello")
	require.NoError(t, err)
	assert.Equal(t, MethodOSC52, method)
	// base64("hello") inside an OSC 52 sequence
	assert.Contains(t, buf.String(), "\x1b]52;c;aGVsbG8=")
}

func TestCopyOSC52WrapsForTmux(t *testing.T) {
	var buf bytes.Buffer
	c := copier{
		inTmux: true,
		native: failing,
		tty:    func() (io.WriteCloser, error) { return nopCloser{&buf}, nil },
	}
	_, err := c.copy("hello")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "\x1bPtmux;")
}

func TestCopyReportsFailure(t *testing.T) {
	c := copier{
		native: failing,
		tty:    func() (io.WriteCloser, error) { return nil, errors.New("no tty") },
	}
	_, err := c.copy("x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tty")
}
