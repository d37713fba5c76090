package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrips(t *testing.T) {
	f := Frame{Command: CommandQuery, ID: 42, Target: "abc123", Args: `{"x":1}`}
	decoded, err := DecodeFrame(f.Encode())
	require.NoError(t, err)
	assert.Equal(t, f, decoded)
}

func TestDecodeFrameRejectsMissingSeparators(t *testing.T) {
	_, err := DecodeFrame("Q42")
	assert.Error(t, err)
}

func TestDecodeFrameRejectsNonNumericID(t *testing.T) {
	_, err := DecodeFrame("Qabc;target;{}")
	assert.Error(t, err)
}

func TestDecodeFrameAllowsEmptyArgs(t *testing.T) {
	decoded, err := DecodeFrame("H1;;")
	require.NoError(t, err)
	assert.Equal(t, CommandHeartbeat, decoded.Command)
	assert.Equal(t, "", decoded.Args)
}
