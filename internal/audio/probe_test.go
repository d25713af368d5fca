package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeMP3_Empty(t *testing.T) {
	t.Parallel()

	_, err := ProbeMP3(nil)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestProbeMP3_NotMP3(t *testing.T) {
	t.Parallel()

	_, err := ProbeMP3([]byte("this is plainly not an mpeg audio stream"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode mp3")
}
