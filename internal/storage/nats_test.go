package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startNATS(t *testing.T) *server.Server {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	srv := test.RunServer(&opts)
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestNATSStorage_RoundTrip(t *testing.T) {
	t.Parallel()

	srv := startNATS(t)

	s, err := DialNATS(srv.ClientURL(), "VOICES")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Upload(ctx, "voice/greet1.mp3", strings.NewReader("hello audio"), "audio/mpeg"))

	rc, err := s.Download(ctx, "voice/greet1.mp3")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello audio", string(data))

	require.NoError(t, s.Delete(ctx, "voice/greet1.mp3"))
	_, err = s.Download(ctx, "voice/greet1.mp3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNATSStorage_BindsExistingBucket(t *testing.T) {
	t.Parallel()

	srv := startNATS(t)

	first, err := DialNATS(srv.ClientURL(), "VOICES")
	require.NoError(t, err)
	defer first.Close()
	require.NoError(t, first.Upload(context.Background(), "voice/keep1.mp3", strings.NewReader("kept"), "audio/mpeg"))

	second, err := DialNATS(srv.ClientURL(), "VOICES")
	require.NoError(t, err)
	defer second.Close()

	rc, err := second.Download(context.Background(), "voice/keep1.mp3")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "kept", string(data))
}
