package cache

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewAndPing(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, Pinger(client).Ping(context.Background()))

	mr.Close()
	require.ErrorContains(t, Pinger(client).Ping(context.Background()), "platform/cache: ping")
}
