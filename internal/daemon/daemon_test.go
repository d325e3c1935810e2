package daemon

import (
	"context"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"webpilot/internal/store"

	"github.com/stretchr/testify/require"
)

func TestFreePort_ReturnsBindablePort(t *testing.T) {
	port, err := freePort(20000)
	require.NoError(t, err)
	require.GreaterOrEqual(t, port, 20000)

	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	_ = l.Close()
}

func TestFreePort_SkipsBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	start := busy.Addr().(*net.TCPAddr).Port
	port, err := freePort(start)
	require.NoError(t, err)
	require.NotEqual(t, start, port)
	require.Greater(t, port, start)
}

func TestHeartbeat_RefreshesLastUsed(t *testing.T) {
	st := store.New(filepath.Join(t.TempDir(), "sessions.json"))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, st.Put("session_hb", store.Session{Status: store.StatusActive, LastUsed: old}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- heartbeat(ctx, st, "session_hb", 20*time.Millisecond)
	}()

	require.Eventually(t, func() bool {
		sess, ok, err := st.Get("session_hb")
		return err == nil && ok && sess.LastUsed.After(old)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestHeartbeat_StopsOnCancel(t *testing.T) {
	st := store.New(filepath.Join(t.TempDir(), "sessions.json"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := heartbeat(ctx, st, "session_x", time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}
