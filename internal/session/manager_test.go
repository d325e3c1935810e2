package session

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"webpilot/internal/config"
	"webpilot/internal/store"

	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "sessions.json"))
	m := NewManager(st, config.Default(), nil)
	m.pollInterval = 10 * time.Millisecond
	m.timeout = 500 * time.Millisecond
	return m, st
}

func TestNewSessionID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewSessionID()
		require.True(t, strings.HasPrefix(id, "session_"), "id %q missing prefix", id)
		require.Len(t, id, len("session_")+8)
		require.False(t, seen[id], "duplicate id %q", id)
		seen[id] = true
	}
}

func TestCreate_SucceedsWhenDaemonRegisters(t *testing.T) {
	m, st := testManager(t)

	// Fake daemon: registers the session as active right away.
	m.spawn = func(id, initialURL string) error {
		return st.Put(id, store.Session{
			CDPEndpoint: "http://localhost:9222",
			PID:         1234,
			StartedAt:   time.Now(),
			LastUsed:    time.Now(),
			Status:      store.StatusActive,
			InitialURL:  initialURL,
		})
	}

	res := m.Create(context.Background(), "https://example.com")
	require.True(t, res.Success, "create failed: %s", res.Error)
	require.NotEmpty(t, res.SessionID)
	require.Equal(t, "http://localhost:9222", res.CDPEndpoint)
	require.Contains(t, res.Message, res.SessionID)
	require.Contains(t, res.Message, "https://example.com")

	_, ok, err := st.Get(res.SessionID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCreate_TimesOutWhenDaemonNeverReady(t *testing.T) {
	m, st := testManager(t)

	var spawnedID string
	m.spawn = func(id, initialURL string) error {
		spawnedID = id
		// Daemon that writes an entry but never reaches ready: no endpoint.
		return st.Put(id, store.Session{Status: "starting"})
	}

	res := m.Create(context.Background(), "")
	require.False(t, res.Success)
	require.Contains(t, res.Error, "did not become ready")

	// The failed id must not linger in the registry.
	_, ok, err := st.Get(spawnedID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCreate_SpawnFailure(t *testing.T) {
	m, _ := testManager(t)
	m.spawn = func(id, initialURL string) error {
		return context.DeadlineExceeded
	}

	res := m.Create(context.Background(), "")
	require.False(t, res.Success)
	require.Contains(t, res.Error, "failed to start session daemon")
}

func TestCreate_Cancelled(t *testing.T) {
	m, st := testManager(t)
	m.timeout = 10 * time.Second
	m.spawn = func(id, initialURL string) error { return nil }

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	res := m.Create(ctx, "")
	require.False(t, res.Success)
	require.Contains(t, res.Error, "cancelled")

	sessions, err := st.Load()
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestEnd_SessionNotFound(t *testing.T) {
	m, _ := testManager(t)
	res := m.End(context.Background(), "session_missing")
	require.False(t, res.Success)
	require.Contains(t, res.Error, "session not found")
}

func TestEnd_RemovesEntryEvenWhenProcessGone(t *testing.T) {
	m, st := testManager(t)
	// A pid that certainly is not ours and (very likely) does not exist, and
	// no endpoint so no CDP fallback is attempted.
	require.NoError(t, st.Put("session_dead", store.Session{PID: 1 << 30, Status: store.StatusActive}))

	res := m.End(context.Background(), "session_dead")
	require.True(t, res.Success)

	_, ok, err := st.Get("session_dead")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestShouldNavigate(t *testing.T) {
	tests := []struct {
		name    string
		current string
		target  string
		want    bool
	}{
		{"no target", "https://example.com/", "", false},
		{"identical", "https://example.com", "https://example.com", false},
		{"target substring of current", "https://example.com/docs/intro", "https://example.com/docs", false},
		{"different site", "https://example.com/", "https://other.test/", true},
		{"blank page", "about:blank", "https://example.com", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ShouldNavigate(tt.current, tt.target))
		})
	}
}
