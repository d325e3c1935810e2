package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "sessions.json"))
}

func TestLoad_MissingFile(t *testing.T) {
	s := tempStore(t)
	sessions, err := s.Load()
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestLoad_CorruptFile(t *testing.T) {
	s := tempStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))

	sessions, err := s.Load()
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestSaveLoad_Roundtrip(t *testing.T) {
	s := tempStore(t)
	started := time.Now().UTC().Truncate(time.Second)

	want := map[string]Session{
		"session_ab12cd34": {
			CDPEndpoint: "http://localhost:9222",
			PID:         4242,
			StartedAt:   started,
			LastUsed:    started,
			Status:      StatusReady,
			InitialURL:  "https://example.com",
		},
	}
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	require.Len(t, got, 1)
	sess := got["session_ab12cd34"]
	require.Equal(t, "http://localhost:9222", sess.CDPEndpoint)
	require.Equal(t, 4242, sess.PID)
	require.Equal(t, StatusReady, sess.Status)
	require.Equal(t, "https://example.com", sess.InitialURL)
	require.True(t, sess.StartedAt.Equal(started))
}

func TestSave_CreatesDirectory(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nested", "deeper", "sessions.json"))
	require.NoError(t, s.Save(map[string]Session{}))
	_, err := os.Stat(s.Path())
	require.NoError(t, err)
}

func TestPutGetDelete(t *testing.T) {
	s := tempStore(t)

	require.NoError(t, s.Put("session_1", Session{Status: StatusReady}))

	sess, ok, err := s.Get("session_1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StatusReady, sess.Status)

	_, ok, err = s.Get("session_missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Delete("session_1"))
	_, ok, err = s.Get("session_1")
	require.NoError(t, err)
	require.False(t, ok)

	// Deleting an absent id is a no-op.
	require.NoError(t, s.Delete("session_1"))
}

func TestUpdate(t *testing.T) {
	s := tempStore(t)
	require.NoError(t, s.Put("session_1", Session{Status: StatusReady}))

	ok, err := s.Update("session_1", func(sess *Session) {
		sess.Status = StatusActive
	})
	require.NoError(t, err)
	require.True(t, ok)

	sess, _, err := s.Get("session_1")
	require.NoError(t, err)
	require.Equal(t, StatusActive, sess.Status)

	ok, err = s.Update("session_missing", func(sess *Session) {})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTouch(t *testing.T) {
	s := tempStore(t)
	old := time.Now().Add(-time.Hour)
	require.NoError(t, s.Put("session_1", Session{Status: StatusActive, LastUsed: old}))

	require.NoError(t, s.Touch("session_1"))

	sess, _, err := s.Get("session_1")
	require.NoError(t, err)
	require.True(t, sess.LastUsed.After(old))
}

func TestSessionReady(t *testing.T) {
	tests := []struct {
		name string
		sess Session
		want bool
	}{
		{"ready with endpoint", Session{CDPEndpoint: "http://localhost:9222", Status: StatusReady}, true},
		{"active with endpoint", Session{CDPEndpoint: "http://localhost:9222", Status: StatusActive}, true},
		{"no endpoint", Session{Status: StatusActive}, false},
		{"unknown status", Session{CDPEndpoint: "http://localhost:9222", Status: "stopping"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.sess.Ready())
		})
	}
}

func TestWatch_SeesUpdates(t *testing.T) {
	s := tempStore(t)
	require.NoError(t, s.Save(map[string]Session{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := s.Watch(ctx)
	require.NoError(t, err)

	// Initial snapshot arrives first.
	first := <-updates
	require.Empty(t, first)

	require.NoError(t, s.Put("session_1", Session{Status: StatusReady}))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case sessions := <-updates:
			if _, ok := sessions["session_1"]; ok {
				return
			}
		case <-deadline:
			t.Fatal("never observed session_1 via watcher")
		}
	}
}
