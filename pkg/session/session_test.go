package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clock is a manually advanced time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newStore(t *testing.T, cfg Config) (*Store, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := New(cfg, nil)
	s.now = c.now
	return s, c
}

// ============================================================================
// Create / Lookup / Clear
// ============================================================================

func TestCreate(t *testing.T) {
	t.Run("Shared", func(t *testing.T) {
		s, c := newStore(t, Config{Shared: true})

		first := s.Create("user-1")
		require.NotEmpty(t, first.ID)
		assert.Equal(t, "user-1", first.User)
		assert.Equal(t, first.Created, first.Timestamp)

		c.advance(time.Minute)
		second := s.Create("user-1")
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, first.Created, second.Created)
		assert.True(t, second.Timestamp.After(first.Timestamp))
		assert.Equal(t, 1, s.Len())
	})

	t.Run("NotShared", func(t *testing.T) {
		s, _ := newStore(t, Config{})

		first := s.Create("user-1")
		second := s.Create("user-1")
		assert.NotEqual(t, first.ID, second.ID)
		assert.Equal(t, 2, s.Len())
	})

	t.Run("DistinctUsers", func(t *testing.T) {
		s, _ := newStore(t, Config{Shared: true})
		assert.NotEqual(t, s.Create("a").ID, s.Create("b").ID)
	})
}

func TestLookupAndClear(t *testing.T) {
	s, _ := newStore(t, Config{Shared: true})
	sess := s.Create("user-1")

	got, ok := s.Lookup(sess.ID)
	require.True(t, ok)
	assert.Equal(t, sess, got)

	_, ok = s.Lookup("missing")
	assert.False(t, ok)

	assert.True(t, s.Clear(sess.ID))
	assert.False(t, s.Clear(sess.ID))
	_, ok = s.Lookup(sess.ID)
	assert.False(t, ok)

	// The user index is cleared too, so the next login gets a new id.
	assert.NotEqual(t, sess.ID, s.Create("user-1").ID)
}

// ============================================================================
// Expiry
// ============================================================================

func TestTouchSlidesExpiry(t *testing.T) {
	s, c := newStore(t, Config{TTL: time.Hour})
	sess := s.Create("user-1")

	c.advance(50 * time.Minute)
	_, ok := s.Touch(sess.ID)
	require.True(t, ok)

	c.advance(50 * time.Minute)
	assert.Zero(t, s.Expire(), "touched 50 minutes ago")

	c.advance(11 * time.Minute)
	_, ok = s.Touch(sess.ID)
	assert.False(t, ok, "idle for more than the ttl")
	assert.Zero(t, s.Len())
}

func TestExpire(t *testing.T) {
	s, c := newStore(t, Config{TTL: time.Hour, Shared: true})
	old := s.Create("old")
	c.advance(30 * time.Minute)
	fresh := s.Create("fresh")

	c.advance(31 * time.Minute)
	assert.Equal(t, 1, s.Expire())

	_, ok := s.Lookup(old.ID)
	assert.False(t, ok)
	_, ok = s.Lookup(fresh.ID)
	assert.True(t, ok)
	assert.NotEqual(t, old.ID, s.Create("old").ID)
}

func TestDefaults(t *testing.T) {
	s := New(Config{}, nil)
	assert.Equal(t, 24*time.Hour, s.Config().TTL)
	assert.Equal(t, DefaultFile, s.Config().File)
	assert.Empty(t, s.Path(), "sync is off")
	require.NoError(t, s.Sync())
	n, err := s.Load()
	require.NoError(t, err)
	assert.Zero(t, n)
}

// ============================================================================
// Sync
// ============================================================================

func TestSyncAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	cfg := Config{Sync: time.Minute, File: path, Shared: true}

	s, _ := newStore(t, cfg)
	a := s.Create("user-a")
	b := s.Create("user-b")
	require.NoError(t, s.Sync())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	restored := New(cfg, nil)
	n, err := restored.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, ok := restored.Lookup(a.ID)
	require.True(t, ok)
	assert.Equal(t, "user-a", got.User)
	assert.True(t, a.Created.Equal(got.Created))
	assert.Equal(t, b.ID, restored.Create("user-b").ID, "user index restored")
}

func TestRelativeSyncFile(t *testing.T) {
	s := New(Config{Sync: time.Second, File: "dapper-test.json"}, nil)
	assert.Equal(t, filepath.Join(os.TempDir(), "dapper-test.json"), s.Path())
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := New(Config{Sync: time.Minute, File: path}, nil).Load()
	assert.Error(t, err)
}

func TestRunFlushesOnShutdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	s := New(Config{Sync: time.Hour, File: path}, nil)
	sess := s.Create("user-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	restored := New(Config{Sync: time.Hour, File: path}, nil)
	_, err := restored.Load()
	require.NoError(t, err)
	_, ok := restored.Lookup(sess.ID)
	assert.True(t, ok)
}
