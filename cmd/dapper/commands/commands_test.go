package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dapper/pkg/auth"
)

const testConfig = `
logging:
  level: WARN
radius:
  enabled: false
api:
  enabled: false
datastore:
  provider: memory
  data:
    domains: [dapper.test]
    organizations: [QA]
    users:
      - username: foo
        email: foo@dapper.test
        organization: QA
`

// run executes the root command with args and returns what it printed.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	hashStdin = false
	treeOutput = "table"
	treeAll = false
	treeWatch = false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0600))
	return path
}

// ============================================================================
// hash
// ============================================================================

func TestHash(t *testing.T) {
	t.Run("Argument", func(t *testing.T) {
		out, err := run(t, "", "hash", "s3cr3t")
		require.NoError(t, err)

		hash := strings.TrimSpace(out)
		assert.True(t, auth.IsHashed(hash))
		ok, err := auth.VerifyPassword("s3cr3t", hash, false)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Stdin", func(t *testing.T) {
		out, err := run(t, "piped\n", "hash", "--stdin")
		require.NoError(t, err)

		ok, err := auth.VerifyPassword("piped", strings.TrimSpace(out), false)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("EmptyStdin", func(t *testing.T) {
		_, err := run(t, "\n", "hash", "--stdin")
		assert.Error(t, err)
	})
}

// ============================================================================
// tree
// ============================================================================

func TestTree(t *testing.T) {
	path := writeConfig(t)

	t.Run("Table", func(t *testing.T) {
		out, err := run(t, "", "tree", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, out, "PREFERRED DN")
		assert.Contains(t, out, "dc=dapper, dc=test")
	})

	t.Run("AllJSON", func(t *testing.T) {
		out, err := run(t, "", "tree", "--config", path, "--all", "-o", "json")
		require.NoError(t, err)

		var rows []map[string]string
		require.NoError(t, json.Unmarshal([]byte(out), &rows))
		require.NotEmpty(t, rows)

		var kinds []string
		for _, r := range rows {
			kinds = append(kinds, r["kind"])
		}
		assert.Contains(t, kinds, "user")
		assert.Contains(t, kinds, "organization")
	})

	t.Run("BadFormat", func(t *testing.T) {
		_, err := run(t, "", "tree", "--config", path, "-o", "ldif")
		assert.Error(t, err)
	})

	t.Run("WatchNeedsFileDatastore", func(t *testing.T) {
		_, err := run(t, "", "tree", "--config", path, "--watch")
		assert.ErrorContains(t, err, "file datastore")
	})
}

func TestWatchFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "directory.yaml")
	require.NoError(t, os.WriteFile(target, []byte("users: []\n"), 0600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- watchFile(ctx, target, func() error {
			select {
			case changes <- struct{}{}:
			default:
			}
			return nil
		})
	}()

	// Writes to siblings are ignored; the target is written until the
	// watcher (which starts asynchronously) reports it.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0600))
	require.Eventually(t, func() bool {
		_ = os.WriteFile(target, []byte("users: []\n"), 0600)
		select {
		case <-changes:
			return true
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watchFile did not return after cancel")
	}
}

// ============================================================================
// version
// ============================================================================

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "dapper "+Version)
}
