package integration

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const basePath = "/make-server-201dba08"

// TestSystem runs premia-server and drives it with premiactl
type TestSystem struct {
	t       *testing.T
	binDir  string
	dataDir string
	addr    string
	server  *exec.Cmd
}

func NewTestSystem(t *testing.T) *TestSystem {
	return &TestSystem{
		t:       t,
		binDir:  t.TempDir(),
		dataDir: t.TempDir(),
		addr:    freeAddr(t),
	}
}

// Build compiles both binaries into binDir
func (ts *TestSystem) Build() error {
	for _, name := range []string{"premia-server", "premiactl"} {
		ts.t.Logf("Building %s...", name)
		cmd := exec.Command("go", "build", "-o", filepath.Join(ts.binDir, name), "../../cmd/"+name)
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("failed to build %s: %w", name, err)
		}
	}
	return nil
}

// Start launches the server on the sqlite backend
func (ts *TestSystem) Start() error {
	ts.server = exec.Command(filepath.Join(ts.binDir, "premia-server"))
	ts.server.Env = append(os.Environ(),
		"PREMIA_LISTEN="+ts.addr,
		"PREMIA_BASE_PATH="+basePath,
		"PREMIA_STORAGE_DRIVER=sqlite",
		"PREMIA_STORAGE_PATH="+filepath.Join(ts.dataDir, "premia.db"),
		"PREMIA_LOG_FORMAT=json",
	)
	ts.server.Stdout = os.Stdout
	ts.server.Stderr = os.Stderr
	if err := ts.server.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return ts.waitForService(ts.baseURL() + "/health")
}

// Stop sends SIGTERM and waits for a clean exit
func (ts *TestSystem) Stop() error {
	if ts.server == nil || ts.server.Process == nil {
		return nil
	}
	if err := ts.server.Process.Signal(syscall.SIGTERM); err != nil {
		return err
	}
	err := ts.server.Wait()
	ts.server = nil
	return err
}

func (ts *TestSystem) baseURL() string {
	return "http://" + ts.addr + basePath
}

// Ctl runs premiactl for user and returns its trimmed stdout
func (ts *TestSystem) Ctl(user string, args ...string) (string, error) {
	full := append([]string{"-server", ts.baseURL(), "-user", user}, args...)
	cmd := exec.Command(filepath.Join(ts.binDir, "premiactl"), full...)
	out, err := cmd.Output()
	if ee, ok := err.(*exec.ExitError); ok {
		return strings.TrimSpace(string(out)), fmt.Errorf("%w: %s", err, ee.Stderr)
	}
	return strings.TrimSpace(string(out)), err
}

func (ts *TestSystem) waitForService(url string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := &http.Client{Timeout: time.Second}
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %s", url)
		default:
			resp, err := client.Get(url)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return nil
				}
			}
			time.Sleep(100 * time.Millisecond)
		}
	}
}

func freeAddr(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestPremiaEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ts := NewTestSystem(t)
	require.NoError(t, ts.Build())
	require.NoError(t, ts.Start())
	defer ts.Stop()

	out, err := ts.Ctl("alice", "health")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	pred := `{"id":"1","timestamp":"2025-03-01T10:00:00Z","inputs":{"age":33,"bmi":24.1,"children":1,"gender":"female","smoker":"no","region":"northwest"},"predictedPrice":5300.25}`
	_, err = ts.Ctl("alice", "save", pred)
	require.NoError(t, err)
	_, err = ts.Ctl("alice", "set-profile", `{"name":"Alice","email":"alice@example.com","phone":"555"}`)
	require.NoError(t, err)

	// another user's data stays separate
	out, err = ts.Ctl("alice2", "list")
	require.NoError(t, err)
	assert.Equal(t, "[]", out)

	t.Run("data survives restart", func(t *testing.T) {
		require.NoError(t, ts.Stop())
		require.NoError(t, ts.Start())

		out, err := ts.Ctl("alice", "list")
		require.NoError(t, err)
		assert.Contains(t, out, `"predictedPrice": 5300.25`)

		out, err = ts.Ctl("alice", "profile")
		require.NoError(t, err)
		assert.Contains(t, out, `"email": "alice@example.com"`)
	})

	t.Run("clear", func(t *testing.T) {
		_, err := ts.Ctl("alice", "clear")
		require.NoError(t, err)

		out, err := ts.Ctl("alice", "list")
		require.NoError(t, err)
		assert.Equal(t, "[]", out)

		out, err = ts.Ctl("alice", "profile")
		require.NoError(t, err)
		assert.Contains(t, out, `"name": "Alice"`, "clear leaves the profile alone")
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := ts.Ctl("alice", "save", `{"id":"x","inputs":{"gender":"other"}}`)
		assert.ErrorContains(t, err, "http 400")
	})
}
