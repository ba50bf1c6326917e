package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/premia/internal/config"
	"github.com/dreamware/premia/internal/storage"
)

func startServer(t *testing.T, cfg config.Config) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	log, _ := logtest.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- run(ctx, cfg, log, ln) }()

	base := "http://" + ln.Addr().String() + cfg.BasePath
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	return base, cancel, errc
}

func waitStopped(t *testing.T, errc <-chan error) {
	t.Helper()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunServesAndShutsDown(t *testing.T) {
	cfg := config.Default()
	cfg.BasePath = "/make-server-201dba08"
	cfg.Health.Interval = 50 * time.Millisecond

	base, cancel, errc := startServer(t, cfg)

	body := `{"id":"1","timestamp":"2025-01-02T03:04:05Z","inputs":{"age":30,"bmi":22.5,"children":1,"gender":"female","smoker":"no","region":"southwest"},"predictedPrice":5120.5}`
	resp, err := http.Post(base+"/predictions/u1", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/predictions/u1")
	require.NoError(t, err)
	var list struct {
		Predictions []json.RawMessage `json:"predictions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	assert.Len(t, list.Predictions, 1)

	assert.Eventually(t, func() bool {
		resp, err := http.Get(base + "/ready")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	resp, err = http.Get(base + "/stats")
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"driver":"memory"`)

	cancel()
	waitStopped(t, errc)
}

func TestRunPersistsWithBolt(t *testing.T) {
	cfg := config.Default()
	cfg.Storage = storage.Config{Driver: storage.DriverBolt, Path: filepath.Join(t.TempDir(), "kv.bolt")}

	base, cancel, errc := startServer(t, cfg)
	resp, err := http.Post(base+"/profile/u1", "application/json", strings.NewReader(`{"name":"Jane","email":"jane@example.com","phone":"1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cancel()
	waitStopped(t, errc)

	base, cancel, errc = startServer(t, cfg)
	defer func() {
		cancel()
		waitStopped(t, errc)
	}()
	resp, err = http.Get(base + "/profile/u1")
	require.NoError(t, err)
	defer resp.Body.Close()
	var out struct {
		Profile map[string]string `json:"profile"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "Jane", out.Profile["name"])
}

func TestRunStorageOpenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Storage = storage.Config{Driver: "redis"}
	log, _ := logtest.NewNullLogger()

	err = run(context.Background(), cfg, log, ln)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open storage")

	// listener was released
	_, err = net.Dial("tcp", ln.Addr().String())
	assert.Error(t, err, fmt.Sprintf("listener %s still open", ln.Addr()))
}

func TestDriverName(t *testing.T) {
	assert.Equal(t, "memory", driverName(""))
	assert.Equal(t, "bolt", driverName("bolt"))
}
