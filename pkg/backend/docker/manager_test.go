package docker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPort(t *testing.T) {
	c := types.ContainerJSON{NetworkSettings: &types.NetworkSettings{
		NetworkSettingsBase: types.NetworkSettingsBase{
			Ports: nat.PortMap{
				nat.Port(ServerPort + "/tcp"): []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: "49153"}},
			},
		},
	}}
	port, err := getPort(c)
	require.NoError(t, err)
	assert.Equal(t, "49153", port)

	_, err = getPort(types.ContainerJSON{})
	assert.Error(t, err)
}

func testManager(health time.Duration) *Manager {
	return &Manager{image: DefaultImage, http: http.DefaultClient, health: health}
}

func serverPort(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return u.Port()
}

func TestWaitForHealth(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	require.NoError(t, testManager(10*time.Second).waitForHealth(context.Background(), serverPort(t, srv)))
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestWaitForHealthTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := testManager(time.Second).waitForHealth(context.Background(), serverPort(t, srv))
	assert.ErrorContains(t, err, "timeout")
}

func TestPullRequest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/pull" {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := testManager(10 * time.Second)
	port := serverPort(t, srv)
	require.NoError(t, m.pull(context.Background(), "test", port, "llama3.2"))
	assert.Equal(t, "llama3.2", got["model"])
	assert.Equal(t, false, got["stream"])
}
