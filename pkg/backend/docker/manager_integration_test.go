package docker_test

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nstogner/arena/pkg/backend/docker"
)

func TestIntegration_Endpoint(t *testing.T) {
	if os.Getenv("DOCKER_HOST") == "" {
		t.Skip("Skipping integration test: DOCKER_HOST not set")
	}

	mgr, err := docker.New()
	if err != nil {
		t.Skipf("Skipping test: Docker not available or failed to init: %v", err)
	}
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	name := uuid.New().String()[:8]
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mgr.Stop(cleanupCtx, name)
	}()

	endpoint, err := mgr.Endpoint(ctx, name)
	if err != nil {
		t.Fatalf("Endpoint failed: %v", err)
	}
	t.Logf("Endpoint: %s", endpoint)

	resp, err := http.Get(endpoint + "/models")
	if err != nil {
		t.Fatalf("listing models: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	// Second call finds the running container.
	again, err := mgr.Endpoint(ctx, name)
	if err != nil {
		t.Fatalf("second Endpoint failed: %v", err)
	}
	if again != endpoint {
		t.Errorf("endpoint changed from %s to %s", endpoint, again)
	}
}
