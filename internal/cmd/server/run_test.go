package serverrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	cfgpkg "github.com/storyhaven/ripple/internal/config"
	pebblestore "github.com/storyhaven/ripple/internal/storage/pebble"
)

func TestGetenvDefault(t *testing.T) {
	_ = os.Setenv("RIPPLE_TEST_VAR", "env_value")
	t.Cleanup(func() { _ = os.Unsetenv("RIPPLE_TEST_VAR") })
	if got := getenvDefault("RIPPLE_TEST_VAR", "default"); got != "env_value" {
		t.Fatalf("set: %s", got)
	}
	if got := getenvDefault("RIPPLE_TEST_VAR_NOT_SET", "default"); got != "default" {
		t.Fatalf("unset: %s", got)
	}
}

func TestDataDirFallback(t *testing.T) {
	opts := Options{DataDir: ""}
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	if opts.DataDir == "" {
		t.Fatal("DataDir should be set after fallback")
	}
	if got := filepath.Join(opts.DataDir, "store"); filepath.Base(got) != "store" {
		t.Fatalf("store dir: %s", got)
	}
}

// TestRunIntegration starts the server on an ephemeral port and cancels it.
func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err := Run(ctx, Options{
		DataDir:  t.TempDir(),
		HTTPAddr: "127.0.0.1:0",
		Fsync:    pebblestore.FsyncModeNever,
		Config:   cfgpkg.Default(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}
