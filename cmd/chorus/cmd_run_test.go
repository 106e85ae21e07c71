package main //nolint:testpackage // white-box: drives runMaster directly

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chorus/pkg/config"
	"chorus/pkg/protocol"
)

func testPaths(t *testing.T) *Paths {
	t.Helper()
	home := t.TempDir()
	return &Paths{
		ChorusHome:   home,
		ConfigPath:   filepath.Join(home, "config.toml"),
		PIDPath:      filepath.Join(home, "chorus.pid"),
		EventLogPath: filepath.Join(home, "events.db"),
	}
}

func TestRunMasterLocalLifecycle(t *testing.T) {
	t.Parallel()

	paths := testPaths(t)
	cfg := config.File{
		MasterName: "PokeBot",
		Local:      true,
		Names:      []string{"Gerhild"},
		IDs:        []protocol.Identity{{Key: "k1"}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var buf bytes.Buffer
	errCh := make(chan error, 1)
	go func() { errCh <- runMaster(ctx, &buf, paths, cfg) }()

	// The PID file appearing means the farm is up.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(paths.PIDPath); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("PID file never appeared")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("runMaster returned %v on shutdown, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runMaster did not return after cancellation")
	}

	if !strings.Contains(buf.String(), "farm shut down") {
		t.Fatalf("output = %q", buf.String())
	}
	if _, err := os.Stat(paths.PIDPath); !os.IsNotExist(err) {
		t.Fatal("PID file not cleaned up on shutdown")
	}
}

func TestSelectDialer(t *testing.T) {
	t.Parallel()

	if _, err := selectDialer(config.File{Local: true}); err != nil {
		t.Fatalf("local dialer: %v", err)
	}
	if _, err := selectDialer(config.File{Address: "voice.example.com"}); err == nil {
		t.Fatal("network address accepted without a driver")
	}
}
