package main //nolint:testpackage // white-box: builds subcommands directly

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"chorus/pkg/config"
)

func TestGenIDWritesRoster(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "roster.yaml")
	cmd := newGenIDCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--count", "3", "--output", out})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("genid: %v", err)
	}
	if !strings.Contains(buf.String(), "wrote 3 identities") {
		t.Fatalf("output = %q", buf.String())
	}

	ids, err := config.LoadRoster(out)
	if err != nil {
		t.Fatalf("load roster: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("roster holds %d identities, want 3", len(ids))
	}
}

func TestGenIDRejectsZeroCount(t *testing.T) {
	t.Parallel()

	cmd := newGenIDCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--count", "0"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("count 0 accepted")
	}
}
