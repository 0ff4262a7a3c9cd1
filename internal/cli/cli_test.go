package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func newTestCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	AddCommonFlags(cmd)
	cmd.Flags().String("listen", ":9000", "")
	return cmd
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "ebook.yaml")
	if err := os.WriteFile(file, []byte("listen: \":7000\"\nlog-level: debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := newTestCommand()
	if err := cmd.ParseFlags([]string{"--config", file}); err != nil {
		t.Fatal(err)
	}
	v, err := Load(cmd)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := v.GetString("listen"); got != ":7000" {
		t.Errorf("listen from file = %q, want :7000", got)
	}

	t.Setenv("EBOOK_LISTEN", ":8000")
	if got := v.GetString("listen"); got != ":8000" {
		t.Errorf("listen from env = %q, want :8000", got)
	}

	cmd = newTestCommand()
	if err := cmd.ParseFlags([]string{"--config", file, "--listen", ":9999"}); err != nil {
		t.Fatal(err)
	}
	v, err = Load(cmd)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := v.GetString("listen"); got != ":9999" {
		t.Errorf("listen from flag = %q, want :9999", got)
	}
}

func TestLoad_MissingConfig(t *testing.T) {
	cmd := newTestCommand()
	if err := cmd.ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(cmd); err == nil {
		t.Error("Load() with missing config file should fail")
	}
}

func TestNewLogger(t *testing.T) {
	cmd := newTestCommand()
	if err := cmd.ParseFlags([]string{"--log-level", "warn", "--log-json"}); err != nil {
		t.Fatal(err)
	}
	v, err := Load(cmd)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var buf bytes.Buffer
	log, err := NewLogger(v, &buf)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	log.Info("hidden")
	log.Warn("shown", "user", "alice")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("logged %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if rec["msg"] != "shown" || rec["user"] != "alice" {
		t.Errorf("record = %v", rec)
	}
	if !log.Enabled(context.Background(), 8) {
		t.Error("error level should be enabled")
	}
}

func TestNewLogger_BadLevel(t *testing.T) {
	cmd := newTestCommand()
	if err := cmd.ParseFlags([]string{"--log-level", "loud"}); err != nil {
		t.Fatal(err)
	}
	v, err := Load(cmd)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := NewLogger(v, &bytes.Buffer{}); err == nil {
		t.Error("NewLogger() with bad level should fail")
	}
}
