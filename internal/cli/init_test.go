package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSetupLoggerSetsDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	logger := SetupLogger("debug")
	if logger.Component() != "app" {
		t.Errorf("component = %s, want app", logger.Component())
	}
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected default logger to accept debug records")
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SPENDWISE_TEST_VALUE=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SPENDWISE_TEST_VALUE", "")
	os.Unsetenv("SPENDWISE_TEST_VALUE")

	LoadEnvFile()

	if got := os.Getenv("SPENDWISE_TEST_VALUE"); got != "from-dotenv" {
		t.Fatalf("expected value from .env, got %q", got)
	}
}

func TestRunCleanup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	called := false
	runCleanup(logger, time.Second, func() { called = true })
	if !called || !strings.Contains(buf.String(), "Shutdown complete") {
		t.Fatalf("cleanup not run or not logged: %s", buf.String())
	}

	buf.Reset()
	block := make(chan struct{})
	defer close(block)
	runCleanup(logger, 10*time.Millisecond, func() { <-block })
	if !strings.Contains(buf.String(), "Shutdown timeout reached") {
		t.Fatalf("expected timeout warning, got %s", buf.String())
	}
}
