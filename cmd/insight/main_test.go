package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"insight/internal/config"
)

// isolate 隔离 HOME、工作目录与凭据环境变量
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{"OPENAI_API_KEY", "NOTION_API_KEY", "NOTION_PAGE_ID", "INSIGHT_CONFIG_PATH", "INSIGHT_HOME"} {
		t.Setenv(key, "")
	}
	work := t.TempDir()
	oldwd, _ := os.Getwd()
	if err := os.Chdir(work); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldwd) })
	return work
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestParseRunDate(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC)

	got, err := parseRunDate("", loc, now)
	if err != nil {
		t.Fatal(err)
	}
	if got.Format("2006-01-02") != "2025-03-10" {
		t.Fatalf("now in Kolkata should already be March 10, got %s", got)
	}

	got, err = parseRunDate("2025-12-25", loc, now)
	if err != nil {
		t.Fatal(err)
	}
	if got.Location() != loc || got.Day() != 25 || got.Hour() != 0 {
		t.Fatalf("unexpected date %s", got)
	}

	if _, err := parseRunDate("25/12/2025", loc, now); err == nil {
		t.Fatal("expected invalid date error")
	}
}

func TestRunRejectsMissingCredentials(t *testing.T) {
	isolate(t)
	t.Setenv("INSIGHT_HOME", filepath.Join(t.TempDir(), "home"))

	_, err := execute(t, "run", "--dry-run")
	var ve *config.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "OPENAI_API_KEY") || !strings.Contains(err.Error(), "NOTION_PAGE_ID") {
		t.Fatalf("error should name every missing field: %v", err)
	}
}

func TestInitWritesScaffold(t *testing.T) {
	work := isolate(t)
	out, err := execute(t, "init")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, filepath.Join(".insight", "config.json")) {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := os.Stat(filepath.Join(work, ".insight", "config.json")); err != nil {
		t.Fatal(err)
	}
}

func TestHistoryEmpty(t *testing.T) {
	isolate(t)
	t.Setenv("INSIGHT_HOME", filepath.Join(t.TempDir(), "home"))
	out, err := execute(t, "history", "--limit", "5")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "no runs recorded yet") {
		t.Fatalf("unexpected output %q", out)
	}
}
