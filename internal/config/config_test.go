package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testPageID = "0123456789abcdef0123456789abcdef"

// isolate 隔离 HOME 与工作目录，避免读取开发机上的真实配置
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	work := t.TempDir()
	oldwd, _ := os.Getwd()
	if err := os.Chdir(work); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldwd) })
	return home
}

func TestLoadJSONCAndPrecedence(t *testing.T) {
	home := isolate(t)

	globalDir := filepath.Join(home, ".insight")
	if err := os.MkdirAll(globalDir, 0o755); err != nil {
		t.Fatal(err)
	}
	globalCfg := `{
  // global
  "provider": {"model": "global-model"},
  "block": {"color": "blue_background"}
}`
	if err := os.WriteFile(filepath.Join(globalDir, "config.jsonc"), []byte(globalCfg), 0o644); err != nil {
		t.Fatal(err)
	}
	projectCfg := `{
  "provider": {"model": "project-model"},
  /* project overrides */
  "derive": {"work_threshold_minutes": 90, "work_keywords": ["Office", "office", " "]}
}`
	if err := os.WriteFile("insight.config.jsonc", []byte(projectCfg), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.Model != "project-model" {
		t.Fatalf("model=%q", cfg.Provider.Model)
	}
	if cfg.Block.Color != "blue_background" {
		t.Fatalf("color=%q", cfg.Block.Color)
	}
	if cfg.WorkThreshold() != 90*time.Minute {
		t.Fatalf("threshold=%v", cfg.WorkThreshold())
	}
	if len(cfg.Derive.WorkKeywords) != 1 || cfg.Derive.WorkKeywords[0] != "office" {
		t.Fatalf("work keywords=%#v", cfg.Derive.WorkKeywords)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	isolate(t)
	yamlCfg := "notion:\n  page_id: " + testPageID + "\nretry:\n  max_attempts: 5\nstorage:\n  run_log: false\n"
	if err := os.WriteFile("custom.yaml", []byte(yamlCfg), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load("custom.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Notion.PageID != testPageID {
		t.Fatalf("page id=%q", cfg.Notion.PageID)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Fatalf("max attempts=%d", cfg.Retry.MaxAttempts)
	}
	if cfg.Storage.RunLog {
		t.Fatalf("run_log expected false")
	}
}

func TestEnvOverride(t *testing.T) {
	isolate(t)
	t.Setenv("INSIGHT_MODEL", "env-model")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("NOTION_PAGE_ID", testPageID)
	t.Setenv("INSIGHT_WORK_THRESHOLD", "3h")
	t.Setenv("INSIGHT_WORK_KEYWORDS", "shift,clinic")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.Model != "env-model" {
		t.Fatalf("model=%q", cfg.Provider.Model)
	}
	if cfg.Provider.APIKey != "sk-test" {
		t.Fatalf("api key=%q", cfg.Provider.APIKey)
	}
	if cfg.Derive.WorkThresholdMinutes != 180 {
		t.Fatalf("threshold minutes=%d", cfg.Derive.WorkThresholdMinutes)
	}
	if strings.Join(cfg.Derive.WorkKeywords, ",") != "shift,clinic" {
		t.Fatalf("keywords=%#v", cfg.Derive.WorkKeywords)
	}
}

func TestEnvInvalidThreshold(t *testing.T) {
	isolate(t)
	t.Setenv("INSIGHT_WORK_THRESHOLD", "soon")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for invalid threshold")
	}
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	isolate(t)
	if err := os.WriteFile(".env", []byte("NOTION_API_KEY=from-file\nINSIGHT_MODEL=file-model\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INSIGHT_MODEL", "env-model")
	t.Setenv("NOTION_API_KEY", "")
	os.Unsetenv("NOTION_API_KEY")
	t.Cleanup(func() { os.Unsetenv("NOTION_API_KEY") })

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Notion.Token != "from-file" {
		t.Fatalf("token=%q", cfg.Notion.Token)
	}
	if cfg.Provider.Model != "env-model" {
		t.Fatalf("model=%q", cfg.Provider.Model)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Problems) != 3 {
		t.Fatalf("problems=%#v", verr.Problems)
	}

	cfg.Provider.APIKey = "sk"
	cfg.Notion.Token = "secret"
	cfg.Notion.PageID = "01234567-89ab-cdef-0123-456789abcdef"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}

	cfg.Notion.GoalsDatabaseID = "not-an-id"
	cfg.Block.Color = "neon"
	cfg.Derive.DayEnd = "08:00"
	err = cfg.Validate()
	if !errors.As(err, &verr) || len(verr.Problems) != 3 {
		t.Fatalf("expected 3 problems, got %v", err)
	}
}

func TestValidateBlock(t *testing.T) {
	valid := Default()
	valid.Provider.APIKey = "sk"
	valid.Notion.Token = "secret"
	valid.Notion.PageID = testPageID

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "smallest ceiling", mutate: func(c *Config) { c.Block.MaxChars = MinBlockMaxChars }},
		{name: "ceiling too small", mutate: func(c *Config) { c.Block.MaxChars = 40 }, wantErr: "max_chars 40"},
		{name: "ceiling too large", mutate: func(c *Config) { c.Block.MaxChars = 5000 }, wantErr: "max_chars 5000"},
		{name: "double space marker", mutate: func(c *Config) { c.Block.Marker = "Morning  Insight" }, wantErr: "block marker"},
		{name: "padded marker", mutate: func(c *Config) { c.Block.Marker = " Morning Insight" }, wantErr: "block marker"},
		{name: "multi-line marker", mutate: func(c *Config) { c.Block.Marker = "Morning\nInsight" }, wantErr: "block marker"},
		{name: "control char marker", mutate: func(c *Config) { c.Block.Marker = "Morning\x07Insight" }, wantErr: "block marker"},
		{name: "emoji marker", mutate: func(c *Config) { c.Block.Marker = "☀️ Good Morning" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || len(verr.Problems) != 1 || !strings.Contains(verr.Problems[0], tc.wantErr) {
				t.Fatalf("expected one problem containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestWorkingHours(t *testing.T) {
	cfg := Default()
	start, end, err := cfg.WorkingHours()
	if err != nil {
		t.Fatal(err)
	}
	if start != 9*time.Hour || end != 21*time.Hour {
		t.Fatalf("start=%v end=%v", start, end)
	}
	cfg.Derive.DayStart = "9am"
	if _, _, err := cfg.WorkingHours(); err == nil {
		t.Fatal("expected clock parse error")
	}
}

func TestInitProjectConfigScaffoldOmitsSecrets(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-secret")
	path, err := InitProjectConfigScaffold()
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "sk-secret") {
		t.Fatal("scaffold must not contain secrets")
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Block.Marker != "Morning Insight" {
		t.Fatalf("marker=%q", cfg.Block.Marker)
	}
}
