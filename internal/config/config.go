package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

type ProviderConfig struct {
	BaseURL   string `json:"base_url" yaml:"base_url"`
	Model     string `json:"model" yaml:"model"`
	APIKey    string `json:"api_key" yaml:"api_key"`
	TimeoutMS int    `json:"timeout_ms" yaml:"timeout_ms"`
}

type NotionConfig struct {
	BaseURL   string `json:"base_url" yaml:"base_url"`
	Version   string `json:"version" yaml:"version"`
	Token     string `json:"token" yaml:"token"`
	PageID    string `json:"page_id" yaml:"page_id"`
	TimeoutMS int    `json:"timeout_ms" yaml:"timeout_ms"`

	JournalDatabaseID string `json:"journal_database_id" yaml:"journal_database_id"`
	CaptureDatabaseID string `json:"capture_database_id" yaml:"capture_database_id"`
	GoalsDatabaseID   string `json:"goals_database_id" yaml:"goals_database_id"`

	// CaptureStatusProperty/CaptureStatusValue 选出未处理的 capture
	// CaptureStatusProperty/CaptureStatusValue select unprocessed captures
	CaptureStatusProperty string `json:"capture_status_property" yaml:"capture_status_property"`
	CaptureStatusValue    string `json:"capture_status_value" yaml:"capture_status_value"`
	GoalsStatusProperty   string `json:"goals_status_property" yaml:"goals_status_property"`
	GoalsStatusValue      string `json:"goals_status_value" yaml:"goals_status_value"`
}

type CalendarConfig struct {
	BaseURL    string `json:"base_url" yaml:"base_url"`
	TokenURL   string `json:"token_url" yaml:"token_url"`
	CalendarID string `json:"calendar_id" yaml:"calendar_id"`
	// Credentials 为 service account JSON 原文；AccessToken 优先级更高
	// Credentials holds the raw service account JSON; AccessToken takes precedence
	Credentials     string `json:"credentials" yaml:"credentials"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
	AccessToken     string `json:"access_token" yaml:"access_token"`
	TimeoutMS       int    `json:"timeout_ms" yaml:"timeout_ms"`
}

type DeriveConfig struct {
	Timezone             string   `json:"timezone" yaml:"timezone"`
	WorkKeywords         []string `json:"work_keywords" yaml:"work_keywords"`
	WorkThresholdMinutes int      `json:"work_threshold_minutes" yaml:"work_threshold_minutes"`
	SpecialKeywords      []string `json:"special_keywords" yaml:"special_keywords"`
	DayStart             string   `json:"day_start" yaml:"day_start"`
	DayEnd               string   `json:"day_end" yaml:"day_end"`
	MinSlotMinutes       int      `json:"min_slot_minutes" yaml:"min_slot_minutes"`
}

type GenerationConfig struct {
	PartTimeoutMS      int `json:"part_timeout_ms" yaml:"part_timeout_ms"`
	JournalTokenBudget int `json:"journal_token_budget" yaml:"journal_token_budget"`
}

type BlockConfig struct {
	Marker   string `json:"marker" yaml:"marker"`
	Icon     string `json:"icon" yaml:"icon"`
	Color    string `json:"color" yaml:"color"`
	MaxChars int    `json:"max_chars" yaml:"max_chars"`
}

type RetryConfig struct {
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
	BaseDelayMS int `json:"base_delay_ms" yaml:"base_delay_ms"`
	MaxDelayMS  int `json:"max_delay_ms" yaml:"max_delay_ms"`
}

type StorageConfig struct {
	BaseDir  string `json:"base_dir" yaml:"base_dir"`
	LogLevel string `json:"log_level" yaml:"log_level"`
	LogMaxMB int    `json:"log_max_mb" yaml:"log_max_mb"`
	RunLog   bool   `json:"run_log" yaml:"run_log"`
}

type Config struct {
	Provider   ProviderConfig   `json:"provider" yaml:"provider"`
	Notion     NotionConfig     `json:"notion" yaml:"notion"`
	Calendar   CalendarConfig   `json:"calendar" yaml:"calendar"`
	Derive     DeriveConfig     `json:"derive" yaml:"derive"`
	Generation GenerationConfig `json:"generation" yaml:"generation"`
	Block      BlockConfig      `json:"block" yaml:"block"`
	Retry      RetryConfig      `json:"retry" yaml:"retry"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
}

type fileStorageConfig struct {
	BaseDir  string `json:"base_dir" yaml:"base_dir"`
	LogLevel string `json:"log_level" yaml:"log_level"`
	LogMaxMB int    `json:"log_max_mb" yaml:"log_max_mb"`
	RunLog   *bool  `json:"run_log" yaml:"run_log"`
}

type fileConfig struct {
	Provider   *ProviderConfig    `json:"provider" yaml:"provider"`
	Notion     *NotionConfig      `json:"notion" yaml:"notion"`
	Calendar   *CalendarConfig    `json:"calendar" yaml:"calendar"`
	Derive     *DeriveConfig      `json:"derive" yaml:"derive"`
	Generation *GenerationConfig  `json:"generation" yaml:"generation"`
	Block      *BlockConfig       `json:"block" yaml:"block"`
	Retry      *RetryConfig       `json:"retry" yaml:"retry"`
	Storage    *fileStorageConfig `json:"storage" yaml:"storage"`
}

// envConfig 环境变量覆盖项，变量名沿用原有部署脚本
// envConfig lists environment overrides; names match the existing deployment
type envConfig struct {
	OpenAIAPIKey      string   `env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string   `env:"OPENAI_BASE_URL"`
	Model             string   `env:"INSIGHT_MODEL"`
	NotionToken       string   `env:"NOTION_API_KEY"`
	NotionPageID      string   `env:"NOTION_PAGE_ID"`
	JournalDatabaseID string   `env:"JOURNAL_DATABASE_ID"`
	CaptureDatabaseID string   `env:"CAPTURE_DATABASE_ID"`
	GoalsDatabaseID   string   `env:"GOALS_DATABASE_ID"`
	GoogleCredentials string   `env:"GOOGLE_CREDENTIALS"`
	GoogleAccessToken string   `env:"GOOGLE_ACCESS_TOKEN"`
	CalendarID        string   `env:"GOOGLE_CALENDAR_ID"`
	Timezone          string   `env:"INSIGHT_TIMEZONE"`
	WorkKeywords      []string `env:"INSIGHT_WORK_KEYWORDS" envSeparator:","`
	WorkThreshold     string   `env:"INSIGHT_WORK_THRESHOLD"`
	MaxAttempts       int      `env:"INSIGHT_MAX_ATTEMPTS"`
	LogLevel          string   `env:"INSIGHT_LOG_LEVEL"`
	BaseDir           string   `env:"INSIGHT_HOME"`
}

func Default() Config {
	return Config{
		Provider: ProviderConfig{
			BaseURL:   "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			TimeoutMS: 60000,
		},
		Notion: NotionConfig{
			BaseURL:               "https://api.notion.com/v1",
			Version:               "2022-06-28",
			TimeoutMS:             15000,
			CaptureStatusProperty: "Processing_Status",
			CaptureStatusValue:    "📥 Captured",
			GoalsStatusProperty:   "Status",
			GoalsStatusValue:      "🔄 In Progress",
		},
		Calendar: CalendarConfig{
			BaseURL:   "https://www.googleapis.com/calendar/v3",
			TokenURL:  "https://oauth2.googleapis.com/token",
			TimeoutMS: 15000,
		},
		Derive: DeriveConfig{
			Timezone:             "Asia/Kolkata",
			WorkKeywords:         []string{"work", "💼"},
			WorkThresholdMinutes: 120,
			SpecialKeywords:      []string{"birthday", "anniversary"},
			DayStart:             "09:00",
			DayEnd:               "21:00",
			MinSlotMinutes:       30,
		},
		Generation: GenerationConfig{
			PartTimeoutMS:      30000,
			JournalTokenBudget: 600,
		},
		Block: BlockConfig{
			Marker:   "Morning Insight",
			Icon:     "✨",
			Color:    "orange_background",
			MaxChars: DefaultBlockMaxChars,
		},
		Retry: RetryConfig{
			MaxAttempts: DefaultRetryMaxAttempts,
			BaseDelayMS: 1000,
			MaxDelayMS:  16000,
		},
		Storage: StorageConfig{
			BaseDir:  "~/.insight",
			LogLevel: "info",
			LogMaxMB: 20,
			RunLog:   true,
		},
	}
}

// Load 按优先级加载配置：默认值 < 全局文件 < 项目文件 < .env < 环境变量
// Load resolves config with precedence: defaults < global file < project file < .env < environment
func Load(path string) (Config, error) {
	cfg := Default()

	for _, globalPath := range globalConfigPaths() {
		if err := mergeFromFile(&cfg, globalPath); err != nil {
			return Config{}, err
		}
	}

	resolvedPath := strings.TrimSpace(path)
	if envPath := strings.TrimSpace(os.Getenv("INSIGHT_CONFIG_PATH")); envPath != "" {
		resolvedPath = envPath
	}
	if resolvedPath == "" {
		resolvedPath = findProjectConfigPath()
	}
	if err := mergeFromFile(&cfg, resolvedPath); err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}
	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return applyEnv(cfg)
}

func globalConfigPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	dir := filepath.Join(home, ".insight")
	return []string{
		filepath.Join(dir, "config.json"),
		filepath.Join(dir, "config.jsonc"),
	}
}

func findProjectConfigPath() string {
	candidates := []string{
		"insight.config.json",
		"insight.config.jsonc",
		"insight.config.yaml",
		".insight/config.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// loadDotEnv 读取工作目录下的 .env；已存在的环境变量不会被覆盖
// loadDotEnv reads ./.env (or INSIGHT_ENV_FILE) without overriding existing variables
func loadDotEnv() error {
	path := strings.TrimSpace(os.Getenv("INSIGHT_ENV_FILE"))
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file %q: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

func mergeFromFile(cfg *Config, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}

	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %q: %w", resolved, err)
	}

	var fileCfg fileConfig
	switch strings.ToLower(filepath.Ext(resolved)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return fmt.Errorf("parse config %q: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(stripJSONComments(data), &fileCfg); err != nil {
			return fmt.Errorf("parse config %q: %w", resolved, err)
		}
	}
	applyFileConfig(cfg, fileCfg)
	return nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.Provider != nil {
		cfg.Provider = mergeProvider(cfg.Provider, *fc.Provider)
	}
	if fc.Notion != nil {
		cfg.Notion = mergeNotion(cfg.Notion, *fc.Notion)
	}
	if fc.Calendar != nil {
		cfg.Calendar = mergeCalendar(cfg.Calendar, *fc.Calendar)
	}
	if fc.Derive != nil {
		cfg.Derive = mergeDerive(cfg.Derive, *fc.Derive)
	}
	if fc.Generation != nil {
		if fc.Generation.PartTimeoutMS > 0 {
			cfg.Generation.PartTimeoutMS = fc.Generation.PartTimeoutMS
		}
		if fc.Generation.JournalTokenBudget > 0 {
			cfg.Generation.JournalTokenBudget = fc.Generation.JournalTokenBudget
		}
	}
	if fc.Block != nil {
		cfg.Block = mergeBlock(cfg.Block, *fc.Block)
	}
	if fc.Retry != nil {
		if fc.Retry.MaxAttempts > 0 {
			cfg.Retry.MaxAttempts = fc.Retry.MaxAttempts
		}
		if fc.Retry.BaseDelayMS > 0 {
			cfg.Retry.BaseDelayMS = fc.Retry.BaseDelayMS
		}
		if fc.Retry.MaxDelayMS > 0 {
			cfg.Retry.MaxDelayMS = fc.Retry.MaxDelayMS
		}
	}
	if fc.Storage != nil {
		if strings.TrimSpace(fc.Storage.BaseDir) != "" {
			cfg.Storage.BaseDir = fc.Storage.BaseDir
		}
		if strings.TrimSpace(fc.Storage.LogLevel) != "" {
			cfg.Storage.LogLevel = fc.Storage.LogLevel
		}
		if fc.Storage.LogMaxMB > 0 {
			cfg.Storage.LogMaxMB = fc.Storage.LogMaxMB
		}
		if fc.Storage.RunLog != nil {
			cfg.Storage.RunLog = *fc.Storage.RunLog
		}
	}
}

func mergeProvider(base ProviderConfig, override ProviderConfig) ProviderConfig {
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = override.BaseURL
	}
	if strings.TrimSpace(override.Model) != "" {
		base.Model = override.Model
	}
	if strings.TrimSpace(override.APIKey) != "" {
		base.APIKey = override.APIKey
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	return base
}

func mergeNotion(base NotionConfig, override NotionConfig) NotionConfig {
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = override.BaseURL
	}
	if strings.TrimSpace(override.Version) != "" {
		base.Version = override.Version
	}
	if strings.TrimSpace(override.Token) != "" {
		base.Token = override.Token
	}
	if strings.TrimSpace(override.PageID) != "" {
		base.PageID = override.PageID
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	if strings.TrimSpace(override.JournalDatabaseID) != "" {
		base.JournalDatabaseID = override.JournalDatabaseID
	}
	if strings.TrimSpace(override.CaptureDatabaseID) != "" {
		base.CaptureDatabaseID = override.CaptureDatabaseID
	}
	if strings.TrimSpace(override.GoalsDatabaseID) != "" {
		base.GoalsDatabaseID = override.GoalsDatabaseID
	}
	if strings.TrimSpace(override.CaptureStatusProperty) != "" {
		base.CaptureStatusProperty = override.CaptureStatusProperty
	}
	if strings.TrimSpace(override.CaptureStatusValue) != "" {
		base.CaptureStatusValue = override.CaptureStatusValue
	}
	if strings.TrimSpace(override.GoalsStatusProperty) != "" {
		base.GoalsStatusProperty = override.GoalsStatusProperty
	}
	if strings.TrimSpace(override.GoalsStatusValue) != "" {
		base.GoalsStatusValue = override.GoalsStatusValue
	}
	return base
}

func mergeCalendar(base CalendarConfig, override CalendarConfig) CalendarConfig {
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = override.BaseURL
	}
	if strings.TrimSpace(override.TokenURL) != "" {
		base.TokenURL = override.TokenURL
	}
	if strings.TrimSpace(override.CalendarID) != "" {
		base.CalendarID = override.CalendarID
	}
	if strings.TrimSpace(override.Credentials) != "" {
		base.Credentials = override.Credentials
	}
	if strings.TrimSpace(override.CredentialsFile) != "" {
		base.CredentialsFile = override.CredentialsFile
	}
	if strings.TrimSpace(override.AccessToken) != "" {
		base.AccessToken = override.AccessToken
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	return base
}

func mergeDerive(base DeriveConfig, override DeriveConfig) DeriveConfig {
	if strings.TrimSpace(override.Timezone) != "" {
		base.Timezone = override.Timezone
	}
	if len(override.WorkKeywords) > 0 {
		base.WorkKeywords = append([]string(nil), override.WorkKeywords...)
	}
	if override.WorkThresholdMinutes > 0 {
		base.WorkThresholdMinutes = override.WorkThresholdMinutes
	}
	if len(override.SpecialKeywords) > 0 {
		base.SpecialKeywords = append([]string(nil), override.SpecialKeywords...)
	}
	if strings.TrimSpace(override.DayStart) != "" {
		base.DayStart = override.DayStart
	}
	if strings.TrimSpace(override.DayEnd) != "" {
		base.DayEnd = override.DayEnd
	}
	if override.MinSlotMinutes > 0 {
		base.MinSlotMinutes = override.MinSlotMinutes
	}
	return base
}

func mergeBlock(base BlockConfig, override BlockConfig) BlockConfig {
	if strings.TrimSpace(override.Marker) != "" {
		base.Marker = override.Marker
	}
	if strings.TrimSpace(override.Icon) != "" {
		base.Icon = override.Icon
	}
	if strings.TrimSpace(override.Color) != "" {
		base.Color = override.Color
	}
	if override.MaxChars > 0 {
		base.MaxChars = override.MaxChars
	}
	return base
}

func normalize(cfg *Config) error {
	def := Default()
	cfg.Provider.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Provider.BaseURL), "/")
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = def.Provider.BaseURL
	}
	if strings.TrimSpace(cfg.Provider.Model) == "" {
		cfg.Provider.Model = def.Provider.Model
	}
	if cfg.Provider.TimeoutMS <= 0 {
		cfg.Provider.TimeoutMS = def.Provider.TimeoutMS
	}

	cfg.Notion.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Notion.BaseURL), "/")
	if cfg.Notion.BaseURL == "" {
		cfg.Notion.BaseURL = def.Notion.BaseURL
	}
	if strings.TrimSpace(cfg.Notion.Version) == "" {
		cfg.Notion.Version = def.Notion.Version
	}
	if cfg.Notion.TimeoutMS <= 0 {
		cfg.Notion.TimeoutMS = def.Notion.TimeoutMS
	}
	cfg.Notion.PageID = strings.TrimSpace(cfg.Notion.PageID)
	cfg.Notion.JournalDatabaseID = strings.TrimSpace(cfg.Notion.JournalDatabaseID)
	cfg.Notion.CaptureDatabaseID = strings.TrimSpace(cfg.Notion.CaptureDatabaseID)
	cfg.Notion.GoalsDatabaseID = strings.TrimSpace(cfg.Notion.GoalsDatabaseID)

	if cfg.Calendar.TimeoutMS <= 0 {
		cfg.Calendar.TimeoutMS = def.Calendar.TimeoutMS
	}
	cfg.Calendar.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Calendar.BaseURL), "/")
	if cfg.Calendar.BaseURL == "" {
		cfg.Calendar.BaseURL = def.Calendar.BaseURL
	}
	if strings.TrimSpace(cfg.Calendar.TokenURL) == "" {
		cfg.Calendar.TokenURL = def.Calendar.TokenURL
	}

	if strings.TrimSpace(cfg.Derive.Timezone) == "" {
		cfg.Derive.Timezone = def.Derive.Timezone
	}
	cfg.Derive.WorkKeywords = normalizeKeywords(cfg.Derive.WorkKeywords)
	if len(cfg.Derive.WorkKeywords) == 0 {
		cfg.Derive.WorkKeywords = def.Derive.WorkKeywords
	}
	cfg.Derive.SpecialKeywords = normalizeKeywords(cfg.Derive.SpecialKeywords)
	if len(cfg.Derive.SpecialKeywords) == 0 {
		cfg.Derive.SpecialKeywords = def.Derive.SpecialKeywords
	}
	if cfg.Derive.WorkThresholdMinutes <= 0 {
		cfg.Derive.WorkThresholdMinutes = def.Derive.WorkThresholdMinutes
	}
	if cfg.Derive.MinSlotMinutes <= 0 {
		cfg.Derive.MinSlotMinutes = def.Derive.MinSlotMinutes
	}
	if strings.TrimSpace(cfg.Derive.DayStart) == "" {
		cfg.Derive.DayStart = def.Derive.DayStart
	}
	if strings.TrimSpace(cfg.Derive.DayEnd) == "" {
		cfg.Derive.DayEnd = def.Derive.DayEnd
	}

	if cfg.Generation.PartTimeoutMS <= 0 {
		cfg.Generation.PartTimeoutMS = def.Generation.PartTimeoutMS
	}
	if cfg.Generation.JournalTokenBudget <= 0 {
		cfg.Generation.JournalTokenBudget = def.Generation.JournalTokenBudget
	}

	if strings.TrimSpace(cfg.Block.Marker) == "" {
		cfg.Block.Marker = def.Block.Marker
	}
	if strings.TrimSpace(cfg.Block.Icon) == "" {
		cfg.Block.Icon = def.Block.Icon
	}
	if strings.TrimSpace(cfg.Block.Color) == "" {
		cfg.Block.Color = def.Block.Color
	}
	if cfg.Block.MaxChars <= 0 || cfg.Block.MaxChars > DefaultBlockMaxChars {
		cfg.Block.MaxChars = DefaultBlockMaxChars
	}

	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if cfg.Retry.BaseDelayMS <= 0 {
		cfg.Retry.BaseDelayMS = def.Retry.BaseDelayMS
	}
	if cfg.Retry.MaxDelayMS < cfg.Retry.BaseDelayMS {
		cfg.Retry.MaxDelayMS = cfg.Retry.BaseDelayMS
	}

	storageDir, err := expandPath(cfg.Storage.BaseDir)
	if err != nil {
		return err
	}
	if storageDir == "" {
		storageDir, err = expandPath(def.Storage.BaseDir)
		if err != nil {
			return err
		}
	}
	cfg.Storage.BaseDir = storageDir
	cfg.Storage.LogLevel = strings.ToLower(strings.TrimSpace(cfg.Storage.LogLevel))
	if cfg.Storage.LogLevel == "" {
		cfg.Storage.LogLevel = def.Storage.LogLevel
	}
	if cfg.Storage.LogMaxMB <= 0 {
		cfg.Storage.LogMaxMB = def.Storage.LogMaxMB
	}
	return nil
}

func applyEnv(cfg Config) (Config, error) {
	var e envConfig
	if err := env.Parse(&e); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if v := strings.TrimSpace(e.OpenAIAPIKey); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := strings.TrimSpace(e.OpenAIBaseURL); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := strings.TrimSpace(e.Model); v != "" {
		cfg.Provider.Model = v
	}
	if v := strings.TrimSpace(e.NotionToken); v != "" {
		cfg.Notion.Token = v
	}
	if v := strings.TrimSpace(e.NotionPageID); v != "" {
		cfg.Notion.PageID = v
	}
	if v := strings.TrimSpace(e.JournalDatabaseID); v != "" {
		cfg.Notion.JournalDatabaseID = v
	}
	if v := strings.TrimSpace(e.CaptureDatabaseID); v != "" {
		cfg.Notion.CaptureDatabaseID = v
	}
	if v := strings.TrimSpace(e.GoalsDatabaseID); v != "" {
		cfg.Notion.GoalsDatabaseID = v
	}
	if v := strings.TrimSpace(e.GoogleCredentials); v != "" {
		cfg.Calendar.Credentials = v
	}
	if v := strings.TrimSpace(e.GoogleAccessToken); v != "" {
		cfg.Calendar.AccessToken = v
	}
	if v := strings.TrimSpace(e.CalendarID); v != "" {
		cfg.Calendar.CalendarID = v
	}
	if v := strings.TrimSpace(e.Timezone); v != "" {
		cfg.Derive.Timezone = v
	}
	if len(e.WorkKeywords) > 0 {
		cfg.Derive.WorkKeywords = e.WorkKeywords
	}
	if v := strings.TrimSpace(e.WorkThreshold); v != "" {
		d, err := cast.ToDurationE(v)
		if err != nil || d < time.Minute {
			return Config{}, fmt.Errorf("invalid INSIGHT_WORK_THRESHOLD: %q", v)
		}
		cfg.Derive.WorkThresholdMinutes = int(d / time.Minute)
	}
	if e.MaxAttempts < 0 {
		return Config{}, fmt.Errorf("invalid INSIGHT_MAX_ATTEMPTS: %d", e.MaxAttempts)
	}
	if e.MaxAttempts > 0 {
		cfg.Retry.MaxAttempts = e.MaxAttempts
	}
	if v := strings.TrimSpace(e.LogLevel); v != "" {
		cfg.Storage.LogLevel = v
	}
	if v := strings.TrimSpace(e.BaseDir); v != "" {
		cfg.Storage.BaseDir = v
	}

	return cfg, normalize(&cfg)
}

func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := map[string]struct{}{}
	for _, k := range keywords {
		trimmed := strings.ToLower(strings.TrimSpace(k))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

// Location 返回配置的时区
// Location returns the configured time zone
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(strings.TrimSpace(c.Derive.Timezone))
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Derive.Timezone, err)
	}
	return loc, nil
}

// WorkingHours 将 day_start/day_end 解析为自午夜起的偏移量
// WorkingHours parses day_start/day_end into offsets from local midnight
func (c Config) WorkingHours() (time.Duration, time.Duration, error) {
	start, err := parseClock(c.Derive.DayStart)
	if err != nil {
		return 0, 0, fmt.Errorf("day_start: %w", err)
	}
	end, err := parseClock(c.Derive.DayEnd)
	if err != nil {
		return 0, 0, fmt.Errorf("day_end: %w", err)
	}
	if end <= start {
		return 0, 0, fmt.Errorf("day_end %q must be after day_start %q", c.Derive.DayEnd, c.Derive.DayStart)
	}
	return start, end, nil
}

func (c Config) WorkThreshold() time.Duration {
	return time.Duration(c.Derive.WorkThresholdMinutes) * time.Minute
}

func (c Config) MinSlot() time.Duration {
	return time.Duration(c.Derive.MinSlotMinutes) * time.Minute
}

func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q (want HH:MM)", v)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return filepath.Abs(path)
}

func stripJSONComments(data []byte) []byte {
	const (
		stateNormal = iota
		stateString
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	escaped := false
	out := bytes.Buffer{}

	for i := 0; i < len(data); i++ {
		c := data[i]
		next := byte(0)
		if i+1 < len(data) {
			next = data[i+1]
		}

		switch state {
		case stateNormal:
			if c == '"' {
				state = stateString
				out.WriteByte(c)
				continue
			}
			if c == '/' && next == '/' {
				state = stateLineComment
				i++
				continue
			}
			if c == '/' && next == '*' {
				state = stateBlockComment
				i++
				continue
			}
			out.WriteByte(c)
		case stateString:
			out.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				out.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}

	return out.Bytes()
}
