package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// InitProjectConfigScaffold 在当前工作目录下初始化项目级配置模板（./.insight/config.json）。
// 凭据不会写入模板，应通过环境变量或 .env 提供。
// InitProjectConfigScaffold writes a project-level config template (./.insight/config.json).
// Credentials are never written; supply them through the environment or .env.
func InitProjectConfigScaffold() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	dir := filepath.Join(cwd, ".insight")
	path := filepath.Join(dir, "config.json")

	// 若项目已经有 ./.insight/config.json，则尊重用户现有配置。
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return "", fmt.Errorf("project config path is a directory: %s", path)
		}
		return path, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat project config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir .insight: %w", err)
	}

	cfg := Default()
	cfg.Provider.APIKey = ""
	cfg.Notion.Token = ""
	cfg.Calendar.Credentials = ""
	cfg.Calendar.AccessToken = ""
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write project config: %w", err)
	}

	return path, nil
}
