// Package logging 构建运行日志：stderr 文本行加 <storage.base_dir>/logs 下的滚动文件
// Package logging builds the run logger: text lines on stderr plus a rotating file under <storage.base_dir>/logs.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"insight/internal/config"
)

const logFileName = "insight.log"

// New 返回写入 stderr 的日志器；日志目录可用时同时写入 lumberjack 滚动文件，closer 负责释放文件
// New returns a logger writing to stderr and, when the log directory is usable, to a lumberjack-rotated file; the closer releases the file
func New(cfg config.StorageConfig, stderr io.Writer) (*logrus.Logger, io.Closer, error) {
	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.LogLevel))
	if err != nil {
		return nil, nil, fmt.Errorf("logging: parse level %q: %w", cfg.LogLevel, err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
	if stderr == nil {
		stderr = os.Stderr
	}

	dir := filepath.Join(cfg.BaseDir, "logs")
	if cfg.BaseDir == "" {
		logger.SetOutput(stderr)
		return logger, nopCloser{}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.SetOutput(stderr)
		logger.WithError(err).Warn("log directory unavailable, logging to stderr only")
		return logger, nopCloser{}, nil
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(dir, logFileName),
		MaxSize:    cfg.LogMaxMB,
		MaxBackups: 5,
		MaxAge:     30,
		LocalTime:  true,
	}
	logger.SetOutput(io.MultiWriter(stderr, file))
	return logger, file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Discard 返回丢弃一切输出的日志器
// Discard returns a logger that drops everything
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
