package notion

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// APIError 是 Notion 返回的非 2xx 响应
// APIError is a non-2xx Notion response
type APIError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	return fmt.Sprintf("notion %s failed: status=%d %s", e.Op, e.StatusCode, msg)
}

// Retryable reports whether the request may succeed if repeated (429 or 5xx).
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// RetryDelay returns the server's Retry-After hint, zero if absent.
func (e *APIError) RetryDelay() time.Duration {
	return e.RetryAfter
}

// parseRetryAfter 支持秒数与 HTTP 日期两种格式
// parseRetryAfter accepts delta-seconds and HTTP-date forms
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
