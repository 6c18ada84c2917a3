package calendar

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Event 是一个日历事件。全天事件的 Start/End 为本地午夜
// Event is one calendar event. All-day events start and end at local midnight
type Event struct {
	ID     string
	Title  string
	Start  time.Time
	End    time.Time
	AllDay bool
}

func (e Event) Duration() time.Duration {
	if e.End.Before(e.Start) {
		return 0
	}
	return e.End.Sub(e.Start)
}

// APIError 是日历 API 或令牌端点的非 2xx 响应
// APIError is a non-2xx response from the events API or the token endpoint
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("calendar %s failed: status=%d %s", e.Op, e.StatusCode, strings.TrimSpace(e.Message))
}

func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
