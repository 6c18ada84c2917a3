package upsert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// maxHintDelay 限制服务端 Retry-After 提示的最大等待
// maxHintDelay caps how long a server Retry-After hint may hold a run
const maxHintDelay = 2 * time.Minute

type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 4, BaseDelay: time.Second, MaxDelay: 16 * time.Second}
}

// Delay 返回第 attempt 次失败后的退避：base×2^(attempt-1)，不超过 MaxDelay
// Delay is the backoff after failed attempt n: base×2^(n-1), capped at MaxDelay
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// WriteError 表示写入阶段在重试后仍失败
// WriteError means a write stage still failed after retrying
type WriteError struct {
	Stage    string
	Attempts int
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retrier 对单个调用做有界重试，只重试暂时性错误
// Retrier retries a single call a bounded number of times, and only on transient errors
type Retrier struct {
	policy Policy
	sleep  SleepFunc
	logger logrus.FieldLogger
}

func NewRetrier(policy Policy, logger logrus.FieldLogger) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Retrier{policy: policy, sleep: sleepContext, logger: logger}
}

// WithSleep replaces the backoff sleeper; used by tests.
func (r *Retrier) WithSleep(fn SleepFunc) *Retrier {
	r.sleep = fn
	return r
}

// Do 执行 fn 直到成功、遇到不可重试错误或用尽次数；失败时返回 *WriteError
// Do runs fn until it succeeds, fails permanently or runs out of attempts; failures are returned as *WriteError
func (r *Retrier) Do(ctx context.Context, stage string, fn func(ctx context.Context) error) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, &WriteError{Stage: stage, Attempts: attempt - 1, Err: err}
		}
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.WithFields(logrus.Fields{"stage": stage, "attempt": attempt}).Info("write recovered")
			}
			return attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil || !Retryable(err) {
			return attempt, &WriteError{Stage: stage, Attempts: attempt, Err: err}
		}
		if attempt == r.policy.MaxAttempts {
			break
		}

		delay := r.policy.Delay(attempt)
		if hint := retryHint(err); hint > delay {
			delay = hint
			if delay > maxHintDelay {
				delay = maxHintDelay
			}
		}
		r.logger.WithFields(logrus.Fields{
			"stage":   stage,
			"attempt": attempt,
			"delay":   delay,
		}).WithError(err).Warn("write attempt failed, retrying")
		if err := r.sleep(ctx, delay); err != nil {
			return attempt, &WriteError{Stage: stage, Attempts: attempt, Err: err}
		}
	}
	return r.policy.MaxAttempts, &WriteError{Stage: stage, Attempts: r.policy.MaxAttempts, Err: lastErr}
}

// Retryable 判断错误是否暂时性：API 声明可重试（429/5xx）或网络层故障
// Retryable reports whether err is transient: an API error declaring itself retryable (429/5xx) or a network failure
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var classified interface{ Retryable() bool }
	if errors.As(err, &classified) {
		return classified.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

func retryHint(err error) time.Duration {
	var hinted interface{ RetryDelay() time.Duration }
	if errors.As(err, &hinted) {
		return hinted.RetryDelay()
	}
	return 0
}
