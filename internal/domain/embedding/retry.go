package embedding

import (
	"context"
	"errors"
	"time"

	applog "fundseek/internal/platform/log"
)

// RateLimitError 上游限流（HTTP 429）。只有这一类失败会触发退避重试。
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	return "rate limited (429): " + e.Message
}

// IsRateLimit 判断是否为限流错误。
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// RetryPolicy 指数退避策略：delay = min(BaseDelay * 2^(attempt-1), MaxDelay)。
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy 通用路径的默认策略（3 次）。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  5 * time.Second,
		MaxDelay:   time.Hour,
	}
}

// WithRetry 执行 fn，仅在限流错误时按指数退避重试；
// 其他错误立即向上传播。ctx 取消会中断等待。
func WithRetry[T any](ctx context.Context, policy RetryPolicy, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= policy.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if !IsRateLimit(err) || attempt == policy.MaxRetries {
			return zero, err
		}
		lastErr = err

		delay := policy.BaseDelay << (attempt - 1)
		if delay > policy.MaxDelay || delay <= 0 {
			delay = policy.MaxDelay
		}
		applog.Warnf("rate limited, retrying after %s (attempt %d/%d)", delay, attempt, policy.MaxRetries)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}
