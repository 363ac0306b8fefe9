package embedding_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"fundseek/internal/domain/embedding"
)

func fastPolicy(maxRetries int) embedding.RetryPolicy {
	return embedding.RetryPolicy{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   8 * time.Millisecond,
	}
}

// TestWithRetryOnlyRateLimit 非限流错误不重试，立即向上传播
func TestWithRetryOnlyRateLimit(t *testing.T) {
	calls := 0
	boom := errors.New("invalid api key")

	_, err := embedding.WithRetry(context.Background(), fastPolicy(5), func() (int, error) {
		calls++
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on non-rate-limit errors)", calls)
	}
}

// TestWithRetryRecoversFromRateLimit 限流后退避重试直到成功
func TestWithRetryRecoversFromRateLimit(t *testing.T) {
	calls := 0

	got, err := embedding.WithRetry(context.Background(), fastPolicy(5), func() (string, error) {
		calls++
		if calls < 3 {
			return "", &embedding.RateLimitError{Message: "quota exceeded"}
		}
		return "vector", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "vector" {
		t.Errorf("result = %q", got)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	t.Logf("✅ recovered after %d attempts", calls)
}

// TestWithRetryExhaustsAttempts 重试耗尽后返回最后一次限流错误
func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0

	_, err := embedding.WithRetry(context.Background(), fastPolicy(3), func() (int, error) {
		calls++
		return 0, &embedding.RateLimitError{Message: "still limited"}
	})
	if !embedding.IsRateLimit(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

// TestWithRetryContextCancel 等待退避期间 ctx 取消会中断重试
func TestWithRetryContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := embedding.RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  time.Minute, // 不取消就会卡住
		MaxDelay:   time.Hour,
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := embedding.WithRetry(ctx, policy, func() (int, error) {
		return 0, &embedding.RateLimitError{Message: "limited"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// TestIsRateLimit 包装后的限流错误仍可识别
func TestIsRateLimit(t *testing.T) {
	wrapped := errors.Join(errors.New("outer"), &embedding.RateLimitError{Message: "429"})
	if !embedding.IsRateLimit(wrapped) {
		t.Error("wrapped rate limit error must be detected")
	}
	if embedding.IsRateLimit(errors.New("something else")) {
		t.Error("plain error must not be detected as rate limit")
	}
}
