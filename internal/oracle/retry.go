package oracle

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"docalign-backend/internal/shared/metrics"
	"docalign-backend/internal/shared/telemetry"
)

// RetryConfig controls the retrying client.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig matches the provider's documented backoff guidance.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   4 * time.Second,
		MaxDelay:    10 * time.Second,
	}
}

type retryingClient struct {
	base Client
	cfg  RetryConfig
}

// WithRetry wraps base with transient-failure retries and exponential backoff.
func WithRetry(base Client, cfg RetryConfig) Client {
	if base == nil {
		return nil
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultRetryConfig().BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	return retryingClient{base: base, cfg: cfg}
}

func (r retryingClient) Generate(ctx context.Context, prompt string) (string, error) {
	delay := r.cfg.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		metrics.IncOracleCall()
		started := time.Now()
		out, err := r.base.Generate(ctx, prompt)
		metrics.ObserveOracleDurationMs(float64(time.Since(started)) / float64(time.Millisecond))
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !shouldRetry(err) || attempt == r.cfg.MaxAttempts {
			break
		}

		metrics.IncOracleRetry()
		telemetry.Warn("oracle.retry", map[string]any{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		delay *= 2
		if delay > r.cfg.MaxDelay {
			delay = r.cfg.MaxDelay
		}
	}

	metrics.IncOracleFailure()
	return "", lastErr
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "http status 5") || strings.Contains(msg, "http status 429") {
		return true
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "client.timeout") {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "eof") {
		return true
	}

	return false
}
