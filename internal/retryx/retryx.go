// Package retryx wraps quote-source calls with exponential backoff and
// jitter, classifying which failures are worth retrying. Adapted from
// the teacher's broker-specific retry client, generalised to any
// context-bearing call rather than only order-close retries.
package retryx

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Config bounds the retry loop. Zero-valued fields are replaced by
// DefaultConfig's values at NewClient time.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

// DefaultConfig is a conservative retry policy suitable for a market
// data vendor call: a handful of attempts, capped backoff, an overall
// deadline.
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 200 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
	Timeout:        10 * time.Second,
}

// Client retries a fallible operation under Config, backing off with
// jittered delays between attempts.
type Client struct {
	config Config
}

func NewClient(config Config) *Client {
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultConfig.MaxRetries
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = DefaultConfig.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = DefaultConfig.MaxBackoff
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig.Timeout
	}
	return &Client{config: config}
}

// Do retries fn until it succeeds, ctx is cancelled, the overall timeout
// elapses, or the error is classified as non-transient (in which case it
// returns immediately, without burning further attempts).
func (c *Client) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	backoff := c.config.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !isTransientError(lastErr) {
			return lastErr
		}
		if attempt == c.config.MaxRetries {
			break
		}

		delay, err := jitter(backoff)
		if err != nil {
			delay = backoff
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("retryx: cancelled after %d attempts: %w", attempt+1, ctx.Err())
		case <-time.After(delay):
		}

		backoff *= 2
		if backoff > c.config.MaxBackoff {
			backoff = c.config.MaxBackoff
		}
	}

	return fmt.Errorf("retryx: exhausted %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// jitter adds up to 25% random variance to a base delay, using
// crypto/rand rather than math/rand so concurrent callers don't
// synchronise their backoff and hammer the vendor in lockstep.
func jitter(base time.Duration) (time.Duration, error) {
	if base <= 0 {
		return 0, nil
	}
	maxJitter := base / 4
	if maxJitter <= 0 {
		return base, nil
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(maxJitter)))
	if err != nil {
		return base, err
	}
	return base + time.Duration(n.Int64()), nil
}

var transientPatterns = []string{
	"timeout", "connection refused", "connection reset", "temporary failure",
	"rate limit", "429", "502", "503", "504", "network", "dns",
	"no such host", "deadline exceeded", "tls handshake", "broken pipe", "eof",
}

// isTransientError classifies an error as worth retrying by matching
// well-known substrings of transport-level failures, mirroring the
// teacher's retry client rather than inventing a typed error taxonomy
// for third-party transport errors the engine does not own.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
