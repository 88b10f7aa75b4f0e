package retryx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	c := NewClient(Config{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Timeout: time.Second})
	attempts := 0
	err := c.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_NonTransientFailsFast(t *testing.T) {
	c := NewClient(Config{MaxRetries: 5, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Timeout: time.Second})
	attempts := 0
	err := c.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("invalid symbol")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	c := NewClient(Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Timeout: time.Second})
	attempts := 0
	err := c.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("503 service unavailable")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, attempts) // initial + 2 retries
}
