package camunda

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"workflow-engine/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *Client {
	return &Client{config: &ClientConfig{
		RetryConfig: &RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}}
}

func TestIsRetryableZeebeError(t *testing.T) {
	assert.True(t, isRetryableZeebeError(stderrors.New("rpc error: code = Unavailable desc = connection refused")))
	assert.True(t, isRetryableZeebeError(stderrors.New("context deadline exceeded")))
	assert.False(t, isRetryableZeebeError(stderrors.New("rpc error: code = NotFound desc = no process with id")))
}

func TestExecuteWithRetry_RetriesTransientErrors(t *testing.T) {
	c := testClient()
	calls := 0
	err := c.ExecuteWithRetry(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return stderrors.New("code = Unavailable")
		}
		return nil
	}, "create-instance:save.sweep.v1")

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetry_MapsErrors(t *testing.T) {
	c := testClient()

	calls := 0
	err := c.ExecuteWithRetry(context.Background(), func(context.Context) error {
		calls++
		return stderrors.New("connection reset by peer")
	}, "create-instance:save.sweep.v1")
	assert.Equal(t, 3, calls)
	assert.True(t, errors.HasCode(err, errors.ErrCodeExecutionPortUnavailable))

	calls = 0
	err = c.ExecuteWithRetry(context.Background(), func(context.Context) error {
		calls++
		return stderrors.New("NOT_FOUND: expected to find process definition with process ID 'save.sweep.v1'")
	}, "create-instance:save.sweep.v1")
	assert.Equal(t, 1, calls)
	require.True(t, errors.HasCode(err, errors.ErrCodeExecutionFailed))
	assert.Contains(t, err.Error(), "save.sweep.v1")
}

func TestExecuteWithRetry_StopsOnCancel(t *testing.T) {
	c := testClient()
	c.config.RetryConfig.BaseDelay = time.Second
	c.config.RetryConfig.MaxDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	err := c.ExecuteWithRetry(ctx, func(context.Context) error {
		cancel()
		return stderrors.New("unavailable")
	}, "cancel-instance:1")

	assert.True(t, errors.HasCode(err, errors.ErrCodeExecutionPortUnavailable))
	assert.Contains(t, err.Error(), "cancelled after 1 attempts")
}
