package sandbox

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessSandbox_Run(t *testing.T) {
	s := NewInProcessSandbox(func(ctx context.Context, ref string, input []byte) ([]byte, error) {
		return []byte(fmt.Sprintf("%s:%s", ref, input)), nil
	})
	defer s.Close(context.Background())

	out, err := s.Run(context.Background(), "mod-1", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, "mod-1:payload", string(out))
}

func TestInProcessSandbox_CancelledContext(t *testing.T) {
	s := NewInProcessSandbox(func(ctx context.Context, ref string, input []byte) ([]byte, error) {
		t.Fatal("run should not be called when context is already cancelled")
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Run(ctx, "mod-1", nil)
	assert.Error(t, err)
}

func TestInProcessSandbox_PropagatesError(t *testing.T) {
	s := NewInProcessSandbox(func(ctx context.Context, ref string, input []byte) ([]byte, error) {
		return nil, &Error{Code: ErrComputeTimeExhausted, Message: "too slow"}
	})

	_, err := s.Run(context.Background(), "mod-1", nil)
	require.Error(t, err)
	var sandboxErr *Error
	require.ErrorAs(t, err, &sandboxErr)
	assert.Equal(t, ErrComputeTimeExhausted, sandboxErr.Code)
}

func TestError_ErrorString(t *testing.T) {
	err := &Error{Code: ErrComputeMemoryExhausted, Message: "blew the heap"}
	assert.Contains(t, err.Error(), ErrComputeMemoryExhausted)
	assert.Contains(t, err.Error(), "blew the heap")
}

func TestIsMemoryError(t *testing.T) {
	assert.True(t, isMemoryError(fmt.Errorf("memory limit exceeded")))
	assert.True(t, isMemoryError(fmt.Errorf("failed to grow memory")))
	assert.False(t, isMemoryError(fmt.Errorf("unrelated failure")))
	assert.False(t, isMemoryError(nil))
}

func TestConfig_ZeroValueIsUnbounded(t *testing.T) {
	cfg := Config{}
	assert.Equal(t, time.Duration(0), cfg.CPUTimeLimit)
	assert.Equal(t, int64(0), cfg.MemoryLimitBytes)
}
