package client

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorConstructors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		err           *Error
		wantCode      Code
		wantRetryable bool
	}{
		{name: "unavailable", err: Unavailable("cannot reach daemon", "check it is running"), wantCode: CodeUnavailable, wantRetryable: true},
		{name: "unavailablef", err: Unavailablef("dial %s failed", "127.0.0.1"), wantCode: CodeUnavailable, wantRetryable: true},
		{name: "disconnected", err: Disconnected("send message"), wantCode: CodeDisconnected, wantRetryable: true},
		{name: "notFound", err: NotFound("conversation %s does not exist", "conv-9"), wantCode: CodeNotFound, wantRetryable: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.wantCode, tt.err.Code)
			require.Equal(t, tt.wantRetryable, tt.err.Retryable)
			require.Contains(t, tt.err.Error(), string(tt.wantCode))
		})
	}
}

func TestCodeOf_Unwraps(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("operation failed: %w", NotFound("missing"))
	code, ok := CodeOf(wrapped)
	require.True(t, ok)
	require.Equal(t, CodeNotFound, code)

	_, ok = CodeOf(errors.New("plain"))
	require.False(t, ok)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	require.True(t, IsRetryable(Disconnected("op")))
	require.True(t, IsRetryable(fmt.Errorf("wrap: %w", Unavailable("down", ""))))
	require.False(t, IsRetryable(NotFound("missing")))
	require.False(t, IsRetryable(errors.New("plain")))
	require.False(t, IsRetryable(nil))
}
