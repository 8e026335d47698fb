package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromCallClassification(t *testing.T) {
	require.NoError(t, FromCall(nil))

	// 已分类的错误原样透传
	require.ErrorIs(t, FromCall(fmt.Errorf("wrap: %w", ErrNotFound)), ErrNotFound)
	require.ErrorIs(t, FromCall(ErrAuth), ErrAuth)

	require.ErrorIs(t, FromCall(context.DeadlineExceeded), ErrTimeout)
	require.ErrorIs(t, FromCall(errors.New("connection refused")), ErrNetwork)
}

func TestRetryable(t *testing.T) {
	require.True(t, Retryable(FromCall(context.DeadlineExceeded)))
	require.True(t, Retryable(FromCall(errors.New("boom"))))
	require.False(t, Retryable(ErrPermission))
	require.False(t, Retryable(Validationf("bad input")))
}

func TestHelpersCarrySentinel(t *testing.T) {
	require.ErrorIs(t, Validationf("field %s", "text"), ErrValidation)
	require.ErrorIs(t, Permissionf("no"), ErrPermission)
}
