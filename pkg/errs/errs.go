package errs

import (
	"context"
	"errors"
	"fmt"
)

// 统一错误分类：本地可判定的（校验、权限）不发网络请求直接返回；
// 网络/超时类可重试；鉴权失败触发强制登出。
var (
	ErrAuth       = errors.New("auth: invalid or expired session")
	ErrNetwork    = errors.New("network: transient connectivity failure")
	ErrTimeout    = errors.New("timeout: call exceeded deadline")
	ErrPermission = errors.New("permission denied")
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
)

// Validationf 带说明的校验错误
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// Permissionf 带说明的权限错误
func Permissionf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrPermission}, args...)...)
}

// Retryable 网络与超时错误允许上层重试
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout)
}

// FromCall 把外呼错误归一化：deadline 归为 Timeout，其余归为 Network。
// 已经分类过的错误原样返回。
func FromCall(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrAuth, ErrNetwork, ErrTimeout, ErrPermission, ErrNotFound, ErrValidation} {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
