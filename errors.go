package dbpool

import (
	"errors"
	"fmt"
)

var (
	// ErrCommitOnClosed 提交时发现底层传输已经关闭，这一笔没有提交
	ErrCommitOnClosed = errors.New("cannot commit because connection was closed")

	// fn panic 时范围收尾用的原因，调用方看不到它，panic 原样向上传
	errPanicInScope = errors.New("panic in connection scope")
)

// CapacityError 池满并且等待超时。池自己不会重试，要不要重试由调用方决定。
type CapacityError struct {
	Size    int
	MaxSize int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("too many connections created: %d (maxsize is %d)", e.Size, e.MaxSize)
}

// RollbackError 包装回滚本身的失败。只通过池的日志上报，
// 永远不替换触发回滚的那个错误。
type RollbackError struct {
	Err error
}

func (e *RollbackError) Error() string {
	return "rollback failed: " + e.Err.Error()
}

func (e *RollbackError) Unwrap() error {
	return e.Err
}
