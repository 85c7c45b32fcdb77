// Package misc 放一些跟池本身无关的小工具
package misc

import (
	"fmt"
	"runtime"
)

// locError 在错误链上挂一条说明和出错位置
type locError struct {
	msg  string
	next error
	file string
	line int
}

func (e *locError) Error() string {
	if e.next == nil {
		return e.msg
	}
	return e.msg + ": " + e.next.Error()
}

// Unwrap 保持 errors.Is / errors.As 能穿透包装
func (e *locError) Unwrap() error {
	return e.next
}

// Format %+v 时逐层打印出错位置
func (e *locError) Format(f fmt.State, c rune) {
	if c == 'v' && f.Flag('+') {
		fmt.Fprintf(f, "%s\n\t%s:%d", e.msg, e.file, e.line)
		if e.next != nil {
			fmt.Fprintf(f, "\n%+v", e.next)
		}
		return
	}
	fmt.Fprint(f, e.Error())
}

// ErrorWrap 包装错误并记下调用的位置，err 为 nil 时原样返回 nil
func ErrorWrap(err error, message string) error {
	if err == nil {
		return nil
	}
	_, file, line, _ := runtime.Caller(1)
	return &locError{msg: message, next: err, file: file, line: line}
}

// ErrorWrapf 同 ErrorWrap，说明支持格式化
func ErrorWrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	_, file, line, _ := runtime.Caller(1)
	return &locError{msg: fmt.Sprintf(format, args...), next: err, file: file, line: line}
}
