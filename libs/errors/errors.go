package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Kind 错误分类
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindValidation
	KindNotFound
	KindNetwork
	KindHTTP
	KindParse
	KindState
	KindCancelled
	KindTimeout
)

var kindNames = map[Kind]string{
	KindUnknown:    "unknown",
	KindConfig:     "configuration",
	KindValidation: "validation",
	KindNotFound:   "not found",
	KindNetwork:    "network",
	KindHTTP:       "http",
	KindParse:      "parse",
	KindState:      "state",
	KindCancelled:  "cancelled",
	KindTimeout:    "timeout",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// code 供 protocol 层输出的错误码
func (k Kind) code() int {
	if k == KindUnknown {
		return 1000
	}
	return 1000 + int(k)
}

// StackError 带堆栈的分类错误
type StackError struct {
	kind   Kind
	msg    string
	status int
	body   string
	cause  error
}

func New(kind Kind, msg string) *StackError {
	return &StackError{kind: kind, msg: msg, cause: errors.New(msg)}
}

func Newf(kind Kind, format string, args ...interface{}) *StackError {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap 包装底层错误，err 为 nil 时返回 nil
func Wrap(kind Kind, err error, msg string) *StackError {
	if err == nil {
		return nil
	}
	return &StackError{kind: kind, msg: msg, cause: errors.WithStack(err)}
}

// HTTP 非 2xx 响应
func HTTP(status int, body string) *StackError {
	msg := fmt.Sprintf("http request failed with status %d", status)
	return &StackError{kind: KindHTTP, msg: msg, status: status, body: body, cause: errors.New(msg)}
}

func (e *StackError) Error() string {
	if e.cause == nil || e.cause.Error() == e.msg {
		return e.msg
	}
	if e.msg == "" {
		return e.cause.Error()
	}
	return e.msg + ": " + e.cause.Error()
}

func (e *StackError) Unwrap() error { return e.cause }

// Format 支持 %+v 输出堆栈
func (e *StackError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "%s\n%+v", e.Error(), e.cause)
		return
	}
	fmt.Fprint(s, e.Error())
}

func (e *StackError) Kind() Kind { return e.kind }
func (e *StackError) Code() int { return e.kind.code() }
func (e *StackError) Msg() string { return e.Error() }
func (e *StackError) Status() int { return e.status }
func (e *StackError) Body() string { return e.body }
func (e *StackError) Retryable() bool { return e.kind == KindTimeout }

// As 从错误链中取出 StackError
func As(err error) (*StackError, bool) {
	var se *StackError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsKind 判断错误链中是否包含指定分类
func IsKind(err error, kind Kind) bool {
	for err != nil {
		se, ok := As(err)
		if !ok {
			return false
		}
		if se.kind == kind {
			return true
		}
		err = se.cause
	}
	return false
}

// From 将任意错误转换为 StackError，供输出层使用
func From(err error) *StackError {
	if err == nil {
		return nil
	}
	if se, ok := As(err); ok {
		return se
	}
	return &StackError{kind: KindUnknown, msg: err.Error(), cause: err}
}
