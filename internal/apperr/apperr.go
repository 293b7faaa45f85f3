package apperr

import (
	"errors"
	"fmt"
)

// 错误分类（哨兵），通过 errors.Is 判断
var (
	ErrNoReviews        = errors.New("no reviews")
	ErrInsufficientData = errors.New("insufficient data")
	ErrAnalysisFailed   = errors.New("analysis failed")
	ErrTransientCall    = errors.New("transient call failure")
	ErrPersistence      = errors.New("persistence failure")
	ErrAppNotFound      = errors.New("app not found")
)

// Error 携带分类、可读信息及底层原因
type Error struct {
	kind  error
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

// Unwrap 同时暴露分类和原因，errors.Is 对两者均生效
func (e *Error) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

// Kind 返回错误分类
func (e *Error) Kind() error {
	return e.kind
}

// Message 返回不含底层原因的可读信息
func (e *Error) Message() string {
	return e.msg
}

func newError(kind, cause error, format string, args ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

func NoReviews(appID string) error {
	return newError(ErrNoReviews, nil, "应用 %s 没有可分析的评论", appID)
}

func AppNotFound(appID string) error {
	return newError(ErrAppNotFound, nil, "找不到应用 %s", appID)
}

func InsufficientData(format string, args ...any) error {
	return newError(ErrInsufficientData, nil, format, args...)
}

func AnalysisFailed(cause error, format string, args ...any) error {
	return newError(ErrAnalysisFailed, cause, format, args...)
}

func TransientCall(cause error, format string, args ...any) error {
	return newError(ErrTransientCall, cause, format, args...)
}

func Persistence(cause error, format string, args ...any) error {
	return newError(ErrPersistence, cause, format, args...)
}

// IsSoft 软错误：调用方可以调整参数后重试（例如减小 k）
func IsSoft(err error) bool {
	return errors.Is(err, ErrInsufficientData)
}

// ErrorPayload 结构化错误返回体
type ErrorPayload struct {
	Error string `json:"error"`
}

// Payload 将错误转为 {"error": "..."}，优先使用可读信息
func Payload(err error) ErrorPayload {
	var e *Error
	if errors.As(err, &e) {
		return ErrorPayload{Error: e.Message()}
	}
	return ErrorPayload{Error: err.Error()}
}
