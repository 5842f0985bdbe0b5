// Package errors 定义业务错误码和错误处理
package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError 应用错误
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码匹配，使 errors.Is 能穿透 WithError/WithMessage 产生的副本
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New 创建新的应用错误
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装错误
func Wrap(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithMessage 修改错误消息
func (e *AppError) WithMessage(message string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: message,
		Err:     e.Err,
	}
}

// WithError 添加原始错误
func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// 通用错误码 (1000-1999)
var (
	ErrUnknown         = New(1000, "未知错误")
	ErrInvalidParams   = New(1001, "参数错误")
	ErrNotFound        = New(1002, "资源不存在")
	ErrDatabaseError   = New(1004, "数据库错误")
	ErrCacheError      = New(1005, "缓存错误")
	ErrInternalError   = New(1006, "内部错误")
	ErrExternalService = New(1007, "外部服务错误")
	ErrRateLimitExceed = New(1008, "请求过于频繁")
)

// 房源与定价规则错误码 (4000-4999)
var (
	ErrPropertyNotFound = New(4000, "房源不存在")
	ErrConfigNotFound   = New(4001, "定价配置不存在")
	ErrRuleConflict     = New(4002, "季节规则重叠冲突")
	ErrCalculationError = New(4003, "价格计算错误")
)

// 价格日历错误码 (8000-8999)
var (
	ErrCalendarNotFound     = New(8000, "价格日历不存在")
	ErrRegenerationFailure  = New(8001, "价格日历生成失败")
	ErrConsistencyViolation = New(8002, "价格日历数据不一致")
	ErrInvalidDateRange     = New(8003, "无效的日期区间")
	ErrCoordinatorStopped   = New(8004, "日历协调器已停止")
	ErrUnsupportedStrategy  = New(8005, "不支持的定价策略版本")
)

// IsAppError 判断是否为应用错误
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetAppError 获取应用错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return ErrUnknown.WithError(err)
}

// Is 代理标准库 errors.Is，避免调用方同时引入两个 errors 包
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// IsRetryable 判断日历生成错误是否值得重试
// 只有 I/O 类的 RegenerationFailure 会重试，其余原因属于确定性失败
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if !stderrors.Is(err, ErrRegenerationFailure) {
		return false
	}
	switch {
	case stderrors.Is(err, ErrCalculationError),
		stderrors.Is(err, ErrRuleConflict),
		stderrors.Is(err, ErrConfigNotFound),
		stderrors.Is(err, ErrPropertyNotFound),
		stderrors.Is(err, ErrInvalidDateRange),
		stderrors.Is(err, ErrConsistencyViolation),
		stderrors.Is(err, ErrUnsupportedStrategy):
		return false
	}
	return true
}
