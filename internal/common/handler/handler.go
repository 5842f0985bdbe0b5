// Package handler 提供 API Handler 的通用辅助函数
// 用于减少 Handler 层的代码重复，统一错误处理、参数解析等操作
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dumeirei/stay-calendar-backend/internal/common/errors"
	"github.com/dumeirei/stay-calendar-backend/internal/common/response"
	"github.com/dumeirei/stay-calendar-backend/internal/common/utils"
)

// ============================================================================
// 统一错误处理
// ============================================================================

// StatusFor 根据业务错误码推导 HTTP 状态码
func StatusFor(appErr *errors.AppError) int {
	switch appErr.Code {
	case errors.ErrInvalidParams.Code, errors.ErrInvalidDateRange.Code,
		errors.ErrCalculationError.Code, errors.ErrUnsupportedStrategy.Code:
		return http.StatusBadRequest
	case errors.ErrNotFound.Code, errors.ErrPropertyNotFound.Code,
		errors.ErrConfigNotFound.Code, errors.ErrCalendarNotFound.Code:
		return http.StatusNotFound
	case errors.ErrRuleConflict.Code, errors.ErrConsistencyViolation.Code:
		return http.StatusConflict
	case errors.ErrRateLimitExceed.Code:
		return http.StatusTooManyRequests
	case errors.ErrCoordinatorStopped.Code:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleError 处理错误并发送适当的响应
// 如果 err 为 nil，返回 false（表示无错误需要处理）
// 如果 err 不为 nil，发送错误响应并返回 true（表示已处理错误，调用方应该 return）
//
// 使用示例:
//
//	result, err := service.DoSomething()
//	if HandleError(c, err) {
//	    return
//	}
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.IsAppError(err) {
		appErr := errors.GetAppError(err)
		response.Error(c, StatusFor(appErr), appErr.Code, appErr.Message)
		return true
	}
	response.InternalError(c, err.Error())
	return true
}

// MustSucceed 便捷封装：如果有错误则返回错误响应，否则返回成功响应
// 调用 MustSucceed 后必须 return
func MustSucceed(c *gin.Context, err error, data interface{}) {
	if HandleError(c, err) {
		return
	}
	response.Success(c, data)
}

// ============================================================================
// 参数解析
// ============================================================================

// ParseID 解析路径参数 "id" 为 int64
// 返回 (0, false) 表示解析失败（已发送400响应，调用方应该 return）
func ParseID(c *gin.Context, resourceName string) (int64, bool) {
	return ParseParamID(c, "id", resourceName)
}

// ParseParamID 解析指定路径参数为正整数 ID
func ParseParamID(c *gin.Context, paramName, resourceName string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(paramName), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "无效的"+resourceName+"ID")
		return 0, false
	}
	return id, true
}

// ParseRequiredQueryDate 解析必填的日期查询参数 (YYYY-MM-DD, UTC)
func ParseRequiredQueryDate(c *gin.Context, paramName, label string) (time.Time, bool) {
	raw := c.Query(paramName)
	if raw == "" {
		response.BadRequest(c, "请提供"+label)
		return time.Time{}, false
	}
	t, err := utils.ParseDate(raw)
	if err != nil {
		response.BadRequest(c, "无效的"+label+"格式")
		return time.Time{}, false
	}
	return t, true
}

// ParseQueryInt 解析整数查询参数，空值时使用默认值
func ParseQueryInt(c *gin.Context, paramName string, defaultValue int) (int, bool) {
	raw := c.Query(paramName)
	if raw == "" {
		return defaultValue, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		response.BadRequest(c, "无效的参数 "+paramName)
		return 0, false
	}
	return v, true
}

// ParseMonthParam 解析路径中的月份参数 (YYYY-MM)
func ParseMonthParam(c *gin.Context, paramName string) (year int, month time.Month, ok bool) {
	year, month, err := utils.ParseMonthKey(c.Param(paramName))
	if err != nil {
		response.BadRequest(c, "无效的月份格式，应为 YYYY-MM")
		return 0, 0, false
	}
	return year, month, true
}
