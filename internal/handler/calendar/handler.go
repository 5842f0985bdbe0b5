// Package calendar 提供价格日历查询与失效事件接入的 HTTP Handler
package calendar

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dumeirei/stay-calendar-backend/internal/common/handler"
	"github.com/dumeirei/stay-calendar-backend/internal/common/response"
	"github.com/dumeirei/stay-calendar-backend/internal/events"
	"github.com/dumeirei/stay-calendar-backend/internal/models"
	"github.com/dumeirei/stay-calendar-backend/internal/service/availability"
	"github.com/dumeirei/stay-calendar-backend/internal/service/invalidation"
)

// AvailabilityService 可订查询
type AvailabilityService interface {
	CheckAvailability(ctx context.Context, req availability.Request) (*availability.Result, error)
	GetCalendar(ctx context.Context, propertyID int64, year int, month time.Month) (*models.Calendar, error)
}

// EventCoordinator 失效事件入口
type EventCoordinator interface {
	HandleRuleMutation(ctx context.Context, source string, ev invalidation.RuleMutation) ([]string, error)
	HandleBookingStatusChange(ctx context.Context, source string, ev invalidation.BookingStatusChange) ([]string, error)
}

// FailureLister 生成失败记录查询
type FailureLister interface {
	ListRecent(ctx context.Context, propertyID int64, limit int) ([]*models.CalendarRegenerationFailure, error)
}

// Handler 价格日历处理器
type Handler struct {
	availability AvailabilityService
	coordinator  EventCoordinator
	failures     FailureLister
}

// NewHandler 创建价格日历处理器
func NewHandler(svc AvailabilityService, coordinator EventCoordinator, failures FailureLister) *Handler {
	return &Handler{
		availability: svc,
		coordinator:  coordinator,
		failures:     failures,
	}
}

// EnqueueResponse 事件受理结果
type EnqueueResponse struct {
	JobIDs []string `json:"job_ids"`
}

// CheckAvailability 入住可订查询
// @Summary 入住可订查询
// @Description 读取已生成的价格日历，返回可订状态与报价；离店日不计入住
// @Tags 价格日历
// @Produce json
// @Param id path int true "房源ID"
// @Param check_in query string true "入住日期 YYYY-MM-DD"
// @Param check_out query string true "离店日期 YYYY-MM-DD"
// @Param guests query int false "入住人数" default(1)
// @Success 200 {object} response.Response{data=availability.Result}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/properties/{id}/availability [get]
func (h *Handler) CheckAvailability(c *gin.Context) {
	propertyID, ok := handler.ParseID(c, "房源")
	if !ok {
		return
	}
	checkIn, ok := handler.ParseRequiredQueryDate(c, "check_in", "入住日期")
	if !ok {
		return
	}
	checkOut, ok := handler.ParseRequiredQueryDate(c, "check_out", "离店日期")
	if !ok {
		return
	}
	guests, ok := handler.ParseQueryInt(c, "guests", 1)
	if !ok {
		return
	}

	result, err := h.availability.CheckAvailability(c.Request.Context(), availability.Request{
		PropertyID: propertyID,
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		Guests:     guests,
	})
	handler.MustSucceed(c, err, result)
}

// GetCalendar 获取月度价格日历
// @Summary 获取月度价格日历
// @Description 月份日历缺失时同步生成
// @Tags 价格日历
// @Produce json
// @Param id path int true "房源ID"
// @Param month path string true "月份 YYYY-MM"
// @Success 200 {object} response.Response{data=models.Calendar}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/properties/{id}/calendars/{month} [get]
func (h *Handler) GetCalendar(c *gin.Context) {
	propertyID, ok := handler.ParseID(c, "房源")
	if !ok {
		return
	}
	year, month, ok := handler.ParseMonthParam(c, "month")
	if !ok {
		return
	}

	cal, err := h.availability.GetCalendar(c.Request.Context(), propertyID, year, month)
	handler.MustSucceed(c, err, cal)
}

// SubmitRuleMutation 提交定价规则变更事件
// @Summary 提交定价规则变更事件
// @Description 受影响日期按月拆分为重算任务，整月变更触发全量生成
// @Tags 失效事件
// @Accept json
// @Produce json
// @Param request body events.RuleMutationPayload true "规则变更"
// @Success 202 {object} response.Response{data=EnqueueResponse}
// @Failure 400 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /api/v1/events/rule-mutations [post]
func (h *Handler) SubmitRuleMutation(c *gin.Context) {
	var req events.RuleMutationPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}
	ev, err := req.Event()
	if handler.HandleError(c, err) {
		return
	}

	ids, err := h.coordinator.HandleRuleMutation(c.Request.Context(), invalidation.SourceHTTP, ev)
	if handler.HandleError(c, err) {
		return
	}
	response.Accepted(c, EnqueueResponse{JobIDs: ids})
}

// SubmitBookingStatus 提交预订状态变更事件
// @Summary 提交预订状态变更事件
// @Description confirmed/on-hold 占用日期，cancelled/expired 释放日期；只更新可订状态，不重算价格
// @Tags 失效事件
// @Accept json
// @Produce json
// @Param request body events.BookingStatusPayload true "预订状态变更"
// @Success 202 {object} response.Response{data=EnqueueResponse}
// @Failure 400 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /api/v1/events/booking-status [post]
func (h *Handler) SubmitBookingStatus(c *gin.Context) {
	var req events.BookingStatusPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}
	ev, err := req.Event()
	if handler.HandleError(c, err) {
		return
	}

	ids, err := h.coordinator.HandleBookingStatusChange(c.Request.Context(), invalidation.SourceHTTP, ev)
	if handler.HandleError(c, err) {
		return
	}
	response.Accepted(c, EnqueueResponse{JobIDs: ids})
}

// ListFailures 查询日历生成失败记录
// @Summary 查询日历生成失败记录
// @Tags 失效事件
// @Produce json
// @Param property_id query int false "房源ID"
// @Param limit query int false "条数" default(50)
// @Success 200 {object} response.Response{data=[]models.CalendarRegenerationFailure}
// @Router /api/v1/regeneration-failures [get]
func (h *Handler) ListFailures(c *gin.Context) {
	propertyID, ok := handler.ParseQueryInt(c, "property_id", 0)
	if !ok {
		return
	}
	limit, ok := handler.ParseQueryInt(c, "limit", 50)
	if !ok {
		return
	}

	failures, err := h.failures.ListRecent(c.Request.Context(), int64(propertyID), limit)
	handler.MustSucceed(c, err, failures)
}

// RegisterRoutes 注册路由，queryMiddleware 只挂在房源查询路由上
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, queryMiddleware ...gin.HandlerFunc) {
	properties := r.Group("/properties/:id", queryMiddleware...)
	{
		properties.GET("/availability", h.CheckAvailability)
		properties.GET("/calendars/:month", h.GetCalendar)
	}

	ev := r.Group("/events")
	{
		ev.POST("/rule-mutations", h.SubmitRuleMutation)
		ev.POST("/booking-status", h.SubmitBookingStatus)
	}

	r.GET("/regeneration-failures", h.ListFailures)
}
