package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"freenow/internal/service"
	"freenow/pkg/response"
)

// AvailabilityHandler 空闲查询 HTTP 处理器
type AvailabilityHandler struct {
	availabilitySvc service.AvailabilityService
}

// NewAvailabilityHandler 创建 AvailabilityHandler
func NewAvailabilityHandler(availabilitySvc service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{availabilitySvc: availabilitySvc}
}

// FreeNow 当前空闲的学生
// GET /api/v1/availability/now
func (h *AvailabilityHandler) FreeNow(c *gin.Context) {
	scope, ok := MustGetScope(c)
	if !ok {
		return
	}

	result, err := h.availabilitySvc.FreeNow(c.Request.Context(), scope)
	if err != nil {
		h.handleAvailabilityError(c, err)
		return
	}
	response.OK(c, result)
}

// FreeUntil 每名学生空闲到何时 / 忙到何时
// GET /api/v1/availability/until
func (h *AvailabilityHandler) FreeUntil(c *gin.Context) {
	scope, ok := MustGetScope(c)
	if !ok {
		return
	}

	result, err := h.availabilitySvc.FreeUntil(c.Request.Context(), scope)
	if err != nil {
		h.handleAvailabilityError(c, err)
		return
	}
	response.OK(c, result)
}

// FreeWhen 指定学生下一次空闲
// GET /api/v1/availability/when/:name
func (h *AvailabilityHandler) FreeWhen(c *gin.Context) {
	scope, ok := MustGetScope(c)
	if !ok {
		return
	}

	result, err := h.availabilitySvc.FreeWhen(c.Request.Context(), scope, c.Param("name"))
	if err != nil {
		h.handleAvailabilityError(c, err)
		return
	}
	response.OK(c, result)
}

func (h *AvailabilityHandler) handleAvailabilityError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownStudent):
		response.NotFound(c, response.CodeUnknownStudent, err.Error())
	case errors.Is(err, service.ErrNoStudents):
		response.NotFound(c, response.CodeNoStudents, err.Error())
	default:
		response.InternalError(c)
	}
}
