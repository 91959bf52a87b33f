package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"freenow/internal/dto"
	"freenow/internal/intake"
	"freenow/internal/render"
	"freenow/internal/service"
	"freenow/internal/timetable"
	"freenow/pkg/response"
)

// StudentHandler 学生课表 HTTP 处理器
type StudentHandler struct {
	timetableSvc service.TimetableService
}

// NewStudentHandler 创建 StudentHandler
func NewStudentHandler(timetableSvc service.TimetableService) *StudentHandler {
	return &StudentHandler{timetableSvc: timetableSvc}
}

// ListStudents 当前 scope 的学生列表
// GET /api/v1/students
func (h *StudentHandler) ListStudents(c *gin.Context) {
	scope, ok := MustGetScope(c)
	if !ok {
		return
	}

	list, err := h.timetableSvc.ListStudents(c.Request.Context(), scope)
	if err != nil {
		h.handleStudentError(c, err)
		return
	}
	response.OK(c, list)
}

// GetStudent 按名字查询
// GET /api/v1/students/:name
func (h *StudentHandler) GetStudent(c *gin.Context) {
	scope, ok := MustGetScope(c)
	if !ok {
		return
	}

	student, err := h.timetableSvc.GetStudent(c.Request.Context(), scope, c.Param("name"))
	if err != nil {
		h.handleStudentError(c, err)
		return
	}
	response.OK(c, student)
}

// SaveStudent 新建或替换学生课表
// POST /api/v1/students
func (h *StudentHandler) SaveStudent(c *gin.Context) {
	scope, ok := MustGetScope(c)
	if !ok {
		return
	}

	var req dto.SaveStudentRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.timetableSvc.SaveStudent(c.Request.Context(), scope, &req)
	if err != nil {
		h.handleStudentError(c, err)
		return
	}
	if result.Replaced {
		response.OK(c, result)
		return
	}
	response.Created(c, result)
}

// DeleteStudent 删除学生
// DELETE /api/v1/students/:name
func (h *StudentHandler) DeleteStudent(c *gin.Context) {
	scope, ok := MustGetScope(c)
	if !ok {
		return
	}

	if err := h.timetableSvc.DeleteStudent(c.Request.Context(), scope, c.Param("name")); err != nil {
		h.handleStudentError(c, err)
		return
	}
	response.OK(c, nil)
}

// DecodeLink 解析分享链接（不落库）
// POST /api/v1/decode
func (h *StudentHandler) DecodeLink(c *gin.Context) {
	var req dto.DecodeLinkRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.timetableSvc.DecodeLink(req.Link)
	if err != nil {
		h.handleStudentError(c, err)
		return
	}
	response.OK(c, result)
}

func (h *StudentHandler) handleStudentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, intake.ErrInvalidName):
		response.BadRequest(c, response.CodeInvalidName, err.Error())
	case errors.Is(err, render.ErrInvalidColor):
		response.ErrorWithDetails(c, http.StatusBadRequest, response.CodeInvalidColor, "无效的颜色", err.Error())
	case errors.Is(err, timetable.ErrEmptyShareLink):
		response.BadRequest(c, response.CodeInvalidShareLink, err.Error())
	case errors.Is(err, timetable.ErrInvalidShareLink):
		response.ErrorWithDetails(c, http.StatusBadRequest, response.CodeInvalidShareLink, "无法解析的课表分享链接", err.Error())
	case errors.Is(err, service.ErrUnknownStudent):
		response.NotFound(c, response.CodeUnknownStudent, err.Error())
	case errors.Is(err, service.ErrDuplicateStudent):
		response.Error(c, http.StatusConflict, response.CodeDuplicateStudent, err.Error())
	case errors.Is(err, service.ErrConflict):
		response.Error(c, http.StatusConflict, response.CodeConflict, err.Error())
	default:
		response.InternalError(c)
	}
}
