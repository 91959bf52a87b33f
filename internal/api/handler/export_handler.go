package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"freenow/internal/service"
	"freenow/pkg/response"
)

// warningsHeader 导出时部分模块解析失败的提示
const warningsHeader = "X-Export-Warnings"

// ExportHandler 导出 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportPNG 合并课表图片
// GET /api/v1/export/png
func (h *ExportHandler) ExportPNG(c *gin.Context) {
	h.serve(c, h.exportSvc.RenderPNG)
}

// ExportXLSX 课表 Excel
// GET /api/v1/export/xlsx
func (h *ExportHandler) ExportXLSX(c *gin.Context) {
	h.serve(c, h.exportSvc.ExportXLSX)
}

// ExportICS 单名学生的日历文件
// GET /api/v1/export/ics/:name
func (h *ExportHandler) ExportICS(c *gin.Context) {
	name := c.Param("name")
	h.serve(c, func(ctx context.Context, scope string) (*service.ExportFile, error) {
		return h.exportSvc.ExportICS(ctx, scope, name)
	})
}

func (h *ExportHandler) serve(c *gin.Context, export func(ctx context.Context, scope string) (*service.ExportFile, error)) {
	scope, ok := MustGetScope(c)
	if !ok {
		return
	}

	file, err := export(c.Request.Context(), scope)
	if err != nil {
		h.handleExportError(c, err)
		return
	}
	if len(file.Warnings) > 0 {
		c.Header(warningsHeader, strings.Join(file.Warnings, "; "))
	}
	response.Attachment(c, file.ContentType, file.Filename, file.Data)
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNoStudents):
		response.NotFound(c, response.CodeNoStudents, err.Error())
	case errors.Is(err, service.ErrUnknownStudent):
		response.NotFound(c, response.CodeUnknownStudent, err.Error())
	case errors.Is(err, service.ErrExportNoSessions):
		response.BadRequest(c, response.CodeNothingToExport, err.Error())
	default:
		response.InternalError(c)
	}
}
