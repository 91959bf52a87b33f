package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"freenow/internal/timetable"
	"freenow/pkg/response"
)

// CatalogInvalidator 课程目录缓存管理，*catalog.Cache 满足该接口
type CatalogInvalidator interface {
	Invalidate(ctx context.Context, module timetable.ModuleCode) error
	Purge(ctx context.Context) error
	Cached() []timetable.ModuleCode
}

// CatalogHandler 课程目录缓存 HTTP 处理器
type CatalogHandler struct {
	cache CatalogInvalidator
}

// NewCatalogHandler 创建 CatalogHandler；cache 为 nil 时所有操作为空操作
func NewCatalogHandler(cache CatalogInvalidator) *CatalogHandler {
	return &CatalogHandler{cache: cache}
}

// ListCached 已缓存的模块
// GET /api/v1/catalog
func (h *CatalogHandler) ListCached(c *gin.Context) {
	modules := []timetable.ModuleCode{}
	if h.cache != nil {
		modules = append(modules, h.cache.Cached()...)
	}
	response.OK(c, gin.H{"modules": modules})
}

// Invalidate 丢弃单个模块的缓存，下次查询重新拉取
// POST /api/v1/catalog/:module/invalidate
func (h *CatalogHandler) Invalidate(c *gin.Context) {
	module := timetable.NormalizeModuleCode(c.Param("module"))
	if module == "" {
		response.BadRequest(c, response.CodeUnknownModule, "模块代码不能为空")
		return
	}
	if h.cache != nil {
		if err := h.cache.Invalidate(c.Request.Context(), module); err != nil {
			_ = c.Error(err)
			response.InternalError(c)
			return
		}
	}
	response.OK(c, gin.H{"module": module})
}

// Purge 清空全部缓存
// POST /api/v1/catalog/purge
func (h *CatalogHandler) Purge(c *gin.Context) {
	if h.cache != nil {
		if err := h.cache.Purge(c.Request.Context()); err != nil {
			_ = c.Error(err)
			response.InternalError(c)
			return
		}
	}
	response.OK(c, nil)
}
