package handler

import (
	"freenow/internal/service"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Student      *StudentHandler
	Availability *AvailabilityHandler
	Export       *ExportHandler
	Catalog      *CatalogHandler
	Webhook      *WebhookHandler
	Auth         *AuthHandler
}

// Deps Handler 的外部依赖；Catalog、Revoker 可为 nil
type Deps struct {
	Service *service.Service
	Catalog CatalogInvalidator
	Updates UpdateHandler
	Revoker TokenRevoker
}

// NewHandler 创建 Handler 聚合
func NewHandler(d Deps) *Handler {
	return &Handler{
		Student:      NewStudentHandler(d.Service.Timetable),
		Availability: NewAvailabilityHandler(d.Service.Availability),
		Export:       NewExportHandler(d.Service.Export),
		Catalog:      NewCatalogHandler(d.Catalog),
		Webhook:      NewWebhookHandler(d.Updates),
		Auth:         NewAuthHandler(d.Revoker),
	}
}
