package service

import (
	"time"

	"go.uber.org/zap"

	"freenow/internal/render"
	"freenow/internal/repository"
	"freenow/internal/timetable"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Availability AvailabilityService
	Timetable    TimetableService
	Export       ExportService
}

// Deps 构建 Service 所需的依赖
type Deps struct {
	Repo     *repository.Repository
	Resolver timetable.Resolver
	Renderer *render.Renderer
	Logger   *zap.Logger
	// Clock 为 nil 时使用 time.Now
	Clock func() time.Time
	// ShareBase 分享链接前缀，用于生成规范化链接
	ShareBase string
}

// NewService 创建 Service 聚合
func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return &Service{
		Availability: NewAvailabilityService(d.Repo, d.Resolver, d.Clock, d.Logger),
		Timetable:    NewTimetableService(d.Repo, d.ShareBase, d.Logger),
		Export:       NewExportService(d.Repo, d.Resolver, d.Renderer, d.Clock, d.Logger),
	}
}
