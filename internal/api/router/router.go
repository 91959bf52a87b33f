package router

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"freenow/config"
	"freenow/internal/api/handler"
	"freenow/internal/api/middleware"
	"freenow/pkg/jwt"
)

// maxBodyBytes REST API 与 webhook 的请求体上限
const maxBodyBytes = 1 << 20

// Pinger 健康检查依赖（数据库、Redis）
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options 路由可选依赖；Redis 未配置时 Blacklist、RateChecker 必须为 nil 接口
type Options struct {
	Blacklist   middleware.TokenBlacklist
	RateChecker middleware.RateChecker
	Health      map[string]Pinger
}

// Setup 初始化并返回 Gin 路由引擎
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, opts Options, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(maxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		checks := gin.H{}
		healthy := true
		for name, p := range opts.Health {
			if err := p.Ping(c.Request.Context()); err != nil {
				checks[name] = err.Error()
				healthy = false
				continue
			}
			checks[name] = "ok"
		}
		if !healthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": checks})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
	})

	// ── Telegram webhook ──
	r.POST("/webhook", middleware.WebhookSecret(cfg.Telegram.WebhookSecret), h.Webhook.Receive)

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.RateLimit(opts.RateChecker, cfg.Server.RateLimit.Limit, cfg.Server.RateLimit.Window))
	v1.Use(middleware.JWTAuth(jwtMgr, opts.Blacklist))
	{
		// 令牌
		auth := v1.Group("/auth")
		{
			auth.GET("/me", h.Auth.Me)
			auth.POST("/revoke", h.Auth.Revoke)
		}

		// 学生课表
		students := v1.Group("/students")
		{
			students.GET("", h.Student.ListStudents)
			students.POST("", h.Student.SaveStudent)
			students.GET("/:name", h.Student.GetStudent)
			students.DELETE("/:name", h.Student.DeleteStudent)
		}
		v1.POST("/decode", h.Student.DecodeLink)

		// 空闲查询
		availability := v1.Group("/availability")
		{
			availability.GET("/now", h.Availability.FreeNow)
			availability.GET("/until", h.Availability.FreeUntil)
			availability.GET("/when/:name", h.Availability.FreeWhen)
		}

		// 导出
		export := v1.Group("/export")
		{
			export.GET("/png", h.Export.ExportPNG)
			export.GET("/xlsx", h.Export.ExportXLSX)
			export.GET("/ics/:name", h.Export.ExportICS)
		}

		// 课程目录缓存
		catalog := v1.Group("/catalog")
		{
			catalog.GET("", h.Catalog.ListCached)
			catalog.POST("/purge", h.Catalog.Purge)
			catalog.POST("/:module/invalidate", h.Catalog.Invalidate)
		}
	}

	return r
}
