package job

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"freenow/internal/timetable"
)

// ModuleSource 列出需要预热的模块，TimetableService 满足该接口
type ModuleSource interface {
	ReferencedModules(ctx context.Context) ([]timetable.ModuleCode, error)
}

// Refresher 强制刷新单个模块，*catalog.Cache 满足该接口
type Refresher interface {
	Refresh(ctx context.Context, module timetable.ModuleCode) error
}

// WarmResult 一次预热的统计
type WarmResult struct {
	Refreshed int
	Failed    []timetable.ModuleCode
}

// Warmer 课程目录缓存预热：逐个刷新已存课表引用的模块
type Warmer struct {
	source  ModuleSource
	cache   Refresher
	timeout time.Duration
	logger  *zap.Logger
}

// NewWarmer 创建 Warmer；timeout 为整轮预热的上限
func NewWarmer(source ModuleSource, cache Refresher, timeout time.Duration, logger *zap.Logger) *Warmer {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Warmer{source: source, cache: cache, timeout: timeout, logger: logger}
}

// Run 执行一轮预热；单个模块失败只记录，不中断
func (w *Warmer) Run(ctx context.Context) (*WarmResult, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	modules, err := w.source.ReferencedModules(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询引用模块失败: %w", err)
	}

	res := &WarmResult{}
	for _, m := range modules {
		if ctx.Err() != nil {
			w.logger.Warn("预热超时，剩余模块跳过", zap.Int("remaining", len(modules)-res.Refreshed-len(res.Failed)))
			break
		}
		if err := w.cache.Refresh(ctx, m); err != nil {
			w.logger.Warn("模块预热失败", zap.String("module", string(m)), zap.Error(err))
			res.Failed = append(res.Failed, m)
			continue
		}
		res.Refreshed++
	}
	w.logger.Info("课程目录预热完成",
		zap.Int("modules", len(modules)),
		zap.Int("refreshed", res.Refreshed),
		zap.Int("failed", len(res.Failed)),
	)
	return res, nil
}

// ── 定时调度 ──

// Scheduler 基于 cron 的定时任务
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// NewScheduler 按 spec（含秒字段）注册预热任务；上一轮未结束时跳过本轮
func NewScheduler(spec string, w *Warmer, logger *zap.Logger) (*Scheduler, error) {
	cl := cronLogger{logger: logger.Named("cron")}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(spec, func() {
		if _, err := w.Run(context.Background()); err != nil {
			logger.Error("课程目录预热失败", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("注册预热任务失败 (%s): %w", spec, err)
	}
	return &Scheduler{cron: c, logger: logger}, nil
}

// Start 启动调度
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("定时任务已启动", zap.Int("entries", len(s.cron.Entries())))
}

// Stop 停止调度并等待运行中的任务结束
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("等待定时任务结束超时")
	}
}

// cronLogger 将 cron 日志接到 zap
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
