package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"freenow/internal/timetable"
)

// SharedStore 二级共享缓存，*redis.Client 满足该接口
type SharedStore interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
}

// CacheOptions 缓存参数
type CacheOptions struct {
	TTL       time.Duration
	Namespace string // 二级缓存键前缀，通常为 学年:学期
}

type cacheEntry struct {
	sessions []timetable.ConcreteSession
	expires  time.Time
}

// ── 读穿透缓存 ───────────────────────────────────────────
//
//   L1: 进程内 map（RWMutex），存转换后的时段
//   L2: 可选 Redis，存原始课表条目（JSON），多实例共享
//   源: Fetcher（NUSMods API）
//
// 同一模块的并发未命中经 singleflight 合并为一次外呼。
// 失败结果不缓存；并发写入以最后一次为准。
// ─────────────────────────────────────────────────────────────

// Cache 实现 timetable.Resolver
type Cache struct {
	fetcher   Fetcher
	shared    SharedStore
	ttl       time.Duration
	namespace string
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.RWMutex
	entries map[timetable.ModuleCode]cacheEntry
	group   singleflight.Group
}

var _ timetable.Resolver = (*Cache)(nil)

// NewCache 创建缓存；shared 为 nil 时只使用 L1
func NewCache(fetcher Fetcher, shared SharedStore, opts CacheOptions, logger *zap.Logger) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = 6 * time.Hour
	}
	return &Cache{
		fetcher:   fetcher,
		shared:    shared,
		ttl:       opts.TTL,
		namespace: opts.Namespace,
		logger:    logger,
		now:       time.Now,
		entries:   make(map[timetable.ModuleCode]cacheEntry),
	}
}

// Resolve 返回模块的全部时段；失败时返回 *timetable.ResolutionError
// 返回的切片为缓存共享数据，调用方只读
func (c *Cache) Resolve(ctx context.Context, module timetable.ModuleCode) ([]timetable.ConcreteSession, error) {
	module = timetable.NormalizeModuleCode(string(module))
	if sessions, ok := c.getL1(module); ok {
		return sessions, nil
	}

	// 合并后的请求不受单个调用方取消影响
	ch := c.group.DoChan(string(module), func() (interface{}, error) {
		return c.load(context.WithoutCancel(ctx), module)
	})

	select {
	case <-ctx.Done():
		return nil, timetable.NewResolutionError(module, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, timetable.NewResolutionError(module, res.Err)
		}
		return res.Val.([]timetable.ConcreteSession), nil
	}
}

func (c *Cache) load(ctx context.Context, module timetable.ModuleCode) ([]timetable.ConcreteSession, error) {
	if sessions, ok := c.getL1(module); ok {
		return sessions, nil
	}

	if c.shared != nil {
		var lessons []Lesson
		found, err := c.shared.GetJSON(ctx, c.sharedKey(module), &lessons)
		if err != nil {
			c.logger.Warn("读取二级缓存失败", zap.String("module", string(module)), zap.Error(err))
		} else if found {
			sessions := ToSessions(module, lessons, c.logger)
			c.setL1(module, sessions)
			return sessions, nil
		}
	}

	return c.fetchAndStore(ctx, module)
}

func (c *Cache) fetchAndStore(ctx context.Context, module timetable.ModuleCode) ([]timetable.ConcreteSession, error) {
	lessons, err := c.fetcher.Fetch(ctx, module)
	if err != nil {
		c.logger.Warn("拉取课程目录失败", zap.String("module", string(module)), zap.Error(err))
		return nil, err
	}

	sessions := ToSessions(module, lessons, c.logger)
	c.setL1(module, sessions)
	if c.shared != nil {
		if err := c.shared.SetJSON(ctx, c.sharedKey(module), lessons, c.ttl); err != nil {
			c.logger.Warn("写入二级缓存失败", zap.String("module", string(module)), zap.Error(err))
		}
	}
	c.logger.Debug("课程目录已缓存", zap.String("module", string(module)), zap.Int("sessions", len(sessions)))
	return sessions, nil
}

// Refresh 绕过缓存重新拉取并覆盖两级缓存，供定时预热使用
func (c *Cache) Refresh(ctx context.Context, module timetable.ModuleCode) error {
	module = timetable.NormalizeModuleCode(string(module))
	_, err, _ := c.group.Do("refresh:"+string(module), func() (interface{}, error) {
		return c.fetchAndStore(ctx, module)
	})
	if err != nil {
		return timetable.NewResolutionError(module, err)
	}
	return nil
}

// Invalidate 删除单个模块的两级缓存
func (c *Cache) Invalidate(ctx context.Context, module timetable.ModuleCode) error {
	module = timetable.NormalizeModuleCode(string(module))
	c.mu.Lock()
	delete(c.entries, module)
	c.mu.Unlock()

	if c.shared != nil {
		return c.shared.Delete(ctx, c.sharedKey(module))
	}
	return nil
}

// Purge 清空全部缓存
func (c *Cache) Purge(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[timetable.ModuleCode]cacheEntry)
	c.mu.Unlock()

	if c.shared != nil {
		n, err := c.shared.DeleteByPrefix(ctx, c.sharedPrefix())
		if err != nil {
			return err
		}
		c.logger.Info("二级缓存已清空", zap.Int("keys", n))
	}
	return nil
}

// Cached 当前 L1 中未过期的模块（字典序）
func (c *Cache) Cached() []timetable.ModuleCode {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	mods := make([]timetable.ModuleCode, 0, len(c.entries))
	for m, e := range c.entries {
		if now.Before(e.expires) {
			mods = append(mods, m)
		}
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i] < mods[j] })
	return mods
}

func (c *Cache) getL1(module timetable.ModuleCode) ([]timetable.ConcreteSession, bool) {
	c.mu.RLock()
	e, ok := c.entries[module]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expires) {
		return nil, false
	}
	return e.sessions, true
}

func (c *Cache) setL1(module timetable.ModuleCode, sessions []timetable.ConcreteSession) {
	c.mu.Lock()
	c.entries[module] = cacheEntry{sessions: sessions, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Cache) sharedPrefix() string {
	return "catalog:" + c.namespace + ":"
}

func (c *Cache) sharedKey(module timetable.ModuleCode) string {
	return c.sharedPrefix() + string(module)
}
