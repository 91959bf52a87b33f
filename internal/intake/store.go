package intake

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Key 草稿按 (会话, 用户) 隔离，群聊中多人可同时录入
type Key struct {
	Chat int64
	User int64
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d", k.Chat, k.User)
}

// Store 草稿存储
type Store interface {
	Get(ctx context.Context, key Key) (*Draft, bool, error)
	Put(ctx context.Context, key Key, d *Draft) error
	Delete(ctx context.Context, key Key) error
}

// ── 内存存储 ──

type memoryItem struct {
	draft   Draft
	expires time.Time
}

// MemoryStore 单实例部署使用，过期草稿在读取时淘汰
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	items map[Key]memoryItem
}

// NewMemoryStore 创建内存存储
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, items: make(map[Key]memoryItem)}
}

func (s *MemoryStore) Get(_ context.Context, key Key) (*Draft, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}
	if !s.now().Before(item.expires) {
		delete(s.items, key)
		return nil, false, nil
	}
	d := item.draft
	return &d, true, nil
}

func (s *MemoryStore) Put(_ context.Context, key Key, d *Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = memoryItem{draft: *d, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// ── Redis 存储 ──

// JSONStore 键值存储，*redis.Client 满足该接口
type JSONStore interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RedisStore 多实例部署使用，草稿 TTL 由 Redis 过期保证
type RedisStore struct {
	kv  JSONStore
	ttl time.Duration
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(kv JSONStore, ttl time.Duration) *RedisStore {
	return &RedisStore{kv: kv, ttl: ttl}
}

func redisKey(key Key) string { return "intake:" + key.String() }

func (s *RedisStore) Get(ctx context.Context, key Key) (*Draft, bool, error) {
	var d Draft
	found, err := s.kv.GetJSON(ctx, redisKey(key), &d)
	if err != nil || !found {
		return nil, false, err
	}
	return &d, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key Key, d *Draft) error {
	return s.kv.SetJSON(ctx, redisKey(key), d, s.ttl)
}

func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	return s.kv.Delete(ctx, redisKey(key))
}
