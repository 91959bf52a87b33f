package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"freenow/internal/timetable"
)

// ── 测试替身 ──

type fakeFetcher struct {
	calls   atomic.Int32
	delay   time.Duration
	lessons map[timetable.ModuleCode][]Lesson
	err     error
}

func (f *fakeFetcher) Fetch(ctx context.Context, module timetable.ModuleCode) ([]Lesson, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	l, ok := f.lessons[module]
	if !ok {
		return nil, ErrModuleNotFound
	}
	return l, nil
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryStore() *memoryStore { return &memoryStore{data: map[string][]byte{}} }

func (m *memoryStore) GetJSON(_ context.Context, key string, dst interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (m *memoryStore) SetJSON(_ context.Context, key string, v interface{}, _ time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = b
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) DeleteByPrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func sampleLessons() map[timetable.ModuleCode][]Lesson {
	return map[timetable.ModuleCode][]Lesson{
		"CS1231": {
			{ClassNo: "03", StartTime: "1000", EndTime: "1100", Day: "Monday", LessonType: "Tutorial"},
			{ClassNo: "1", StartTime: "1400", EndTime: "1600", Day: "Wednesday", LessonType: "Sectional Teaching"},
		},
	}
}

// ── 用例 ──

func TestCache_HitAfterMiss(t *testing.T) {
	f := &fakeFetcher{lessons: sampleLessons()}
	c := NewCache(f, nil, CacheOptions{TTL: time.Hour}, zap.NewNop())
	ctx := context.Background()

	first, err := c.Resolve(ctx, "cs1231")
	require.NoError(t, err)
	second, err := c.Resolve(ctx, "CS1231")
	require.NoError(t, err)

	assert.Len(t, first, 2)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), f.calls.Load(), "第二次应命中 L1")
	assert.Equal(t, []timetable.ModuleCode{"CS1231"}, c.Cached())
}

func TestCache_Expiry(t *testing.T) {
	f := &fakeFetcher{lessons: sampleLessons()}
	c := NewCache(f, nil, CacheOptions{TTL: time.Minute}, zap.NewNop())
	now := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err := c.Resolve(context.Background(), "CS1231")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = c.Resolve(context.Background(), "CS1231")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.calls.Load(), "过期后应重新拉取")
}

func TestCache_FailureNotCached(t *testing.T) {
	f := &fakeFetcher{lessons: sampleLessons()}
	c := NewCache(f, nil, CacheOptions{TTL: time.Hour}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		sessions, err := c.Resolve(ctx, "XX9999")
		assert.Nil(t, sessions)
		assert.True(t, errors.Is(err, timetable.ErrResolutionFailure))
		assert.True(t, errors.Is(err, ErrModuleNotFound))
	}
	assert.Equal(t, int32(2), f.calls.Load(), "失败结果不应缓存")
}

func TestCache_SingleflightDedup(t *testing.T) {
	f := &fakeFetcher{lessons: sampleLessons(), delay: 50 * time.Millisecond}
	c := NewCache(f, nil, CacheOptions{TTL: time.Hour}, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Resolve(context.Background(), "CS1231")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), f.calls.Load(), "并发未命中应合并为一次外呼")
}

func TestCache_CallerCancelDoesNotPoisonOthers(t *testing.T) {
	f := &fakeFetcher{lessons: sampleLessons(), delay: 50 * time.Millisecond}
	c := NewCache(f, nil, CacheOptions{TTL: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Resolve(ctx, "CS1231")
	assert.True(t, errors.Is(err, timetable.ErrResolutionFailure))

	sessions, err := c.Resolve(context.Background(), "CS1231")
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestCache_SharedStorePromotion(t *testing.T) {
	store := newMemoryStore()
	f := &fakeFetcher{lessons: sampleLessons()}
	opts := CacheOptions{TTL: time.Hour, Namespace: "2024-2025:1"}

	// 实例 A 拉取后写入 L2
	a := NewCache(f, store, opts, zap.NewNop())
	_, err := a.Resolve(context.Background(), "CS1231")
	require.NoError(t, err)
	_, ok := store.data["catalog:2024-2025:1:CS1231"]
	assert.True(t, ok, "应写入二级缓存")

	// 实例 B 直接命中 L2
	b := NewCache(f, store, opts, zap.NewNop())
	sessions, err := b.Resolve(context.Background(), "CS1231")
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
	assert.Equal(t, int32(1), f.calls.Load(), "实例 B 不应再次外呼")
	assert.Equal(t, timetable.CategorySectionalTeaching, sessions[1].Kind.Category)
}

func TestCache_InvalidateAndPurge(t *testing.T) {
	store := newMemoryStore()
	f := &fakeFetcher{lessons: sampleLessons()}
	c := NewCache(f, store, CacheOptions{TTL: time.Hour, Namespace: "ns"}, zap.NewNop())
	ctx := context.Background()

	_, err := c.Resolve(ctx, "CS1231")
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, "cs1231"))
	assert.Empty(t, c.Cached())
	assert.Empty(t, store.data)

	_, err = c.Resolve(ctx, "CS1231")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.calls.Load())

	require.NoError(t, c.Purge(ctx))
	assert.Empty(t, c.Cached())
	assert.Empty(t, store.data)
}

func TestCache_Refresh(t *testing.T) {
	f := &fakeFetcher{lessons: sampleLessons()}
	c := NewCache(f, nil, CacheOptions{TTL: time.Hour}, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, c.Refresh(ctx, "CS1231"))
	require.NoError(t, c.Refresh(ctx, "CS1231"))
	assert.Equal(t, int32(2), f.calls.Load(), "Refresh 应绕过缓存")

	_, err := c.Resolve(ctx, "CS1231")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.calls.Load(), "Refresh 后 Resolve 应命中")

	err = c.Refresh(ctx, "XX9999")
	assert.True(t, errors.Is(err, timetable.ErrResolutionFailure))
}

func TestToSessions_DropsMalformed(t *testing.T) {
	lessons := []Lesson{
		{ClassNo: "1", StartTime: "1000", EndTime: "1200", Day: "Monday", LessonType: "Lecture"},
		{ClassNo: "2", StartTime: "1200", EndTime: "1000", Day: "Monday", LessonType: "Lecture"},  // start > end
		{ClassNo: "3", StartTime: "1000", EndTime: "1000", Day: "Monday", LessonType: "Lecture"},  // start == end
		{ClassNo: "4", StartTime: "10:00", EndTime: "1200", Day: "Monday", LessonType: "Lecture"}, // 非 HHMM
		{ClassNo: "5", StartTime: "1000", EndTime: "1200", Day: "Someday", LessonType: "Lecture"},
		{ClassNo: "6", StartTime: "1800", EndTime: "2400", Day: "saturday", LessonType: "Tutorial Type 2"},
	}
	sessions := ToSessions("CS2040", lessons, zap.NewNop())
	require.Len(t, sessions, 2)
	assert.Equal(t, "1", sessions[0].ClassNo)
	assert.Equal(t, timetable.Saturday, sessions[1].Day)
	assert.Equal(t, timetable.EndOfDay, sessions[1].End)
	assert.Equal(t, "2", sessions[1].Kind.Variant)

	_, err := ToSession("CS2040", lessons[1])
	assert.True(t, errors.Is(err, timetable.ErrMalformedSession))
	_, err = ToSession("CS2040", lessons[4])
	assert.True(t, errors.Is(err, timetable.ErrMalformedSession))
}
