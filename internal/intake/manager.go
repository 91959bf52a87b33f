package intake

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Manager 录入会话管理：加载草稿、推进状态机、持久化或清理
type Manager struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewManager 创建 Manager
func NewManager(store Store, logger *zap.Logger) *Manager {
	return &Manager{store: store, logger: logger, now: time.Now}
}

// Begin 开始新的录入；已有草稿时覆盖
func (m *Manager) Begin(ctx context.Context, key Key, scope string) (*Draft, error) {
	d := NewDraft(scope, m.now())
	if err := m.store.Put(ctx, key, d); err != nil {
		return nil, fmt.Errorf("保存录入草稿失败: %w", err)
	}
	m.logger.Debug("开始录入", zap.String("key", key.String()), zap.String("scope", scope))
	return d, nil
}

// Active 返回进行中的草稿
func (m *Manager) Active(ctx context.Context, key Key) (*Draft, bool, error) {
	return m.store.Get(ctx, key)
}

// Handle 推进进行中的草稿
// 无草稿时 active=false；输入非法时返回错误且草稿保持原状态；
// 进入终止状态后草稿从存储中删除，调用方根据返回的 Draft 完成后续动作
func (m *Manager) Handle(ctx context.Context, key Key, input string) (d *Draft, active bool, err error) {
	d, ok, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("读取录入草稿失败: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	if applyErr := d.Apply(input, m.now()); applyErr != nil {
		return d, true, applyErr
	}

	if d.State.Terminal() {
		if err := m.store.Delete(ctx, key); err != nil {
			m.logger.Warn("删除录入草稿失败", zap.String("key", key.String()), zap.Error(err))
		}
		return d, true, nil
	}
	if err := m.store.Put(ctx, key, d); err != nil {
		return nil, true, fmt.Errorf("保存录入草稿失败: %w", err)
	}
	return d, true, nil
}

// Cancel 取消进行中的录入；无草稿时返回 false
func (m *Manager) Cancel(ctx context.Context, key Key) (bool, error) {
	d, ok, err := m.store.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := d.Cancel(m.now()); err != nil {
		return false, err
	}
	return true, m.store.Delete(ctx, key)
}
