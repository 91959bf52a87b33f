package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"freenow/internal/model"
	pkgerrors "freenow/pkg/errors"
)

// StudentRepository 学生课表数据访问接口
type StudentRepository interface {
	Create(ctx context.Context, rec *model.StudentRecord) error
	GetByName(ctx context.Context, scope, name string) (*model.StudentRecord, error)
	ListByScope(ctx context.Context, scope string) ([]model.StudentRecord, error)
	ListAll(ctx context.Context) ([]model.StudentRecord, error)
	Update(ctx context.Context, rec *model.StudentRecord) error
	Delete(ctx context.Context, scope, name string) error
}

type studentRepo struct {
	db *gorm.DB
}

// NewStudentRepo 创建 StudentRepository 实例
func NewStudentRepo(db *gorm.DB) StudentRepository {
	return &studentRepo{db: db}
}

func (r *studentRepo) Create(ctx context.Context, rec *model.StudentRecord) error {
	err := r.db.WithContext(ctx).Create(rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return pkgerrors.ErrDuplicate
	}
	return err
}

// GetByName 名字不区分大小写；不存在时返回 gorm.ErrRecordNotFound
func (r *studentRepo) GetByName(ctx context.Context, scope, name string) (*model.StudentRecord, error) {
	var rec model.StudentRecord
	err := r.db.WithContext(ctx).
		Where("scope = ? AND name_key = ?", scope, model.NameKeyOf(name)).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *studentRepo) ListByScope(ctx context.Context, scope string) ([]model.StudentRecord, error) {
	var recs []model.StudentRecord
	err := r.db.WithContext(ctx).
		Where("scope = ?", scope).
		Order("name_key ASC").
		Find(&recs).Error
	return recs, err
}

func (r *studentRepo) ListAll(ctx context.Context) ([]model.StudentRecord, error) {
	var recs []model.StudentRecord
	err := r.db.WithContext(ctx).
		Order("scope ASC, name_key ASC").
		Find(&recs).Error
	return recs, err
}

// Update 整体替换 name/color/share_link/timetable，按 version 做乐观锁
func (r *studentRepo) Update(ctx context.Context, rec *model.StudentRecord) error {
	oldVersion := rec.Version
	result := r.db.WithContext(ctx).
		Model(&model.StudentRecord{}).
		Where("id = ? AND version = ?", rec.ID, oldVersion).
		Updates(map[string]interface{}{
			"name":       rec.Name,
			"name_key":   model.NameKeyOf(rec.Name),
			"color":      rec.Color,
			"share_link": rec.ShareLink,
			"timetable":  rec.Timetable,
			"version":    oldVersion + 1,
		})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return pkgerrors.ErrDuplicate
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	rec.Version = oldVersion + 1
	return nil
}

// Delete 不存在时返回 gorm.ErrRecordNotFound
func (r *studentRepo) Delete(ctx context.Context, scope, name string) error {
	result := r.db.WithContext(ctx).
		Where("scope = ? AND name_key = ?", scope, model.NameKeyOf(name)).
		Delete(&model.StudentRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
