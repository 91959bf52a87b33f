package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"freenow/internal/dto"
	"freenow/internal/intake"
	"freenow/internal/model"
	"freenow/internal/render"
	"freenow/internal/repository"
	"freenow/internal/timetable"
	pkgerrors "freenow/pkg/errors"
)

// ── TimetableService 接口 ──────────────────────────────────
//
//   - 课表按 (scope, 名字) 唯一，名字不区分大小写
//   - 保存采用整体替换：同名记录存在时以新链接覆盖全部字段
//   - 替换走 version 乐观锁，并发修改返回 ErrConflict
// ─────────────────────────────────────────────────────────────

// TimetableService 学生课表业务接口
type TimetableService interface {
	// SaveStudent 新建或整体替换学生课表
	SaveStudent(ctx context.Context, scope string, req *dto.SaveStudentRequest) (*dto.SaveStudentResponse, error)
	// ListStudents scope 内全部学生，按名字排序
	ListStudents(ctx context.Context, scope string) ([]dto.StudentResponse, error)
	// GetStudent 按名字查询
	GetStudent(ctx context.Context, scope, name string) (*dto.StudentResponse, error)
	// DeleteStudent 按名字删除
	DeleteStudent(ctx context.Context, scope, name string) error
	// DecodeLink 解析分享链接（不落库）
	DecodeLink(link string) (*dto.DecodeLinkResponse, error)
	// ReferencedModules 所有已存课表引用的模块（去重、排序）
	ReferencedModules(ctx context.Context) ([]timetable.ModuleCode, error)
}

type timetableService struct {
	repo      *repository.Repository
	shareBase string
	logger    *zap.Logger
}

// NewTimetableService 创建 TimetableService 实例
func NewTimetableService(repo *repository.Repository, shareBase string, logger *zap.Logger) TimetableService {
	return &timetableService{repo: repo, shareBase: shareBase, logger: logger}
}

// ═══════════════════════════════════════════════════════════
// SaveStudent：新建或整体替换
// ═══════════════════════════════════════════════════════════

func (s *timetableService) SaveStudent(ctx context.Context, scope string, req *dto.SaveStudentRequest) (*dto.SaveStudentResponse, error) {
	// 1. 校验输入
	name, err := intake.ValidateName(req.Name)
	if err != nil {
		return nil, err
	}
	color, err := render.NormalizeColor(req.Color)
	if err != nil {
		return nil, err
	}
	link := strings.TrimSpace(req.ShareLink)
	schedule, err := timetable.Decode(link)
	if err != nil {
		return nil, err
	}

	// 2. 同名记录存在则替换
	existing, err := s.repo.Student.GetByName(ctx, scope, name)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询学生失败", zap.String("scope", scope), zap.Error(err))
		return nil, err
	}

	if existing == nil {
		rec := &model.StudentRecord{Scope: scope, Name: name, Color: color, ShareLink: link}
		rec.SetSchedule(schedule)
		if err := s.repo.Student.Create(ctx, rec); err != nil {
			if errors.Is(err, pkgerrors.ErrDuplicate) {
				return nil, ErrDuplicateStudent
			}
			s.logger.Error("创建学生失败", zap.String("scope", scope), zap.Error(err))
			return nil, err
		}
		s.logger.Info("已登记学生", zap.String("scope", scope), zap.String("name", name), zap.Int("classes", schedule.Count()))
		return &dto.SaveStudentResponse{Student: toStudentResponse(rec)}, nil
	}

	existing.Name = name
	existing.Color = color
	existing.ShareLink = link
	existing.SetSchedule(schedule)
	if err := s.repo.Student.Update(ctx, existing); err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrOptimisticLock):
			return nil, ErrConflict
		case errors.Is(err, pkgerrors.ErrDuplicate):
			return nil, ErrDuplicateStudent
		}
		s.logger.Error("更新学生失败", zap.String("scope", scope), zap.Error(err))
		return nil, err
	}
	s.logger.Info("已替换学生课表", zap.String("scope", scope), zap.String("name", name), zap.Int("version", existing.Version))
	return &dto.SaveStudentResponse{Student: toStudentResponse(existing), Replaced: true}, nil
}

func (s *timetableService) ListStudents(ctx context.Context, scope string) ([]dto.StudentResponse, error) {
	recs, err := s.repo.Student.ListByScope(ctx, scope)
	if err != nil {
		s.logger.Error("查询学生列表失败", zap.String("scope", scope), zap.Error(err))
		return nil, err
	}
	out := make([]dto.StudentResponse, 0, len(recs))
	for i := range recs {
		out = append(out, toStudentResponse(&recs[i]))
	}
	return out, nil
}

func (s *timetableService) GetStudent(ctx context.Context, scope, name string) (*dto.StudentResponse, error) {
	rec, err := lookupStudent(ctx, s.repo, scope, name)
	if err != nil {
		return nil, err
	}
	resp := toStudentResponse(rec)
	return &resp, nil
}

func (s *timetableService) DeleteStudent(ctx context.Context, scope, name string) error {
	if err := s.repo.Student.Delete(ctx, scope, name); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUnknownStudent
		}
		s.logger.Error("删除学生失败", zap.String("scope", scope), zap.Error(err))
		return err
	}
	s.logger.Info("已删除学生", zap.String("scope", scope), zap.String("name", name))
	return nil
}

func (s *timetableService) DecodeLink(link string) (*dto.DecodeLinkResponse, error) {
	schedule, err := timetable.Decode(link)
	if err != nil {
		return nil, err
	}
	canonical := timetable.Encode(schedule)
	if s.shareBase != "" {
		canonical = s.shareBase + "?" + canonical
	}
	return &dto.DecodeLinkResponse{
		Modules:   scheduleView(schedule),
		Classes:   schedule.Count(),
		Canonical: canonical,
	}, nil
}

func (s *timetableService) ReferencedModules(ctx context.Context) ([]timetable.ModuleCode, error) {
	recs, err := s.repo.Student.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	merged := make(timetable.Schedule)
	for i := range recs {
		for m, refs := range recs[i].Schedule() {
			if len(refs) > 0 {
				merged[m] = nil
			}
		}
	}
	return merged.Modules(), nil
}

// ── 转换辅助 ──

func toStudentResponse(rec *model.StudentRecord) dto.StudentResponse {
	schedule := rec.Schedule()
	return dto.StudentResponse{
		ID:        rec.ID,
		Name:      rec.Name,
		Color:     rec.Color,
		ShareLink: rec.ShareLink,
		Timetable: scheduleView(schedule),
		Classes:   schedule.Count(),
		Version:   rec.Version,
		UpdatedAt: rec.UpdatedAt,
	}
}

func scheduleView(s timetable.Schedule) map[string][]string {
	out := make(map[string][]string, len(s))
	for m, refs := range s {
		tokens := make([]string, 0, len(refs))
		for _, r := range refs {
			tokens = append(tokens, r.String())
		}
		out[string(m)] = tokens
	}
	return out
}
