package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"freenow/internal/model"
	"freenow/internal/repository"
	"freenow/internal/timetable"
)

// ── 公共业务错误 ──

var (
	ErrUnknownStudent   = errors.New("该群中没有这名学生")
	ErrNoStudents       = errors.New("该群尚未登记任何学生")
	ErrDuplicateStudent = errors.New("同名学生已存在")
	ErrConflict         = errors.New("记录已被并发修改，请重试")
)

// resolveConcurrency 单次查询同时解析的学生数上限
const resolveConcurrency = 8

// resolvedStudent 一名学生的解析结果
// 空课表或部分模块解析失败的学生仍然 usable，失败只记入 warnings；
// usable=false 仅表示存储的课表数据无法读取
type resolvedStudent struct {
	record   model.StudentRecord
	sessions timetable.ResolvedSchedule
	warnings []string
	usable   bool
}

// lookupStudent 按名字查找，不存在时返回 ErrUnknownStudent
func lookupStudent(ctx context.Context, repo *repository.Repository, scope, name string) (*model.StudentRecord, error) {
	rec, err := repo.Student.GetByName(ctx, scope, name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownStudent
		}
		return nil, err
	}
	return rec, nil
}

// resolveStudents 并发解析多名学生，单个学生或模块失败不影响其余
func resolveStudents(ctx context.Context, resolver timetable.Resolver, recs []model.StudentRecord, logger *zap.Logger) []resolvedStudent {
	out := make([]resolvedStudent, len(recs))
	var g errgroup.Group
	g.SetLimit(resolveConcurrency)
	for i := range recs {
		i := i
		g.Go(func() error {
			out[i] = resolveStudent(ctx, resolver, recs[i], logger)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func resolveStudent(ctx context.Context, resolver timetable.Resolver, rec model.StudentRecord, logger *zap.Logger) resolvedStudent {
	rs := resolvedStudent{record: rec}
	schedule := rec.Schedule()
	if schedule == nil {
		rs.warnings = []string{"课表数据无法读取"}
		logger.Warn("课表数据无法读取",
			zap.String("scope", rec.Scope),
			zap.String("student", rec.Name),
		)
		return rs
	}

	sessions, failures := timetable.ResolveSchedule(ctx, resolver, schedule)
	for _, f := range failures {
		rs.warnings = append(rs.warnings, f.Error())
	}
	if len(failures) > 0 {
		logger.Warn("部分课程解析失败",
			zap.String("scope", rec.Scope),
			zap.String("student", rec.Name),
			zap.Int("failures", len(failures)),
			zap.Int("failed_modules", len(timetable.FailedModules(failures))),
		)
	}

	rs.sessions = sessions
	rs.usable = true
	return rs
}
