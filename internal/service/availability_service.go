package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"freenow/internal/dto"
	"freenow/internal/repository"
	"freenow/internal/timetable"
)

// 学生状态类型
const (
	KindBusy         = "busy"
	KindFreeUntil    = "free_until"
	KindFree         = "free"
	KindUnresolvable = "unresolvable"
)

// AvailabilityService 空闲查询业务接口
//
// scope 为群聊标识；每名学生独立解析，解析失败的模块以 warnings 返回，
// 只有存储的课表无法读取的学生标记为 unresolvable，不影响其他学生的结果。
type AvailabilityService interface {
	// FreeNow 当前空闲的学生
	FreeNow(ctx context.Context, scope string) (*dto.AvailabilityResponse, error)
	// FreeUntil 每名学生空闲到何时 / 忙到何时
	FreeUntil(ctx context.Context, scope string) (*dto.AvailabilityResponse, error)
	// FreeWhen 指定学生下一次空闲
	FreeWhen(ctx context.Context, scope, name string) (*dto.FreeWhenResponse, error)
}

type availabilityService struct {
	repo     *repository.Repository
	resolver timetable.Resolver
	now      func() time.Time
	logger   *zap.Logger
}

// NewAvailabilityService 创建 AvailabilityService 实例
func NewAvailabilityService(repo *repository.Repository, resolver timetable.Resolver, now func() time.Time, logger *zap.Logger) AvailabilityService {
	if now == nil {
		now = time.Now
	}
	return &availabilityService{repo: repo, resolver: resolver, now: now, logger: logger}
}

func (s *availabilityService) FreeNow(ctx context.Context, scope string) (*dto.AvailabilityResponse, error) {
	return s.snapshot(ctx, scope, func(rs timetable.ResolvedSchedule, at timetable.Instant) dto.StudentStatus {
		if timetable.IsFreeAt(rs, at) {
			return dto.StudentStatus{Free: true, Kind: KindFree, Summary: "free"}
		}
		return dto.StudentStatus{Kind: KindBusy, Summary: "busy"}
	})
}

func (s *availabilityService) FreeUntil(ctx context.Context, scope string) (*dto.AvailabilityResponse, error) {
	return s.snapshot(ctx, scope, func(rs timetable.ResolvedSchedule, at timetable.Instant) dto.StudentStatus {
		return untilStatus(timetable.FreeUntil(rs, at))
	})
}

// snapshot 在同一查询时刻对 scope 内全部学生求值
func (s *availabilityService) snapshot(
	ctx context.Context,
	scope string,
	eval func(timetable.ResolvedSchedule, timetable.Instant) dto.StudentStatus,
) (*dto.AvailabilityResponse, error) {
	at := timetable.InstantOf(s.now())

	recs, err := s.repo.Student.ListByScope(ctx, scope)
	if err != nil {
		s.logger.Error("查询学生列表失败", zap.String("scope", scope), zap.Error(err))
		return nil, err
	}

	resp := &dto.AvailabilityResponse{
		At:       at.Day.String() + " " + at.Time.Colon(),
		Free:     []string{},
		Students: make([]dto.StudentStatus, 0, len(recs)),
	}
	usable := make(map[string]timetable.ResolvedSchedule, len(recs))

	for _, r := range resolveStudents(ctx, s.resolver, recs, s.logger) {
		st := unresolvableStatus()
		if r.usable {
			st = eval(r.sessions, at)
			usable[r.record.Name] = r.sessions
		}
		st.Name = r.record.Name
		st.Color = r.record.Color
		st.Warnings = r.warnings
		resp.Students = append(resp.Students, st)
	}
	resp.Free = append(resp.Free, timetable.AllFreeNow(usable, at)...)
	return resp, nil
}

func (s *availabilityService) FreeWhen(ctx context.Context, scope, name string) (*dto.FreeWhenResponse, error) {
	at := timetable.InstantOf(s.now())

	rec, err := lookupStudent(ctx, s.repo, scope, name)
	if err != nil {
		return nil, err
	}

	r := resolveStudent(ctx, s.resolver, *rec, s.logger)
	st := unresolvableStatus()
	if r.usable {
		st = nextStatus(timetable.NextFree(r.sessions, at))
	}
	st.Name = rec.Name
	st.Color = rec.Color
	st.Warnings = r.warnings

	return &dto.FreeWhenResponse{
		At:      at.Day.String() + " " + at.Time.Colon(),
		Student: st,
	}, nil
}

// ── 结果映射 ──

func untilStatus(r timetable.FreeUntilResult) dto.StudentStatus {
	st := dto.StudentStatus{Free: r.Free(), Summary: r.String()}
	switch r.Kind {
	case timetable.UntilBusy:
		st.Kind, st.Time = KindBusy, r.Time.Colon()
	case timetable.UntilNextStart:
		st.Kind, st.Time = KindFreeUntil, r.Time.Colon()
	default:
		st.Kind = KindFree
	}
	return st
}

func nextStatus(r timetable.NextFreeResult) dto.StudentStatus {
	st := dto.StudentStatus{Summary: r.String()}
	switch r.Kind {
	case timetable.NextBusyUntil:
		st.Kind, st.Time = KindBusy, r.Time.Colon()
	case timetable.NextFreeUntil:
		st.Free, st.Kind, st.Time = true, KindFreeUntil, r.Time.Colon()
	default:
		st.Free, st.Kind = true, KindFree
	}
	return st
}

func unresolvableStatus() dto.StudentStatus {
	return dto.StudentStatus{Kind: KindUnresolvable, Summary: "timetable could not be resolved"}
}
