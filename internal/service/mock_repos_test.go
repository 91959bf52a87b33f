package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"freenow/internal/model"
	"freenow/internal/render"
	"freenow/internal/repository"
	"freenow/internal/timetable"
	pkgerrors "freenow/pkg/errors"
)

// ── Mock StudentRepository ──

type mockStudentRepo struct {
	records   map[string]*model.StudentRecord // key: scope + "|" + name_key
	nextID    int
	listErr   error
	updateErr error
}

func newMockStudentRepo() *mockStudentRepo {
	return &mockStudentRepo{records: make(map[string]*model.StudentRecord)}
}

func studentKey(scope, name string) string { return scope + "|" + model.NameKeyOf(name) }

func (m *mockStudentRepo) Create(_ context.Context, rec *model.StudentRecord) error {
	key := studentKey(rec.Scope, rec.Name)
	if _, ok := m.records[key]; ok {
		return pkgerrors.ErrDuplicate
	}
	if rec.ID == "" {
		m.nextID++
		rec.ID = fmt.Sprintf("stu-%d", m.nextID)
	}
	rec.NameKey = model.NameKeyOf(rec.Name)
	if rec.Version == 0 {
		rec.Version = 1
	}
	cp := *rec
	m.records[key] = &cp
	return nil
}

func (m *mockStudentRepo) GetByName(_ context.Context, scope, name string) (*model.StudentRecord, error) {
	if r, ok := m.records[studentKey(scope, name)]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockStudentRepo) ListByScope(_ context.Context, scope string) ([]model.StudentRecord, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.StudentRecord
	for _, r := range m.records {
		if r.Scope == scope {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NameKey < out[j].NameKey })
	return out, nil
}

func (m *mockStudentRepo) ListAll(_ context.Context) ([]model.StudentRecord, error) {
	var out []model.StudentRecord
	for _, r := range m.records {
		out = append(out, *r)
	}
	return out, nil
}

func (m *mockStudentRepo) Update(_ context.Context, rec *model.StudentRecord) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	for key, r := range m.records {
		if r.ID != rec.ID {
			continue
		}
		if r.Version != rec.Version {
			return pkgerrors.ErrOptimisticLock
		}
		delete(m.records, key)
		rec.Version++
		rec.NameKey = model.NameKeyOf(rec.Name)
		cp := *rec
		m.records[studentKey(rec.Scope, rec.Name)] = &cp
		return nil
	}
	return pkgerrors.ErrOptimisticLock
}

func (m *mockStudentRepo) Delete(_ context.Context, scope, name string) error {
	key := studentKey(scope, name)
	if _, ok := m.records[key]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.records, key)
	return nil
}

// ── Fake Resolver ──

// fakeResolver 以内存目录模拟课程目录；failing 中的模块返回解析失败
type fakeResolver struct {
	catalog map[timetable.ModuleCode][]timetable.ConcreteSession
	failing map[timetable.ModuleCode]bool
}

var errUpstream = errors.New("upstream unavailable")

func (f *fakeResolver) Resolve(_ context.Context, module timetable.ModuleCode) ([]timetable.ConcreteSession, error) {
	if f.failing[module] {
		return nil, timetable.NewResolutionError(module, errUpstream)
	}
	sessions, ok := f.catalog[module]
	if !ok {
		return nil, timetable.NewResolutionError(module, errors.New("module not found"))
	}
	return sessions, nil
}

// ── 测试数据 ──

const testScope = "chat:42"

func cs(module, kind, classNo string, day timetable.Day, start, end timetable.ClockTime) timetable.ConcreteSession {
	return timetable.ConcreteSession{
		Module:  timetable.ModuleCode(module),
		Kind:    timetable.ParseShareCode(kind),
		ClassNo: classNo,
		Day:     day,
		Start:   start,
		End:     end,
		Venue:   "COM1-0210",
	}
}

func newTestResolver() *fakeResolver {
	return &fakeResolver{
		catalog: map[timetable.ModuleCode][]timetable.ConcreteSession{
			"CS1231": {
				cs("CS1231", "TUT", "03", timetable.Monday, timetable.NewClock(10, 0), timetable.NewClock(12, 0)),
				cs("CS1231", "TUT", "04", timetable.Monday, timetable.NewClock(14, 0), timetable.NewClock(16, 0)),
				cs("CS1231", "SEC", "1", timetable.Wednesday, timetable.NewClock(9, 0), timetable.NewClock(11, 0)),
			},
			"MA1521": {
				cs("MA1521", "LEC", "1", timetable.Monday, timetable.NewClock(13, 0), timetable.NewClock(15, 0)),
				cs("MA1521", "LEC", "1", timetable.Thursday, timetable.NewClock(13, 0), timetable.NewClock(15, 0)),
			},
			"GEA1000": {
				cs("GEA1000", "TUT", "E1", timetable.Monday, timetable.NewClock(11, 0), timetable.NewClock(13, 0)),
			},
		},
		failing: map[timetable.ModuleCode]bool{},
	}
}

// fixedClock 2024-09-02 为周一
func fixedClock(hour, minute int) func() time.Time {
	return func() time.Time { return time.Date(2024, 9, 2, hour, minute, 0, 0, time.Local) }
}

func addStudent(repo *mockStudentRepo, name, color, link string) {
	schedule, err := timetable.Decode(link)
	if err != nil {
		panic(err)
	}
	rec := &model.StudentRecord{Scope: testScope, Name: name, Color: color, ShareLink: link}
	rec.SetSchedule(schedule)
	_ = repo.Create(context.Background(), rec)
}

func setupTestRepo() (*repository.Repository, *mockStudentRepo) {
	studentRepo := newMockStudentRepo()
	return &repository.Repository{Student: studentRepo}, studentRepo
}

func newTestRenderer() *render.Renderer {
	return render.NewRenderer(render.Options{}, zap.NewNop())
}
