package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"sort"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"freenow/internal/render"
	"freenow/internal/repository"
	"freenow/internal/timetable"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoSessions   = errors.New("没有可导出的课程时段")
	ErrExportGenerateFail = errors.New("生成导出文件失败")
)

// 导出文件类型
const (
	ContentTypePNG  = "image/png"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeICS  = "text/calendar; charset=utf-8"
)

// ExportFile 导出结果；Warnings 为解析失败的模块等非致命问题
type ExportFile struct {
	Data        []byte
	Filename    string
	ContentType string
	Warnings    []string
}

// ExportService 导出业务接口
//
//   - PNG：所有学生叠加在同一张网格图
//   - XLSX：按 (星期, 时间段) 行 × 学生列 的总表，外加逐条明细表
//   - ICS：单名学生的每周重复日历
type ExportService interface {
	RenderPNG(ctx context.Context, scope string) (*ExportFile, error)
	ExportXLSX(ctx context.Context, scope string) (*ExportFile, error)
	ExportICS(ctx context.Context, scope, name string) (*ExportFile, error)
}

type exportService struct {
	repo     *repository.Repository
	resolver timetable.Resolver
	renderer *render.Renderer
	now      func() time.Time
	logger   *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, resolver timetable.Resolver, renderer *render.Renderer, now func() time.Time, logger *zap.Logger) ExportService {
	if now == nil {
		now = time.Now
	}
	return &exportService{repo: repo, resolver: resolver, renderer: renderer, now: now, logger: logger}
}

// loadScope 解析 scope 内所有可用学生；一个都没有时返回 ErrNoStudents
func (s *exportService) loadScope(ctx context.Context, scope string) ([]resolvedStudent, []string, error) {
	recs, err := s.repo.Student.ListByScope(ctx, scope)
	if err != nil {
		s.logger.Error("查询学生列表失败", zap.String("scope", scope), zap.Error(err))
		return nil, nil, err
	}
	if len(recs) == 0 {
		return nil, nil, ErrNoStudents
	}

	var (
		usable   []resolvedStudent
		warnings []string
	)
	for _, r := range resolveStudents(ctx, s.resolver, recs, s.logger) {
		for _, w := range r.warnings {
			warnings = append(warnings, r.record.Name+": "+w)
		}
		if r.usable {
			usable = append(usable, r)
		}
	}
	return usable, warnings, nil
}

// ═══════════════════════════════════════════════════════════
// RenderPNG：合并网格图
// ═══════════════════════════════════════════════════════════

func (s *exportService) RenderPNG(ctx context.Context, scope string) (*ExportFile, error) {
	students, warnings, err := s.loadScope(ctx, scope)
	if err != nil {
		return nil, err
	}

	layers := make([]render.Layer, 0, len(students))
	for _, st := range students {
		layers = append(layers, render.Layer{
			Name:     st.record.Name,
			Color:    s.layerColor(st.record.Name, st.record.Color),
			Sessions: st.sessions,
		})
	}

	data, err := s.renderer.RenderPNG(layers)
	if err != nil {
		if errors.Is(err, render.ErrNothingToRender) {
			return nil, ErrExportNoSessions
		}
		s.logger.Error("渲染课表失败", zap.String("scope", scope), zap.Error(err))
		return nil, ErrExportGenerateFail
	}
	return &ExportFile{Data: data, Filename: "timetable.png", ContentType: ContentTypePNG, Warnings: warnings}, nil
}

func (s *exportService) layerColor(name, value string) color.NRGBA {
	c, err := render.ParseColor(value)
	if err != nil {
		s.logger.Warn("学生颜色非法，使用灰色", zap.String("student", name), zap.String("color", value))
		c, _ = render.ParseColor("gray")
	}
	return c
}

// ═══════════════════════════════════════════════════════════
// ExportXLSX：总表 + 明细
// ═══════════════════════════════════════════════════════════
//
// 总表 "Timetable"：
//   - 行：每天出现过的 (开始, 结束) 时间段，按星期 + 开始时间排序
//   - 列：星期 | 时间 | 学生1 | 学生2 ...
//   - 单元格：与该时间段重叠的课程 "MODULE KIND"，以学生颜色填充
//
// 明细表 "Sessions"：学生 | 模块 | 类型 | 班级 | 星期 | 开始 | 结束 | 地点

const (
	sheetGrid     = "Timetable"
	sheetSessions = "Sessions"
)

type slotRow struct {
	day        timetable.Day
	start, end timetable.ClockTime
}

func (s *exportService) ExportXLSX(ctx context.Context, scope string) (*ExportFile, error) {
	students, warnings, err := s.loadScope(ctx, scope)
	if err != nil {
		return nil, err
	}

	// 1. 收集唯一时间段
	seen := make(map[slotRow]bool)
	var rows []slotRow
	for _, st := range students {
		for _, cs := range st.sessions {
			key := slotRow{day: cs.Day, start: cs.Start, end: cs.End}
			if !seen[key] {
				seen[key] = true
				rows = append(rows, key)
			}
		}
	}
	if len(rows) == 0 {
		return nil, ErrExportNoSessions
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].day != rows[j].day {
			return rows[i].day < rows[j].day
		}
		if rows[i].start != rows[j].start {
			return rows[i].start < rows[j].start
		}
		return rows[i].end < rows[j].end
	})

	// 2. 生成 Excel
	f := excelize.NewFile()
	defer f.Close()

	idx, _ := f.NewSheet(sheetGrid)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")
	f.NewSheet(sheetSessions)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	f.SetColWidth(sheetGrid, "A", "A", 12)
	f.SetColWidth(sheetGrid, "B", "B", 14)
	f.SetCellValue(sheetGrid, "A1", "Day")
	f.SetCellValue(sheetGrid, "B1", "Time")
	for i, st := range students {
		col := colName(3 + i)
		f.SetColWidth(sheetGrid, col, col, 22)
		f.SetCellValue(sheetGrid, cell(col, 1), st.record.Name)
	}
	f.SetCellStyle(sheetGrid, "A1", cell(colName(2+len(students)), 1), headerStyle)

	studentStyles := make([]int, len(students))
	for i, st := range students {
		c := s.layerColor(st.record.Name, st.record.Color)
		studentStyles[i], _ = f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{hexOf(c)}, Pattern: 1},
			Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		})
	}

	for r, row := range rows {
		line := r + 2
		f.SetCellValue(sheetGrid, cell("A", line), row.day.String())
		f.SetCellValue(sheetGrid, cell("B", line), row.start.Colon()+"-"+row.end.Colon())
		for i, st := range students {
			col := colName(3 + i)
			labels := overlapping(st.sessions, row)
			if len(labels) == 0 {
				f.SetCellValue(sheetGrid, cell(col, line), "-")
				continue
			}
			f.SetCellValue(sheetGrid, cell(col, line), strings.Join(labels, "\n"))
			f.SetCellStyle(sheetGrid, cell(col, line), cell(col, line), studentStyles[i])
		}
	}

	// 3. 明细表
	headers := []string{"Student", "Module", "Kind", "Class", "Day", "Start", "End", "Venue"}
	for i, h := range headers {
		f.SetCellValue(sheetSessions, cell(colName(1+i), 1), h)
	}
	f.SetCellStyle(sheetSessions, "A1", cell(colName(len(headers)), 1), headerStyle)
	line := 2
	for _, st := range students {
		for _, cs := range st.sessions.Sorted() {
			values := []interface{}{
				st.record.Name, string(cs.Module), cs.Kind.String(), cs.ClassNo,
				cs.Day.String(), cs.Start.Colon(), cs.End.Colon(), cs.Venue,
			}
			for i, v := range values {
				f.SetCellValue(sheetSessions, cell(colName(1+i), line), v)
			}
			line++
		}
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, ErrExportGenerateFail
	}
	return &ExportFile{Data: buf.Bytes(), Filename: "timetable.xlsx", ContentType: ContentTypeXLSX, Warnings: warnings}, nil
}

// overlapping 与时间段重叠的课程标签
func overlapping(rs timetable.ResolvedSchedule, row slotRow) []string {
	var labels []string
	for _, cs := range rs {
		if cs.Day == row.day && cs.Start < row.end && row.start < cs.End {
			labels = append(labels, string(cs.Module)+" "+cs.Kind.Code())
		}
	}
	sort.Strings(labels)
	return labels
}

// ═══════════════════════════════════════════════════════════
// ExportICS：单名学生的每周重复日历
// ═══════════════════════════════════════════════════════════
//
// 每个时段一个 VEVENT：DTSTART 为从今天起该星期几的第一次出现，
// RRULE:FREQ=WEEKLY 无结束，不区分教学周。

const icsProductID = "-//freenow//timetable//EN"

func (s *exportService) ExportICS(ctx context.Context, scope, name string) (*ExportFile, error) {
	rec, err := lookupStudent(ctx, s.repo, scope, name)
	if err != nil {
		return nil, err
	}
	r := resolveStudent(ctx, s.resolver, *rec, s.logger)
	if !r.usable || len(r.sessions) == 0 {
		return nil, ErrExportNoSessions
	}

	now := s.now()
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(icsProductID)
	cal.SetName(rec.Name)

	for _, cs := range r.sessions.Sorted() {
		start := firstOccurrence(now, cs.Day, cs.Start)
		end := start.Add(time.Duration(cs.End-cs.Start) * time.Minute)

		uid := fmt.Sprintf("%s-%s-%s-%d-%s@freenow", rec.ID, cs.Module, cs.Kind.Code(), int(cs.Day), cs.Start)
		event := cal.AddEvent(uid)
		event.SetDtStampTime(now)
		event.SetStartAt(start)
		event.SetEndAt(end)
		event.SetSummary(fmt.Sprintf("%s %s", cs.Module, cs.Kind.String()))
		event.SetDescription(fmt.Sprintf("%s %s", cs.Module, cs.Reference()))
		if cs.Venue != "" {
			event.SetLocation(cs.Venue)
		}
		event.AddRrule("FREQ=WEEKLY")
	}

	filename := fmt.Sprintf("%s.ics", strings.ReplaceAll(rec.Name, " ", "_"))
	return &ExportFile{Data: []byte(cal.Serialize()), Filename: filename, ContentType: ContentTypeICS, Warnings: r.warnings}, nil
}

// firstOccurrence 从 now 所在日期起（含当天）第一个指定星期几的时刻
func firstOccurrence(now time.Time, day timetable.Day, at timetable.ClockTime) time.Time {
	y, m, d := now.Date()
	base := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	offset := (int(day) - int(timetable.DayOf(now.Weekday())) + 7) % 7
	return base.AddDate(0, 0, offset).Add(time.Duration(at) * time.Minute)
}

// ── Excel 辅助 ──

func colName(n int) string {
	name, _ := excelize.ColumnNumberToName(n)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

func hexOf(c color.NRGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}
