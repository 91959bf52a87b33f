package timetable

import "sort"

// ── 空闲计算引擎 ─────────────────────────────────────────
//
// 所有函数均为纯函数：输入 (ResolvedSchedule, Instant)，无共享状态，可并发调用。
//
// 约定：
//   - 时段为半开区间 [start, end)：恰好结束的时段不算忙，恰好开始的时段算忙
//   - 仅考虑与查询时刻同一天的时段，不向后续日期预读
//   - 多个时段重叠覆盖当前时刻时，忙到其中最晚的结束时间
//   - 已开始的时段不计入"下一节开始时间"
// ─────────────────────────────────────────────────────────────

// dayScan 单次遍历当天时段的结果
type dayScan struct {
	busy      bool
	busyUntil ClockTime // 覆盖当前时刻的时段中最晚的结束时间
	hasNext   bool
	nextStart ClockTime // 当前时刻之后最早的开始时间
}

func scan(rs ResolvedSchedule, at Instant) dayScan {
	var r dayScan
	for _, s := range rs {
		if s.Day != at.Day {
			continue
		}
		switch {
		case s.Start <= at.Time && at.Time < s.End:
			if !r.busy || s.End > r.busyUntil {
				r.busyUntil = s.End
			}
			r.busy = true
		case s.Start > at.Time:
			if !r.hasNext || s.Start < r.nextStart {
				r.nextStart = s.Start
			}
			r.hasNext = true
		}
	}
	return r
}

// IsFreeAt 当前时刻不在任何时段 [start, end) 内
func IsFreeAt(rs ResolvedSchedule, at Instant) bool {
	for _, s := range rs {
		if s.Covers(at) {
			return false
		}
	}
	return true
}

// ── FreeUntil ──

// UntilKind FreeUntil 结果类型
type UntilKind int

const (
	UntilBusy UntilKind = iota
	UntilNextStart
	UntilRestOfDay
)

// FreeUntilResult Busy(结束时间) | NextStart(开始时间) | FreeForRestOfDay
type FreeUntilResult struct {
	Kind UntilKind
	Time ClockTime
}

func Busy(end ClockTime) FreeUntilResult {
	return FreeUntilResult{Kind: UntilBusy, Time: end}
}

func NextStart(start ClockTime) FreeUntilResult {
	return FreeUntilResult{Kind: UntilNextStart, Time: start}
}

func FreeForRestOfDay() FreeUntilResult {
	return FreeUntilResult{Kind: UntilRestOfDay}
}

// Free 当前是否空闲
func (r FreeUntilResult) Free() bool { return r.Kind != UntilBusy }

func (r FreeUntilResult) String() string {
	switch r.Kind {
	case UntilBusy:
		return "busy until " + r.Time.String()
	case UntilNextStart:
		return "free until " + r.Time.String()
	default:
		return "free for the rest of the day"
	}
}

// FreeUntil 当前忙则返回 Busy(最晚结束)，空闲则返回当天下一节开始时间或 FreeForRestOfDay
func FreeUntil(rs ResolvedSchedule, at Instant) FreeUntilResult {
	r := scan(rs, at)
	switch {
	case r.busy:
		return Busy(r.busyUntil)
	case r.hasNext:
		return NextStart(r.nextStart)
	default:
		return FreeForRestOfDay()
	}
}

// ── NextFree ──

// NextKind NextFree 结果类型
type NextKind int

const (
	NextBusyUntil NextKind = iota
	NextFreeNow
	NextFreeUntil
)

// NextFreeResult BusyUntil(结束时间) | FreeNow | FreeUntil(下一节开始时间)
type NextFreeResult struct {
	Kind NextKind
	Time ClockTime
}

func BusyUntil(end ClockTime) NextFreeResult {
	return NextFreeResult{Kind: NextBusyUntil, Time: end}
}

func FreeNow() NextFreeResult {
	return NextFreeResult{Kind: NextFreeNow}
}

func FreeUntilTime(start ClockTime) NextFreeResult {
	return NextFreeResult{Kind: NextFreeUntil, Time: start}
}

func (r NextFreeResult) String() string {
	switch r.Kind {
	case NextBusyUntil:
		return "currently busy, free at " + r.Time.String()
	case NextFreeUntil:
		return "free now, next busy at " + r.Time.String()
	default:
		return "free now"
	}
}

// NextFree 当前忙返回 BusyUntil(覆盖时段最晚结束)，否则 FreeUntil(下一节开始) 或 FreeNow
func NextFree(rs ResolvedSchedule, at Instant) NextFreeResult {
	r := scan(rs, at)
	switch {
	case r.busy:
		return BusyUntil(r.busyUntil)
	case r.hasNext:
		return FreeUntilTime(r.nextStart)
	default:
		return FreeNow()
	}
}

// ── 批量查询 ──

// AllFreeNow 返回当前空闲的学生姓名（按字典序）
func AllFreeNow(schedules map[string]ResolvedSchedule, at Instant) []string {
	names := make([]string, 0, len(schedules))
	for name, rs := range schedules {
		if IsFreeAt(rs, at) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
