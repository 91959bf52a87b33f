package timetable

import (
	"errors"
	"fmt"
	"sort"
)

// ErrMalformedSession 星期非法或开始时间不早于结束时间；该条记录被丢弃，不影响整张课表
var ErrMalformedSession = errors.New("课程时段数据非法")

// SessionReference 学生选定的班级：课程类型 + 班级号，尚未解析出具体时间
type SessionReference struct {
	Kind    LessonKind `json:"kind"`
	ClassNo string     `json:"class_no"`
}

// String KIND:CLASS 形式，与分享链接一致
func (r SessionReference) String() string {
	return r.Kind.Code() + ":" + r.ClassNo
}

// ConcreteSession 解析后的每周固定时段，最小可排课单元
type ConcreteSession struct {
	Module  ModuleCode
	Kind    LessonKind
	ClassNo string
	Day     Day
	Start   ClockTime
	End     ClockTime
	Venue   string
}

// Reference 对应的班级引用
func (s ConcreteSession) Reference() SessionReference {
	return SessionReference{Kind: s.Kind, ClassNo: s.ClassNo}
}

// Validate 校验 day ∈ 1..7 且 start < end
func (s ConcreteSession) Validate() error {
	if !s.Day.Valid() {
		return fmt.Errorf("%w: %s %s 星期 %d", ErrMalformedSession, s.Module, s.Reference(), int(s.Day))
	}
	if !s.Start.Valid() || !s.End.Valid() || s.Start >= s.End {
		return fmt.Errorf("%w: %s %s %s-%s", ErrMalformedSession, s.Module, s.Reference(), s.Start, s.End)
	}
	return nil
}

// Covers 半开区间 [start, end)：开始时刻算忙，结束时刻算空
func (s ConcreteSession) Covers(at Instant) bool {
	return s.Day == at.Day && s.Start <= at.Time && at.Time < s.End
}

// ── Schedule ──

// Schedule 一名学生声明的选课：模块 → 班级引用集合
type Schedule map[ModuleCode][]SessionReference

// Modules 按字典序返回所有模块
func (s Schedule) Modules() []ModuleCode {
	mods := make([]ModuleCode, 0, len(s))
	for m := range s {
		mods = append(mods, m)
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i] < mods[j] })
	return mods
}

// Enrolled 是否选了某模块的某个班级（精确元组匹配）
func (s Schedule) Enrolled(module ModuleCode, ref SessionReference) bool {
	for _, r := range s[module] {
		if r == ref {
			return true
		}
	}
	return false
}

// Count 班级引用总数
func (s Schedule) Count() int {
	n := 0
	for _, refs := range s {
		n += len(refs)
	}
	return n
}

// ── ResolvedSchedule ──

// ResolvedSchedule 一名学生所有已解析时段的扁平列表，不持久化
type ResolvedSchedule []ConcreteSession

// OnDay 过滤出某一天的时段
func (rs ResolvedSchedule) OnDay(d Day) ResolvedSchedule {
	var out ResolvedSchedule
	for _, s := range rs {
		if s.Day == d {
			out = append(out, s)
		}
	}
	return out
}

// Sorted 按 (day, start, module) 排序后的副本
func (rs ResolvedSchedule) Sorted() ResolvedSchedule {
	out := make(ResolvedSchedule, len(rs))
	copy(out, rs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].Module < out[j].Module
	})
	return out
}
