package catalog

import (
	"fmt"

	"go.uber.org/zap"

	"freenow/internal/timetable"
)

// ToSession 将一条原始课表条目转换为 ConcreteSession 并校验
// 星期、时间无法解析或 start >= end 时返回 ErrMalformedSession
func ToSession(module timetable.ModuleCode, l Lesson) (timetable.ConcreteSession, error) {
	s := timetable.ConcreteSession{
		Module:  module,
		Kind:    timetable.ParseCatalogType(l.LessonType),
		ClassNo: l.ClassNo,
		Venue:   l.Venue,
	}
	day, err := timetable.ParseDay(l.Day)
	if err != nil {
		return s, malformed(module, l, err)
	}
	s.Day = day
	if s.Start, err = timetable.ParseClock(l.StartTime); err != nil {
		return s, malformed(module, l, err)
	}
	if s.End, err = timetable.ParseClock(l.EndTime); err != nil {
		return s, malformed(module, l, err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

func malformed(module timetable.ModuleCode, l Lesson, cause error) error {
	return fmt.Errorf("%w: %s %s:%s: %v", timetable.ErrMalformedSession, module, l.LessonType, l.ClassNo, cause)
}

// ToSessions 转换整个模块的课表，非法条目逐条丢弃并记录 warn 日志
func ToSessions(module timetable.ModuleCode, lessons []Lesson, logger *zap.Logger) []timetable.ConcreteSession {
	out := make([]timetable.ConcreteSession, 0, len(lessons))
	for _, l := range lessons {
		s, err := ToSession(module, l)
		if err != nil {
			logger.Warn("丢弃非法课表条目",
				zap.String("module", string(module)),
				zap.String("lesson_type", l.LessonType),
				zap.String("class_no", l.ClassNo),
				zap.String("day", l.Day),
				zap.String("start", l.StartTime),
				zap.String("end", l.EndTime),
				zap.Error(err),
			)
			continue
		}
		out = append(out, s)
	}
	return out
}
