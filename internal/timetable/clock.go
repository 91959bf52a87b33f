package timetable

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidDay   = errors.New("无效的星期")
	ErrInvalidClock = errors.New("无效的时间（需为 4 位 24 小时制 HHMM）")
)

// ModuleCode 课程模块代码（如 CS1231），仅作为查找键使用
type ModuleCode string

// NormalizeModuleCode 去除空白并统一为大写
func NormalizeModuleCode(s string) ModuleCode {
	return ModuleCode(strings.ToUpper(strings.TrimSpace(s)))
}

// ── 星期 ──

// Day ISO 8601 星期：1=Monday … 7=Sunday
type Day int

const (
	Monday Day = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var dayNames = [...]string{"", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// Weekdays 周一至周五
var Weekdays = []Day{Monday, Tuesday, Wednesday, Thursday, Friday}

// AllDays 周一至周日
var AllDays = []Day{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

func (d Day) Valid() bool { return d >= Monday && d <= Sunday }

func (d Day) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Day(%d)", int(d))
	}
	return dayNames[d]
}

// Short 三字母缩写，如 Mon
func (d Day) Short() string {
	if !d.Valid() {
		return "?"
	}
	return dayNames[d][:3]
}

// ParseDay 解析英文星期名（不区分大小写，支持三字母缩写）
func ParseDay(s string) (Day, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return 0, ErrInvalidDay
	}
	for d := Monday; d <= Sunday; d++ {
		name := strings.ToLower(dayNames[d])
		if v == name || (len(v) == 3 && strings.HasPrefix(name, v)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDay, s)
}

// DayOf 将 Go 的 time.Weekday (0=Sunday) 转为 ISO 星期
func DayOf(wd time.Weekday) Day {
	if wd == time.Sunday {
		return Sunday
	}
	return Day(wd)
}

// ── 时刻 ──

// ClockTime 一天内的分钟数（0 = 00:00，1440 = 24:00 仅用作结束时间）
type ClockTime int

// EndOfDay 24:00
const EndOfDay ClockTime = 24 * 60

// NewClock 由时、分构造 ClockTime
func NewClock(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ParseClock 解析严格的 4 位 HHMM 字符串（如 "0830"、"2400"）
func ParseClock(s string) (ClockTime, error) {
	if len(s) != 4 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	for i := 0; i < 4; i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
	}
	hour := int(s[0]-'0')*10 + int(s[1]-'0')
	minute := int(s[2]-'0')*10 + int(s[3]-'0')
	if minute > 59 || hour > 24 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return NewClock(hour, minute), nil
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

// Valid 取值范围 [00:00, 24:00]
func (c ClockTime) Valid() bool { return c >= 0 && c <= EndOfDay }

// String 以 HHMM 格式输出，与课程目录数据保持一致
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d%02d", c.Hour(), c.Minute())
}

// Colon 以 HH:MM 格式输出
func (c ClockTime) Colon() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// ClockOf 取 time.Time 的时分（秒向下取整）
func ClockOf(t time.Time) ClockTime {
	return NewClock(t.Hour(), t.Minute())
}

// ── 查询时刻 ──

// Instant 查询时刻：星期 + 当天时刻
type Instant struct {
	Day  Day
	Time ClockTime
}

// InstantOf 以进程本地时区取 t 对应的查询时刻
func InstantOf(t time.Time) Instant {
	return Instant{Day: DayOf(t.Weekday()), Time: ClockOf(t)}
}

func (i Instant) String() string {
	return i.Day.String() + " " + i.Time.String()
}
