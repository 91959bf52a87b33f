package timetable

import (
	"strings"
	"unicode"
)

// ── 课程类型 ──────────────────────────────────────────────
//
// 分享链接使用短代码（TUT、PLEC …），课程目录使用全称
// （"Tutorial"、"Packaged Lecture" …）。两端都解析为 LessonKind，
// 以 (Category, Variant) 做精确匹配。
//
// Variant 为同一模块下同类课程的区分后缀：
//   - 分享链接 TUT2:B2 → {Tutorial, "2"}
//   - 课程目录 "Tutorial Type 2" → {Tutorial, "2"}
// 后缀不可丢弃，否则第一、第二个辅导课时段会被合并。
// ─────────────────────────────────────────────────────────────

// Category 课程类型枚举
type Category int

const (
	CategoryOther Category = iota
	CategoryLecture
	CategoryTutorial
	CategoryLaboratory
	CategoryPackagedLecture
	CategoryPackagedTutorial
	CategorySectionalTeaching
	CategorySeminar
	CategoryRecitation
	CategoryDesignLecture
	CategoryWorkshop
	CategoryMiniProject
)

type categoryInfo struct {
	code string
	name string
}

var categories = map[Category]categoryInfo{
	CategoryLecture:           {"LEC", "Lecture"},
	CategoryTutorial:          {"TUT", "Tutorial"},
	CategoryLaboratory:        {"LAB", "Laboratory"},
	CategoryPackagedLecture:   {"PLEC", "Packaged Lecture"},
	CategoryPackagedTutorial:  {"PTUT", "Packaged Tutorial"},
	CategorySectionalTeaching: {"SEC", "Sectional Teaching"},
	CategorySeminar:           {"SEM", "Seminar-Style Module Class"},
	CategoryRecitation:        {"REC", "Recitation"},
	CategoryDesignLecture:     {"DLEC", "Design Lecture"},
	CategoryWorkshop:          {"WS", "Workshop"},
	CategoryMiniProject:       {"MP", "Mini-Project"},
}

// shareCodeOrder 按代码长度降序匹配，避免 PLEC 被识别为 LEC
var shareCodeOrder = []Category{
	CategoryPackagedLecture,
	CategoryPackagedTutorial,
	CategoryDesignLecture,
	CategoryLecture,
	CategoryTutorial,
	CategoryLaboratory,
	CategorySectionalTeaching,
	CategorySeminar,
	CategoryRecitation,
	CategoryWorkshop,
	CategoryMiniProject,
}

const catalogVariantSep = " Type "

// LessonKind 课程类型 + 区分后缀；可比较，可作为 map 键
type LessonKind struct {
	Category Category
	Variant  string
	Raw      string // 仅 CategoryOther 使用：原样保留的未知代码
}

// ParseShareCode 解析分享链接中的短代码（LEC、TUT2 …）
// 未知代码原样透传为 CategoryOther，不视为错误
func ParseShareCode(code string) LessonKind {
	raw := strings.TrimSpace(code)
	upper := strings.ToUpper(raw)
	for _, cat := range shareCodeOrder {
		prefix := categories[cat].code
		if !strings.HasPrefix(upper, prefix) {
			continue
		}
		suffix := upper[len(prefix):]
		if isVariantSuffix(suffix) {
			return LessonKind{Category: cat, Variant: suffix}
		}
	}
	return LessonKind{Category: CategoryOther, Raw: raw}
}

// ParseCatalogType 解析课程目录中的 lessonType 全称
func ParseCatalogType(name string) LessonKind {
	raw := strings.TrimSpace(name)
	base, variant := raw, ""
	if idx := strings.LastIndex(raw, catalogVariantSep); idx > 0 {
		base = raw[:idx]
		variant = strings.ToUpper(strings.TrimSpace(raw[idx+len(catalogVariantSep):]))
	}
	for cat, info := range categories {
		if strings.EqualFold(base, info.name) {
			return LessonKind{Category: cat, Variant: variant}
		}
	}
	return LessonKind{Category: CategoryOther, Raw: raw}
}

// isVariantSuffix 后缀为空、纯数字或单个字母
func isVariantSuffix(s string) bool {
	if s == "" {
		return true
	}
	if len(s) == 1 && unicode.IsLetter(rune(s[0])) {
		return true
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Known 是否为已知类型
func (k LessonKind) Known() bool { return k.Category != CategoryOther }

// Code 分享链接短代码（含后缀），如 TUT2
func (k LessonKind) Code() string {
	if !k.Known() {
		return k.Raw
	}
	return categories[k.Category].code + k.Variant
}

// BaseCode 不含后缀的短代码，供渲染标签使用
func (k LessonKind) BaseCode() string {
	if !k.Known() {
		return k.Raw
	}
	return categories[k.Category].code
}

// String 课程目录全称，如 "Tutorial Type 2"
func (k LessonKind) String() string {
	if !k.Known() {
		return k.Raw
	}
	name := categories[k.Category].name
	if k.Variant != "" {
		name += catalogVariantSep + k.Variant
	}
	return name
}

// MarshalText 持久化为短代码
func (k LessonKind) MarshalText() ([]byte, error) {
	return []byte(k.Code()), nil
}

// UnmarshalText 从短代码还原
func (k *LessonKind) UnmarshalText(b []byte) error {
	*k = ParseShareCode(string(b))
	return nil
}
