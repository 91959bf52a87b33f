package timetable

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var (
	ErrInvalidShareLink = errors.New("无法解析的课表分享链接")
	ErrEmptyShareLink   = errors.New("分享链接中没有任何课程模块")
)

// ── 分享链接解析 ─────────────────────────────────────────
//
// 格式：https://nusmods.com/timetable/sem-1/share?CS1231=TUT:03,SEC:1&MA1521=LEC:1
//   - 每个查询参数为一个模块
//   - 模块内以 "," 分隔多个 KIND:CLASS
//   - KIND 与 CLASS 以第一个 ":" 分隔
// ─────────────────────────────────────────────────────────────

// Decode 解析分享链接为 Schedule
func Decode(link string) (Schedule, error) {
	raw := strings.TrimSpace(link)
	if raw == "" {
		return nil, ErrEmptyShareLink
	}

	query := raw
	if idx := strings.Index(raw, "?"); idx >= 0 {
		query = raw[idx+1:]
	} else if strings.Contains(raw, "://") {
		// 完整 URL 却没有查询串
		return nil, ErrEmptyShareLink
	}
	if idx := strings.Index(query, "#"); idx >= 0 {
		query = query[:idx]
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShareLink, err)
	}

	schedule := make(Schedule)
	for key, vals := range values {
		module := NormalizeModuleCode(key)
		if module == "" || len(vals) == 0 {
			continue
		}
		refs, err := decodeModule(vals[0])
		if err != nil {
			return nil, fmt.Errorf("%w: 模块 %s: %v", ErrInvalidShareLink, module, err)
		}
		schedule[module] = refs
	}
	if len(schedule) == 0 {
		return nil, ErrEmptyShareLink
	}
	return schedule, nil
}

// decodeModule 解析单个模块的 "KIND:CLASS,KIND:CLASS"
func decodeModule(value string) ([]SessionReference, error) {
	refs := make([]SessionReference, 0, 4)
	seen := make(map[SessionReference]bool)
	for _, token := range strings.Split(value, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		kind, class, ok := strings.Cut(token, ":")
		if !ok || strings.TrimSpace(kind) == "" {
			return nil, fmt.Errorf("无效的班级标记 %q", token)
		}
		ref := SessionReference{Kind: ParseShareCode(kind), ClassNo: strings.TrimSpace(class)}
		if seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	return refs, nil
}

// Encode 生成规范化查询串（模块按字典序），便于存储与展示
func Encode(s Schedule) string {
	parts := make([]string, 0, len(s))
	for _, m := range s.Modules() {
		tokens := make([]string, 0, len(s[m]))
		for _, r := range s[m] {
			tokens = append(tokens, r.String())
		}
		sort.Strings(tokens)
		parts = append(parts, string(m)+"="+strings.Join(tokens, ","))
	}
	return strings.Join(parts, "&")
}
