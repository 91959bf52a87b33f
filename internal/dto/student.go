package dto

import "time"

// ── 学生课表 DTO ──

// SaveStudentRequest 新建或整体替换学生课表
type SaveStudentRequest struct {
	Name      string `json:"name"       binding:"required,max=32"`
	Color     string `json:"color"      binding:"required"`
	ShareLink string `json:"share_link" binding:"required"`
}

// StudentResponse 学生课表
type StudentResponse struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Color     string              `json:"color"`
	ShareLink string              `json:"share_link"`
	Timetable map[string][]string `json:"timetable"` // 模块 → ["TUT:03", ...]
	Classes   int                 `json:"classes"`
	Version   int                 `json:"version"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// SaveStudentResponse 保存结果
type SaveStudentResponse struct {
	Student  StudentResponse `json:"student"`
	Replaced bool            `json:"replaced"` // 同名记录被整体替换
}

// DecodeLinkRequest 分享链接解析请求
type DecodeLinkRequest struct {
	Link string `json:"link" binding:"required"`
}

// DecodeLinkResponse 分享链接解析结果
type DecodeLinkResponse struct {
	Modules   map[string][]string `json:"modules"`
	Classes   int                 `json:"classes"`
	Canonical string              `json:"canonical"`
}
