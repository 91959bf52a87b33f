package dto

// ── 空闲查询 DTO ──

// StudentStatus 单名学生在查询时刻的状态
//
// Kind 取值：
//   - busy          正在上课，Time 为最晚结束时间
//   - free_until    空闲，Time 为当天下一节开始时间
//   - free          当天余下时间空闲
//   - unresolvable  存储的课表数据无法读取，未参与计算
type StudentStatus struct {
	Name     string   `json:"name"`
	Color    string   `json:"color"`
	Free     bool     `json:"free"`
	Kind     string   `json:"kind"`
	Time     string   `json:"time,omitempty"` // HH:MM
	Summary  string   `json:"summary"`
	Warnings []string `json:"warnings,omitempty"`
}

// AvailabilityResponse /freenow 与 /freeuntil 的响应
type AvailabilityResponse struct {
	At       string          `json:"at"` // 例如 Monday 10:30
	Free     []string        `json:"free"`
	Students []StudentStatus `json:"students"`
}

// FreeWhenResponse 单名学生下一次空闲
type FreeWhenResponse struct {
	At      string        `json:"at"`
	Student StudentStatus `json:"student"`
}

// IssueTokenResponse 签发的 REST 访问令牌
type IssueTokenResponse struct {
	Token     string `json:"token"`
	Scope     string `json:"scope"`
	ExpiresAt string `json:"expires_at"`
}
