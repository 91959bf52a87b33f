package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"freenow/config"
	"freenow/internal/timetable"
)

var (
	ErrModuleNotFound = errors.New("课程目录中不存在该模块")
	ErrUpstream       = errors.New("课程目录服务异常")
	ErrNoSemesterData = errors.New("模块没有任何学期的课表数据")
)

// Lesson NUSMods 课表条目原始结构
type Lesson struct {
	ClassNo    string          `json:"classNo"`
	StartTime  string          `json:"startTime"`
	EndTime    string          `json:"endTime"`
	Weeks      json.RawMessage `json:"weeks,omitempty"` // 数组或 {start,end}，不参与计算
	Venue      string          `json:"venue"`
	Day        string          `json:"day"`
	LessonType string          `json:"lessonType"`
	Size       int             `json:"size,omitempty"`
}

type semesterData struct {
	Semester  int      `json:"semester"`
	Timetable []Lesson `json:"timetable"`
}

type moduleResponse struct {
	ModuleCode   string         `json:"moduleCode"`
	SemesterData []semesterData `json:"semesterData"`
}

// Fetcher 按模块代码拉取原始课表条目
type Fetcher interface {
	Fetch(ctx context.Context, module timetable.ModuleCode) ([]Lesson, error)
}

// Client NUSMods v2 API 客户端
// GET {base_url}/{acad_year}/modules/{CODE}.json
type Client struct {
	http     *resty.Client
	acadYear string
	semester int
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewClient 创建目录客户端；rate_limit <= 0 时不限速
func NewClient(cfg *config.CatalogConfig, logger *zap.Logger) *Client {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(cfg.Timeout).
			SetHeader("Accept", "application/json"),
		acadYear: cfg.AcadYear,
		semester: cfg.Semester,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
	}
}

// Fetch 拉取模块在配置学期的课表；该学期无数据时回退到第一个学期
func (c *Client) Fetch(ctx context.Context, module timetable.ModuleCode) ([]Lesson, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	var body moduleResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"year":   c.acadYear,
			"module": string(module),
		}).
		SetResult(&body).
		Get("/{year}/modules/{module}.json")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, ErrModuleNotFound
	case resp.StatusCode() != http.StatusOK:
		return nil, fmt.Errorf("%w: HTTP %d", ErrUpstream, resp.StatusCode())
	}

	if len(body.SemesterData) == 0 {
		return nil, ErrNoSemesterData
	}
	for _, sd := range body.SemesterData {
		if sd.Semester == c.semester {
			return sd.Timetable, nil
		}
	}

	c.logger.Debug("配置学期无数据，回退到第一个学期",
		zap.String("module", string(module)),
		zap.Int("semester", c.semester),
		zap.Int("fallback", body.SemesterData[0].Semester),
	)
	return body.SemesterData[0].Timetable, nil
}
