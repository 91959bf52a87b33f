package intake

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"freenow/internal/render"
	"freenow/internal/timetable"
)

var (
	ErrInvalidName = errors.New("名字需为 1-32 个字符且不能以 / 开头")
	ErrTerminal    = errors.New("录入会话已结束")
)

// ── 录入状态机 ───────────────────────────────────────────
//
//   AwaitingName ──名字──▶ AwaitingColor ──颜色──▶ AwaitingLink ──链接──▶ Done
//        │                      │                      │
//        └──────────────── /cancel ────────────────────┴──▶ Cancelled
//
// 非法输入保持当前状态并返回错误，由调用方重新提示。
// ─────────────────────────────────────────────────────────────

// State 录入状态
type State int

const (
	AwaitingName State = iota + 1
	AwaitingColor
	AwaitingLink
	Done
	Cancelled
)

var stateNames = map[State]string{
	AwaitingName:  "awaiting_name",
	AwaitingColor: "awaiting_color",
	AwaitingLink:  "awaiting_link",
	Done:          "done",
	Cancelled:     "cancelled",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal 是否为终止状态
func (s State) Terminal() bool { return s == Done || s == Cancelled }

// Draft 一次录入会话的草稿
type Draft struct {
	Scope     string             `json:"scope"`
	State     State              `json:"state"`
	Name      string             `json:"name,omitempty"`
	Color     string             `json:"color,omitempty"`
	Link      string             `json:"link,omitempty"`
	Schedule  timetable.Schedule `json:"schedule,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// NewDraft 开始新的录入
func NewDraft(scope string, now time.Time) *Draft {
	return &Draft{Scope: scope, State: AwaitingName, UpdatedAt: now}
}

// Apply 以一条文本输入推进状态机
func (d *Draft) Apply(input string, now time.Time) error {
	if d.State.Terminal() {
		return ErrTerminal
	}
	input = strings.TrimSpace(input)

	switch d.State {
	case AwaitingName:
		name, err := ValidateName(input)
		if err != nil {
			return err
		}
		d.Name = name
		d.State = AwaitingColor
	case AwaitingColor:
		c, err := render.NormalizeColor(input)
		if err != nil {
			return err
		}
		d.Color = c
		d.State = AwaitingLink
	case AwaitingLink:
		schedule, err := timetable.Decode(input)
		if err != nil {
			return err
		}
		d.Link = input
		d.Schedule = schedule
		d.State = Done
	default:
		return fmt.Errorf("未知状态 %s", d.State)
	}
	d.UpdatedAt = now
	return nil
}

// Cancel 从任意非终止状态进入 Cancelled
func (d *Draft) Cancel(now time.Time) error {
	if d.State.Terminal() {
		return ErrTerminal
	}
	d.State = Cancelled
	d.UpdatedAt = now
	return nil
}

// ── 名字校验 ──

var validate = validator.New()

type nameInput struct {
	Name string `validate:"required,max=32,startsnotwith=/"`
}

// ValidateName 去除首尾空白后校验显示名
func ValidateName(s string) (string, error) {
	name := strings.TrimSpace(s)
	if err := validate.Struct(nameInput{Name: name}); err != nil {
		return "", ErrInvalidName
	}
	return name, nil
}
