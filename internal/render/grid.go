package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"freenow/internal/timetable"
)

// ErrNothingToRender 没有任何学生
var ErrNothingToRender = errors.New("没有可渲染的课表")

const (
	slotMinutes  = 15
	blockAlpha   = 0x8c // 约 55% 不透明
	marginLeft   = 48
	headerHeight = 22
	legendRow    = 18
	charWidth    = 7 // basicfont.Face7x13
	lineHeight   = 13
)

var (
	background = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	gridLine   = color.NRGBA{R: 0xdd, G: 0xdd, B: 0xdd, A: 0xff}
	dayLine    = color.NRGBA{R: 0x00, G: 0x00, B: 0x00, A: 0xff}
	textColor  = color.NRGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}
)

// Layer 一名学生的课表图层
type Layer struct {
	Name     string
	Color    color.NRGBA
	Sessions timetable.ResolvedSchedule
}

// Options 网格尺寸
type Options struct {
	CellWidth  int // 每名学生子列宽度
	CellHeight int // 每 15 分钟行高
	StartHour  int
	EndHour    int
}

// Renderer 课表网格渲染器
type Renderer struct {
	opts   Options
	logger *zap.Logger
}

// NewRenderer 创建渲染器，非法尺寸回退为默认值
func NewRenderer(opts Options, logger *zap.Logger) *Renderer {
	if opts.CellWidth <= 0 {
		opts.CellWidth = 60
	}
	if opts.CellHeight <= 0 {
		opts.CellHeight = 12
	}
	if opts.StartHour < 0 || opts.EndHour > 24 || opts.StartHour >= opts.EndHour {
		opts.StartHour, opts.EndHour = 8, 23
	}
	return &Renderer{opts: opts, logger: logger}
}

// Days 网格包含的星期：周一至周五，周末有课时追加
func Days(layers []Layer) []timetable.Day {
	days := append([]timetable.Day(nil), timetable.Weekdays...)
	for _, weekend := range []timetable.Day{timetable.Saturday, timetable.Sunday} {
		if hasDay(layers, weekend) {
			days = append(days, weekend)
		}
	}
	return days
}

func hasDay(layers []Layer, d timetable.Day) bool {
	for _, l := range layers {
		for _, s := range l.Sessions {
			if s.Day == d {
				return true
			}
		}
	}
	return false
}

// Render 绘制网格：每天按学生拆分子列，课程块半透明叠加学生颜色
func (r *Renderer) Render(layers []Layer) (*image.NRGBA, error) {
	if len(layers) == 0 {
		return nil, ErrNothingToRender
	}

	days := Days(layers)
	rows := (r.opts.EndHour - r.opts.StartHour) * 60 / slotMinutes
	dayWidth := r.opts.CellWidth * len(layers)
	gridW := dayWidth * len(days)
	gridH := rows * r.opts.CellHeight
	width := marginLeft + gridW + 1
	height := headerHeight + gridH + 1 + legendRow*len(layers) + 6

	img := imaging.New(width, height, background)

	// 横线：每 15 分钟浅色，每小时带时间标签
	for row := 0; row <= rows; row++ {
		y := headerHeight + row*r.opts.CellHeight
		hline(img, marginLeft, marginLeft+gridW, y, gridLine)
		if row%4 == 0 && row < rows {
			hour := r.opts.StartHour + row/4
			drawText(img, 4, y+lineHeight-2, fmt.Sprintf("%02d:00", hour))
		}
	}

	// 表头与日分隔线
	for i, d := range days {
		x := marginLeft + i*dayWidth
		label := d.String()
		if len(label)*charWidth > dayWidth-4 {
			label = d.Short()
		}
		drawText(img, x+(dayWidth-len(label)*charWidth)/2, headerHeight-6, label)
		vline(img, x, headerHeight, headerHeight+gridH, dayLine)
	}
	vline(img, marginLeft+gridW, headerHeight, headerHeight+gridH, dayLine)

	for li, layer := range layers {
		for _, s := range layer.Sessions {
			col := dayIndex(days, s.Day)
			if col < 0 {
				continue
			}
			top, bottom, ok := r.rowSpan(s)
			if !ok {
				continue
			}
			x := marginLeft + col*dayWidth + li*r.opts.CellWidth
			y := headerHeight + top*r.opts.CellHeight
			h := (bottom - top) * r.opts.CellHeight
			fillBlend(img, image.Rect(x+1, y+1, x+r.opts.CellWidth, y+1+h), layer.Color)

			drawText(img, x+2, y+lineHeight, fit(string(s.Module), r.opts.CellWidth))
			if h >= 2*lineHeight {
				drawText(img, x+2, y+2*lineHeight, fit(s.Kind.BaseCode(), r.opts.CellWidth))
			}
		}
	}

	// 图例
	legendTop := headerHeight + gridH + 6
	for i, layer := range layers {
		y := legendTop + i*legendRow
		fillBlend(img, image.Rect(marginLeft, y, marginLeft+12, y+12), layer.Color)
		drawText(img, marginLeft+18, y+11, layer.Name)
	}

	return img, nil
}

// blockMask 课程块的统一透明度
var blockMask = image.NewUniform(color.Alpha{A: blockAlpha})

// fillBlend 在 img 上原地半透明叠加纯色矩形
func fillBlend(img *image.NRGBA, rect image.Rectangle, c color.NRGBA) {
	draw.DrawMask(img, rect, image.NewUniform(c), image.Point{}, blockMask, image.Point{}, draw.Over)
}

// RenderPNG 渲染并编码为 PNG
func (r *Renderer) RenderPNG(layers []Layer) ([]byte, error) {
	img, err := r.Render(layers)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("PNG 编码失败: %w", err)
	}
	return buf.Bytes(), nil
}

// rowSpan 计算时段占据的行 [top, bottom)；超出网格的部分截断，未对齐 15 分钟的向外取整
func (r *Renderer) rowSpan(s timetable.ConcreteSession) (int, int, bool) {
	gridStart := timetable.NewClock(r.opts.StartHour, 0)
	gridEnd := timetable.NewClock(r.opts.EndHour, 0)

	start, end := s.Start, s.End
	if start < gridStart || end > gridEnd {
		r.logger.Warn("时段超出网格范围，已截断",
			zap.String("module", string(s.Module)),
			zap.String("start", s.Start.String()),
			zap.String("end", s.End.String()),
		)
	}
	if start < gridStart {
		start = gridStart
	}
	if end > gridEnd {
		end = gridEnd
	}
	if start >= end {
		return 0, 0, false
	}
	if int(start)%slotMinutes != 0 || int(end)%slotMinutes != 0 {
		r.logger.Debug("时段未对齐 15 分钟", zap.String("module", string(s.Module)))
	}

	top := int(start-gridStart) / slotMinutes
	bottom := (int(end-gridStart) + slotMinutes - 1) / slotMinutes
	return top, bottom, true
}

func dayIndex(days []timetable.Day, d timetable.Day) int {
	for i, v := range days {
		if v == d {
			return i
		}
	}
	return -1
}

// fit 按像素宽度截断标签
func fit(s string, width int) string {
	n := (width - 4) / charWidth
	if n <= 0 {
		return ""
	}
	if len(s) > n {
		return s[:n]
	}
	return s
}

func drawText(img *image.NRGBA, x, y int, s string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(textColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func hline(img *image.NRGBA, x0, x1, y int, c color.NRGBA) {
	for x := x0; x <= x1; x++ {
		img.SetNRGBA(x, y, c)
	}
}

func vline(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	for y := y0; y <= y1; y++ {
		img.SetNRGBA(x, y, c)
	}
}
