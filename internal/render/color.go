package render

import (
	"errors"
	"fmt"
	"image/color"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidColor 既不是调色板名称也不是十六进制颜色
var ErrInvalidColor = errors.New("无效的颜色")

var validate = validator.New()

// palette 常用颜色名；与 matplotlib 基础色名保持一致
var palette = map[string]color.NRGBA{
	"blue":   {R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	"green":  {R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	"red":    {R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	"orange": {R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
	"purple": {R: 0x94, G: 0x67, B: 0xbd, A: 0xff},
	"brown":  {R: 0x8c, G: 0x56, B: 0x4b, A: 0xff},
	"pink":   {R: 0xe3, G: 0x77, B: 0xc2, A: 0xff},
	"gray":   {R: 0x7f, G: 0x7f, B: 0x7f, A: 0xff},
	"olive":  {R: 0xbc, G: 0xbd, B: 0x22, A: 0xff},
	"cyan":   {R: 0x17, G: 0xbe, B: 0xcf, A: 0xff},
	"yellow": {R: 0xff, G: 0xd7, B: 0x00, A: 0xff},
	"teal":   {R: 0x00, G: 0x80, B: 0x80, A: 0xff},
}

// PaletteNames 调色板名称（字典序）
func PaletteNames() []string {
	names := make([]string, 0, len(palette))
	for n := range palette {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NormalizeColor 校验并规范化颜色：调色板名转小写，十六进制转小写
func NormalizeColor(s string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if _, ok := palette[v]; ok {
		return v, nil
	}
	if err := validate.Var(v, "required,hexcolor"); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return v, nil
}

// ParseColor 将调色板名或 #RGB / #RGBA / #RRGGBB / #RRGGBBAA 解析为颜色
func ParseColor(s string) (color.NRGBA, error) {
	v, err := NormalizeColor(s)
	if err != nil {
		return color.NRGBA{}, err
	}
	if c, ok := palette[v]; ok {
		return c, nil
	}

	hex := strings.TrimPrefix(v, "#")
	if len(hex) == 3 || len(hex) == 4 {
		var b strings.Builder
		for _, r := range hex {
			b.WriteRune(r)
			b.WriteRune(r)
		}
		hex = b.String()
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil || len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return color.NRGBA{
		R: uint8(n >> 24),
		G: uint8(n >> 16),
		B: uint8(n >> 8),
		A: uint8(n),
	}, nil
}
