package scene

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// BackgroundKind tags the background variants.
type BackgroundKind int

const (
	BackgroundSolid BackgroundKind = iota
	BackgroundLinear
	BackgroundRadial
	BackgroundImage
)

func (k BackgroundKind) String() string {
	switch k {
	case BackgroundLinear:
		return "linear"
	case BackgroundRadial:
		return "radial"
	case BackgroundImage:
		return "image"
	default:
		return "solid"
	}
}

// Background is the bottom layer of a scene. Equality is by value: colors
// compare by normalized hex string, images by source reference.
type Background interface {
	Kind() BackgroundKind
	Equal(other Background) bool
	isBackground()
}

// Solid fills the canvas with one color.
type Solid struct {
	Color string
}

// LinearGradient runs from From to To along Angle degrees, where 0 points
// up and 90 points right.
type LinearGradient struct {
	From  string
	To    string
	Angle float64
}

// RadialGradient runs from Inner at the center to Outer at the half
// diagonal. InnerRadius is the fraction of the outer radius covered by the
// solid inner color.
type RadialGradient struct {
	Inner       string
	Outer       string
	InnerRadius float64
}

// ImageFill draws a picture, stretched or aspect-filled.
type ImageFill struct {
	Source     string
	AspectFill bool
}

func (Solid) Kind() BackgroundKind          { return BackgroundSolid }
func (LinearGradient) Kind() BackgroundKind { return BackgroundLinear }
func (RadialGradient) Kind() BackgroundKind { return BackgroundRadial }
func (ImageFill) Kind() BackgroundKind      { return BackgroundImage }

func (Solid) isBackground()          {}
func (LinearGradient) isBackground() {}
func (RadialGradient) isBackground() {}
func (ImageFill) isBackground()      {}

func (b Solid) Equal(other Background) bool {
	o, ok := other.(Solid)
	return ok && sameColor(b.Color, o.Color)
}

func (b LinearGradient) Equal(other Background) bool {
	o, ok := other.(LinearGradient)
	return ok && sameColor(b.From, o.From) && sameColor(b.To, o.To) && b.Angle == o.Angle
}

func (b RadialGradient) Equal(other Background) bool {
	o, ok := other.(RadialGradient)
	return ok && sameColor(b.Inner, o.Inner) && sameColor(b.Outer, o.Outer) && b.InnerRadius == o.InnerRadius
}

func (b ImageFill) Equal(other Background) bool {
	o, ok := other.(ImageFill)
	return ok && b.Source == o.Source && b.AspectFill == o.AspectFill
}

func sameColor(a, b string) bool {
	na, errA := NormalizeHex(a)
	nb, errB := NormalizeHex(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return na == nb
}

// NormalizeHex canonicalizes "#abc", "abc", "#AABBCC" and "#aabbccdd" to
// lowercase "#rrggbb" or "#rrggbbaa". Fully opaque alpha is dropped.
func NormalizeHex(s string) (string, error) {
	h := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "#"))
	switch len(h) {
	case 3, 4:
		var b strings.Builder
		for _, c := range h {
			b.WriteRune(c)
			b.WriteRune(c)
		}
		h = b.String()
	case 6, 8:
	default:
		return "", fmt.Errorf("invalid hex color %q", s)
	}
	if _, err := strconv.ParseUint(h, 16, 32); err != nil {
		return "", fmt.Errorf("invalid hex color %q", s)
	}
	if len(h) == 8 && h[6:] == "ff" {
		h = h[:6]
	}
	return "#" + h, nil
}

// ParseColor converts a hex color to a non-premultiplied color.
func ParseColor(s string) (color.NRGBA, error) {
	h, err := NormalizeHex(s)
	if err != nil {
		return color.NRGBA{}, err
	}
	v, _ := strconv.ParseUint(h[1:], 16, 32)
	if len(h) == 7 {
		return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
