// Package geometry holds the size and rectangle primitives shared by the
// layout engine and both render backends.
package geometry

import (
	"fmt"
	"image"
	"math"
)

// Size is a width/height pair in pixels. Fractional values appear only
// before rounding.
type Size struct {
	W float64 `yaml:"w"`
	H float64 `yaml:"h"`
}

// Valid reports whether both dimensions are finite and strictly positive.
func (s Size) Valid() bool {
	return finite(s.W) && finite(s.H) && s.W > 0 && s.H > 0
}

// Swap returns the size rotated by 90 degrees.
func (s Size) Swap() Size {
	return Size{W: s.H, H: s.W}
}

// Scale multiplies both dimensions by k.
func (s Size) Scale(k float64) Size {
	return Size{W: s.W * k, H: s.H * k}
}

// Round rounds both dimensions to whole pixels and clamps them to 1px.
func (s Size) Round() (int, int) {
	return clampPx(s.W), clampPx(s.H)
}

// Even rounds both dimensions up to the next even number, as required by
// 4:2:0 video codecs.
func Even(w, h int) (int, int) {
	if w%2 != 0 {
		w++
	}
	if h%2 != 0 {
		h++
	}
	return w, h
}

func (s Size) String() string {
	return fmt.Sprintf("%gx%g", s.W, s.H)
}

// RectF is a rectangle with fractional coordinates.
type RectF struct {
	X, Y, W, H float64
}

// RectFromImage converts an integer rectangle.
func RectFromImage(r image.Rectangle) RectF {
	return RectF{X: float64(r.Min.X), Y: float64(r.Min.Y), W: float64(r.Dx()), H: float64(r.Dy())}
}

// Inset returns a rectangle of the same center scaled by k.
func (r RectF) Inset(k float64) RectF {
	w, h := r.W*k, r.H*k
	return RectF{X: r.X + (r.W-w)/2, Y: r.Y + (r.H-h)/2, W: w, H: h}
}

// Valid reports whether the rectangle has finite coordinates and a
// non-empty area.
func (r RectF) Valid() bool {
	return finite(r.X) && finite(r.Y) && Size{W: r.W, H: r.H}.Valid()
}

// AspectRatio is a requested output ratio such as 16:9.
type AspectRatio struct {
	W float64 `yaml:"w"`
	H float64 `yaml:"h"`
}

// Valid reports whether both terms are finite and positive.
func (a AspectRatio) Valid() bool {
	return Size{W: a.W, H: a.H}.Valid()
}

// Fit returns the canvas whose longer side equals maxSize.
func (a AspectRatio) Fit(maxSize int) (int, int) {
	m := float64(maxSize)
	if a.W >= a.H {
		return clampPx(m), clampPx(m * a.H / a.W)
	}
	return clampPx(m * a.W / a.H), clampPx(m)
}

func (a AspectRatio) String() string {
	return fmt.Sprintf("%g:%g", a.W, a.H)
}

// Orientation is one of four 90-degree rotations, measured clockwise.
type Orientation int

const (
	Portrait Orientation = iota
	LandscapeRight
	PortraitUpsideDown
	LandscapeLeft
)

// Degrees returns the clockwise rotation.
func (o Orientation) Degrees() int {
	return int(o.normalize()) * 90
}

// SideUp reports whether the rotation swaps width and height.
func (o Orientation) SideUp() bool {
	n := o.normalize()
	return n == LandscapeRight || n == LandscapeLeft
}

func (o Orientation) normalize() Orientation {
	return ((o % 4) + 4) % 4
}

func (o Orientation) String() string {
	switch o.normalize() {
	case LandscapeRight:
		return "landscape-right"
	case PortraitUpsideDown:
		return "portrait-upside-down"
	case LandscapeLeft:
		return "landscape-left"
	default:
		return "portrait"
	}
}

// ParseOrientation accepts the names produced by String and plain degree
// values ("0", "90", "180", "270").
func ParseOrientation(s string) (Orientation, error) {
	switch s {
	case "", "portrait", "0":
		return Portrait, nil
	case "landscape-right", "90":
		return LandscapeRight, nil
	case "portrait-upside-down", "180":
		return PortraitUpsideDown, nil
	case "landscape-left", "270":
		return LandscapeLeft, nil
	}
	return Portrait, fmt.Errorf("unknown orientation %q", s)
}

// FitInside scales src to fit within a box of w x h without changing its
// aspect ratio. Rounding follows the transcoder's
// force_original_aspect_ratio=decrease so that both backends agree on the
// exact pixel size.
func FitInside(srcW, srcH, w, h int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return w, h
	}
	tmpW := rescale(h, srcW, srcH)
	tmpH := rescale(w, srcH, srcW)
	fw, fh := min(tmpW, w), min(tmpH, h)
	return max(fw, 1), max(fh, 1)
}

// rescale computes a*b/c rounded to nearest, half away from zero.
func rescale(a, b, c int) int {
	return int((int64(a)*int64(b) + int64(c)/2) / int64(c))
}

// CenterIn places a w x h box centered in r. Offsets are truncated the way
// the pad filter truncates (ow-iw)/2.
func CenterIn(r image.Rectangle, w, h int) image.Rectangle {
	x := r.Min.X + (r.Dx()-w)/2
	y := r.Min.Y + (r.Dy()-h)/2
	return image.Rect(x, y, x+w, y+h)
}

func clampPx(v float64) int {
	px := int(math.Round(v))
	if px < 1 {
		return 1
	}
	return px
}

// ClampPx rounds v to whole pixels with a 1px floor.
func ClampPx(v float64) int {
	return clampPx(v)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return finite(v)
}
