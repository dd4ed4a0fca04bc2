package compositor

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/gogpu/gg"
	xdraw "golang.org/x/image/draw"

	"github.com/ivlev/scene2video/internal/scene"
	"github.com/ivlev/scene2video/internal/system"
)

// maxInnerRadius keeps a radial gradient from collapsing into a zero-width
// band.
const maxInnerRadius = 0.99

// DrawBackground fills rect of dst with the background. A nil background
// leaves dst untouched.
func (c *Compositor) DrawBackground(dst *image.RGBA, bg scene.Background, rect image.Rectangle) error {
	if rect.Empty() {
		return nil
	}
	switch b := bg.(type) {
	case nil:
		return nil
	case scene.Solid:
		col, err := scene.ParseColor(b.Color)
		if err != nil {
			return err
		}
		xdraw.Draw(dst, rect, image.NewUniform(col), image.Point{}, xdraw.Over)
		return nil
	case scene.LinearGradient:
		from, to, err := gradientColors(b.From, b.To)
		if err != nil {
			return err
		}
		x0, y0, x1, y1 := linearAxis(b.Angle, float64(rect.Dx()), float64(rect.Dy()))
		brush := gg.NewLinearGradientBrush(x0, y0, x1, y1).
			AddColorStop(0, from).
			AddColorStop(1, to)
		return paint(dst, rect, brush)
	case scene.RadialGradient:
		inner, outer, err := gradientColors(b.Inner, b.Outer)
		if err != nil {
			return err
		}
		w, h := float64(rect.Dx()), float64(rect.Dy())
		ratio := clampInnerRadius(b.InnerRadius)
		brush := gg.NewRadialGradientBrush(w/2, h/2, 0, math.Hypot(w, h)/2).
			AddColorStop(0, inner).
			AddColorStop(ratio, inner).
			AddColorStop(1, outer)
		return paint(dst, rect, brush)
	case scene.ImageFill:
		return c.drawImageBackground(dst, b, rect)
	}
	return fmt.Errorf("unsupported background %T", bg)
}

func gradientColors(a, b string) (gg.RGBA, gg.RGBA, error) {
	ca, err := scene.ParseColor(a)
	if err != nil {
		return gg.RGBA{}, gg.RGBA{}, err
	}
	cb, err := scene.ParseColor(b)
	if err != nil {
		return gg.RGBA{}, gg.RGBA{}, err
	}
	return gg.FromColor(ca), gg.FromColor(cb), nil
}

// clampInnerRadius bounds the solid inner fraction to [0, maxInnerRadius].
func clampInnerRadius(r float64) float64 {
	return math.Max(0, math.Min(r, maxInnerRadius))
}

// linearAxis projects a gradient angle onto a w x h box. 0 degrees points
// up, 90 points right. The axis length is chosen so that the end stops
// touch opposite corners for any angle.
func linearAxis(angle, w, h float64) (x0, y0, x1, y1 float64) {
	rad := angle * math.Pi / 180
	dx, dy := math.Sin(rad), -math.Cos(rad)
	half := (math.Abs(w*dx) + math.Abs(h*dy)) / 2
	cx, cy := w/2, h/2
	return cx - dx*half, cy - dy*half, cx + dx*half, cy + dy*half
}

// paint fills a rect-sized gg context with brush and draws it over dst.
func paint(dst *image.RGBA, rect image.Rectangle, brush gg.Brush) error {
	dc := gg.NewContext(rect.Dx(), rect.Dy())
	defer dc.Close()
	dc.SetFillBrush(brush)
	dc.DrawRectangle(0, 0, float64(rect.Dx()), float64(rect.Dy()))
	if err := dc.Fill(); err != nil {
		return fmt.Errorf("fill gradient: %w", err)
	}
	xdraw.Draw(dst, rect, dc.Image(), image.Point{}, xdraw.Over)
	return nil
}

// drawImageBackground stretches the picture over rect, or scales it to
// cover rect and crops the overflow around the center.
func (c *Compositor) drawImageBackground(dst *image.RGBA, b scene.ImageFill, rect image.Rectangle) error {
	src, err := c.load(b.Source)
	if err != nil {
		return fmt.Errorf("background image: %w", err)
	}

	var fitted image.Image
	if b.AspectFill {
		sb := src.Bounds()
		k := math.Max(float64(rect.Dx())/float64(sb.Dx()), float64(rect.Dy())/float64(sb.Dy()))
		w := int(math.Ceil(float64(sb.Dx()) * k))
		h := int(math.Ceil(float64(sb.Dy()) * k))
		fitted = imaging.Resize(src, w, h, imaging.Lanczos)
	} else {
		fitted = imaging.Resize(src, rect.Dx(), rect.Dy(), imaging.Lanczos)
	}

	layer := system.GetImage(dst.Bounds())
	defer system.PutImage(layer)

	fb := fitted.Bounds()
	origin := image.Pt(
		rect.Min.X+(rect.Dx()-fb.Dx())/2,
		rect.Min.Y+(rect.Dy()-fb.Dy())/2,
	)
	xdraw.Draw(layer, fb.Sub(fb.Min).Add(origin), fitted, fb.Min, xdraw.Src)
	destinationIn(layer, rect)

	xdraw.Draw(dst, dst.Bounds(), layer, dst.Bounds().Min, xdraw.Over)
	return nil
}
