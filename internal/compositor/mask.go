package compositor

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/gogpu/gg"
	xdraw "golang.org/x/image/draw"

	"github.com/ivlev/scene2video/internal/bezel"
	"github.com/ivlev/scene2video/internal/geometry"
	"github.com/ivlev/scene2video/internal/layout"
	"github.com/ivlev/scene2video/internal/system"
)

// GenerateMask builds the scene-wide alpha mask. Each medium contributes
// its bezel silhouette or a rounded rectangle; later media replace earlier
// mask values inside their own area. Layout rects never overlap, so this
// equals multiplying per-medium masks. A layout that lets media overlap
// must switch to multiplication here.
func (c *Compositor) GenerateMask(l *layout.Layout) (*image.Alpha, error) {
	mask := image.NewAlpha(l.Bounds())
	for _, p := range l.Placements {
		sil, err := c.silhouette(p)
		if err != nil {
			return nil, err
		}
		replaceAlpha(mask, sil, sil.Bounds())
		system.PutImage(sil)
	}
	return mask, nil
}

// silhouette draws the opaque shape of one medium on a scratch canvas whose
// bounds are the shape's area in scene coordinates. The caller returns the
// canvas to the pool.
func (c *Compositor) silhouette(p layout.Placement) (*image.RGBA, error) {
	if p.Bezel != nil {
		src, err := c.catalog.Image(*p.Bezel, bezel.SolidMask)
		if err != nil {
			return nil, err
		}
		return fitAsset(src, p), nil
	}

	r := p.Fitted
	scratch := system.GetImage(r)

	dc := gg.NewContext(r.Dx(), r.Dy())
	defer dc.Close()
	dc.SetColor(color.White)
	w, h := float64(r.Dx()), float64(r.Dy())
	if radius := clampRadius(p.Medium.Base().CornerRadius, r); radius > 0 {
		dc.DrawRoundedRectangle(0, 0, w, h, radius)
	} else {
		dc.DrawRectangle(0, 0, w, h)
	}
	if err := dc.Fill(); err != nil {
		system.PutImage(scratch)
		return nil, err
	}
	xdraw.Draw(scratch, r, dc.Image(), image.Point{}, xdraw.Src)
	return scratch, nil
}

// clampRadius limits a corner radius to half of the smaller side.
func clampRadius(radius float64, r image.Rectangle) float64 {
	limit := float64(min(r.Dx(), r.Dy())) / 2
	return math.Max(0, math.Min(radius, limit))
}

// fitAsset rotates a bezel asset per orientation and stretches it over the
// medium rect.
func fitAsset(src image.Image, p layout.Placement) *image.RGBA {
	r := p.Rect
	rotated := rotate(src, p.Medium.Base().Orientation)
	resized := imaging.Resize(rotated, r.Dx(), r.Dy(), imaging.Lanczos)

	scratch := system.GetImage(r)
	xdraw.Draw(scratch, r, resized, image.Point{}, xdraw.Src)
	return scratch
}

// rotate turns img clockwise by the orientation angle. imaging rotates
// counter-clockwise.
func rotate(img image.Image, o geometry.Orientation) image.Image {
	switch o.Degrees() {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	}
	return img
}

// DrawForeground draws the full-color bezel frames over their media rects.
func (c *Compositor) DrawForeground(dst *image.RGBA, l *layout.Layout) error {
	for _, p := range l.Placements {
		if p.Bezel == nil {
			continue
		}
		src, err := c.catalog.Image(*p.Bezel, bezel.FullColor)
		if err != nil {
			return err
		}
		frame := fitAsset(src, p)
		xdraw.Draw(dst, p.Rect, frame, p.Rect.Min, xdraw.Over)
		system.PutImage(frame)
	}
	return nil
}
