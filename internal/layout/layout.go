// Package layout computes the output canvas and the placement of every
// medium. It is the single source of geometry for the preview, the filter
// graph and the frame sequencer.
package layout

import (
	"fmt"
	"image"
	"math"

	"github.com/ivlev/scene2video/internal/bezel"
	"github.com/ivlev/scene2video/internal/geometry"
	"github.com/ivlev/scene2video/internal/scene"
)

// GeometryError reports a computed size or rect that is non-finite or
// empty.
type GeometryError struct {
	What  string
	Value any
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("geometry: invalid %s: %v", e.What, e.Value)
}

// Placement is where one medium lands on the canvas.
type Placement struct {
	Medium scene.Medium
	// Bezel is nil for unframed media.
	Bezel *bezel.Bezel
	// Rect is the total rectangle, bezel included.
	Rect image.Rectangle
	// ContentF is the unrounded content target: Rect inset by the bezel
	// content scale, or Rect itself.
	ContentF geometry.RectF
	// Content is ContentF rounded and centered in Rect.
	Content image.Rectangle
	// Fitted is the asset scaled into Content with its aspect ratio kept,
	// centered in Rect.
	Fitted image.Rectangle
}

// Index returns the medium identity.
func (p Placement) Index() int {
	return p.Medium.Base().Index
}

// Layout is the result of a layout pass.
type Layout struct {
	Width  int
	Height int
	// Scale maps natural footprints to output pixels.
	Scale      float64
	Placements []Placement
}

// Size returns the canvas size.
func (l *Layout) Size() geometry.Size {
	return geometry.Size{W: float64(l.Width), H: float64(l.Height)}
}

// Bounds returns the canvas rectangle.
func (l *Layout) Bounds() image.Rectangle {
	return image.Rect(0, 0, l.Width, l.Height)
}

// Placement returns the placement of the medium with the given index.
func (l *Layout) Placement(index int) (Placement, bool) {
	for _, p := range l.Placements {
		if p.Index() == index {
			return p, true
		}
	}
	return Placement{}, false
}

type footprint struct {
	medium scene.Medium
	bezel  *bezel.Bezel
	size   geometry.Size
}

// Compute lays out the scene as a horizontal filmstrip. Every footprint is
// scaled to the tallest one, then the strip is scaled down (never up) to
// fit the requested size.
func Compute(s *scene.Scene, catalog *bezel.Catalog) (*Layout, error) {
	if len(s.Media) == 0 {
		return nil, &GeometryError{What: "media count", Value: 0}
	}
	if s.MaxSize <= 0 {
		return nil, &GeometryError{What: "max size", Value: s.MaxSize}
	}

	prints, err := footprints(s, catalog)
	if err != nil {
		return nil, err
	}

	// Common height is the tallest footprint.
	height := 0.0
	for _, fp := range prints {
		height = math.Max(height, fp.size.H)
	}
	widths := make([]float64, len(prints))
	strip := 0.0
	for i, fp := range prints {
		widths[i] = fp.size.W * height / fp.size.H
		strip += widths[i]
	}
	gaps := s.Spacing * (len(prints) - 1)

	var (
		canvasW, canvasH int
		availW, availH   float64
	)
	if s.AspectRatio != nil {
		if !s.AspectRatio.Valid() {
			return nil, &GeometryError{What: "aspect ratio", Value: *s.AspectRatio}
		}
		canvasW, canvasH = s.AspectRatio.Fit(s.MaxSize)
		availW = float64(canvasW - 2*s.PaddingX - gaps)
		availH = float64(canvasH - 2*s.PaddingY)
	} else {
		availW = float64(s.MaxSize - gaps)
		availH = float64(s.MaxSize)
	}
	if availW <= 0 || availH <= 0 {
		return nil, &GeometryError{What: "available area", Value: geometry.Size{W: availW, H: availH}}
	}

	scale := math.Min(1, math.Min(availW/strip, availH/height))
	if !geometry.Finite(scale) || scale <= 0 {
		return nil, &GeometryError{What: "scale", Value: scale}
	}

	rowH := geometry.ClampPx(height * scale)
	cols := make([]int, len(prints))
	contentW := gaps
	for i, w := range widths {
		cols[i] = geometry.ClampPx(w * scale)
		contentW += cols[i]
	}

	var offX, offY int
	if s.AspectRatio != nil {
		offX = (canvasW - contentW) / 2
		offY = (canvasH - rowH) / 2
	} else {
		canvasW = contentW + 2*s.PaddingX
		canvasH = rowH + 2*s.PaddingY
		offX, offY = s.PaddingX, s.PaddingY
	}

	l := &Layout{Width: canvasW, Height: canvasH, Scale: scale}
	x := offX
	for i, fp := range prints {
		rect := image.Rect(x, offY, x+cols[i], offY+rowH)
		x += cols[i] + s.Spacing
		p, err := place(fp, rect)
		if err != nil {
			return nil, err
		}
		l.Placements = append(l.Placements, p)
	}
	return l, nil
}

func footprints(s *scene.Scene, catalog *bezel.Catalog) ([]footprint, error) {
	out := make([]footprint, 0, len(s.Media))
	for _, m := range s.Media {
		base := m.Base()
		fp := footprint{medium: m, size: base.Source.Size()}
		if base.WithBezel {
			b, ok := catalog.Lookup(base.BezelKey)
			if !ok {
				return nil, fmt.Errorf("medium %d: unknown bezel %q", base.Index, base.BezelKey)
			}
			fp.bezel = &b
			fp.size = b.NaturalSize(base.Orientation)
		}
		if !fp.size.Valid() {
			return nil, &GeometryError{What: fmt.Sprintf("medium %d footprint", base.Index), Value: fp.size}
		}
		out = append(out, fp)
	}
	return out, nil
}

func place(fp footprint, rect image.Rectangle) (Placement, error) {
	p := Placement{Medium: fp.medium, Bezel: fp.bezel, Rect: rect}

	p.ContentF = geometry.RectFromImage(rect)
	if fp.bezel != nil {
		p.ContentF = p.ContentF.Inset(fp.bezel.ContentScale)
	}
	if !p.ContentF.Valid() {
		return Placement{}, &GeometryError{What: fmt.Sprintf("medium %d content rect", p.Index()), Value: p.ContentF}
	}

	cw, ch := geometry.Size{W: p.ContentF.W, H: p.ContentF.H}.Round()
	p.Content = geometry.CenterIn(rect, cw, ch)

	src := fp.medium.Base().Source
	fw, fh := geometry.FitInside(src.Width, src.Height, cw, ch)
	p.Fitted = geometry.CenterIn(rect, fw, fh)
	return p, nil
}

// SceneSize returns the output canvas size of the scene.
func SceneSize(s *scene.Scene, catalog *bezel.Catalog) (geometry.Size, error) {
	l, err := Compute(s, catalog)
	if err != nil {
		return geometry.Size{}, err
	}
	return l.Size(), nil
}

// MediumRect returns the total rectangle of m, bezel included.
func MediumRect(s *scene.Scene, catalog *bezel.Catalog, m scene.Medium) (image.Rectangle, error) {
	l, err := Compute(s, catalog)
	if err != nil {
		return image.Rectangle{}, err
	}
	p, ok := l.Placement(m.Base().Index)
	if !ok {
		return image.Rectangle{}, fmt.Errorf("medium %d is not part of the scene", m.Base().Index)
	}
	return p.Rect, nil
}
