package compositor

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/ivlev/scene2video/internal/layout"
	"github.com/ivlev/scene2video/internal/scene"
	"github.com/ivlev/scene2video/internal/system"
)

// DrawShadows paints a drop shadow for every medium that asks for one. The
// shadow is composited source-atop, so it only lands on painted background
// pixels and never on transparent canvas regions.
func (c *Compositor) DrawShadows(dst *image.RGBA, l *layout.Layout) error {
	for _, p := range l.Placements {
		base := p.Medium.Base()
		if !base.WithShadow {
			continue
		}
		col, err := scene.ParseColor(base.Shadow.Color)
		if err != nil {
			return err
		}

		sil, err := c.silhouette(p)
		if err != nil {
			return err
		}
		region := sil.Bounds()
		shadow := shadowImage(sil, region, col, base.Shadow.Blur)
		system.PutImage(sil)

		margin := shadowMargin(base.Shadow.Blur)
		at := region.Min.Add(image.Pt(
			int(math.Round(base.Shadow.OffsetX))-margin,
			int(math.Round(base.Shadow.OffsetY))-margin,
		))
		sourceAtop(dst, shadow, at)

		c.logger.Debug().
			Int("medium", base.Index).
			Float64("blur", base.Shadow.Blur).
			Msg("shadow drawn")
	}
	return nil
}

// shadowMargin is the room left around a silhouette for the blur to spread.
func shadowMargin(blur float64) int {
	return int(math.Ceil(blur * 1.5))
}

// shadowImage tints the silhouette and blurs it. A canvas shadow blur of b
// corresponds to a gaussian with sigma b/2.
func shadowImage(sil *image.RGBA, region image.Rectangle, col color.NRGBA, blur float64) image.Image {
	tinted := tint(sil, region, col)
	margin := shadowMargin(blur)
	if margin == 0 {
		return tinted
	}
	padded := imaging.New(region.Dx()+2*margin, region.Dy()+2*margin, color.NRGBA{})
	padded = imaging.Paste(padded, tinted, image.Pt(margin, margin))
	return imaging.Blur(padded, blur/2)
}
