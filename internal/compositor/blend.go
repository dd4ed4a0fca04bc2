package compositor

import (
	"image"
	"image/color"
)

// Porter-Duff helpers over premultiplied RGBA. image/draw only offers Over
// and Src, so the remaining operators are spelled out here.

// destinationIn keeps dst only where keep is opaque.
func destinationIn(dst *image.RGBA, keep image.Rectangle) {
	b := dst.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if (image.Point{X: x, Y: y}).In(keep) {
				continue
			}
			i := dst.PixOffset(x, y)
			clear(dst.Pix[i : i+4])
		}
	}
}

// sourceAtop draws src onto dst at offset, only where dst is already
// painted. Destination alpha is preserved.
func sourceAtop(dst *image.RGBA, src image.Image, at image.Point) {
	sb := src.Bounds()
	r := sb.Add(at.Sub(sb.Min)).Intersect(dst.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			sr, sg, sbl, sa := src.At(x-at.X+sb.Min.X, y-at.Y+sb.Min.Y).RGBA()
			if sa == 0 {
				continue
			}
			i := dst.PixOffset(x, y)
			da := uint32(dst.Pix[i+3])
			if da == 0 {
				continue
			}
			// out = src*da + dst*(1-sa)
			inv := 0xffff - sa
			dst.Pix[i+0] = uint8((sr*da/0xff + uint32(dst.Pix[i+0])*inv/0xff) >> 8)
			dst.Pix[i+1] = uint8((sg*da/0xff + uint32(dst.Pix[i+1])*inv/0xff) >> 8)
			dst.Pix[i+2] = uint8((sbl*da/0xff + uint32(dst.Pix[i+2])*inv/0xff) >> 8)
		}
	}
}

// replaceAlpha copies the alpha of src into mask inside r. Later media
// overwrite whatever earlier media left in their area.
func replaceAlpha(mask *image.Alpha, src *image.RGBA, r image.Rectangle) {
	r = r.Intersect(mask.Bounds()).Intersect(src.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			mask.Pix[mask.PixOffset(x, y)] = src.Pix[src.PixOffset(x, y)+3]
		}
	}
}

// alphaMerge replaces the alpha of every pixel in dst with the mask value,
// keeping the straight color. Fully transparent pixels become black.
func alphaMerge(dst *image.RGBA, mask *image.Alpha) {
	b := dst.Bounds().Intersect(mask.Bounds())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := dst.PixOffset(x, y)
			a := uint32(dst.Pix[i+3])
			m := uint32(mask.Pix[mask.PixOffset(x, y)])
			if a == 0 {
				dst.Pix[i+0], dst.Pix[i+1], dst.Pix[i+2] = 0, 0, 0
			} else {
				for c := 0; c < 3; c++ {
					straight := min(uint32(dst.Pix[i+c])*0xff/a, 0xff)
					dst.Pix[i+c] = uint8(straight * m / 0xff)
				}
			}
			dst.Pix[i+3] = uint8(m)
		}
	}
}

// tint paints the silhouette alpha of src in c.
func tint(src *image.RGBA, r image.Rectangle, c color.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			a := src.RGBAAt(r.Min.X+x, r.Min.Y+y).A
			if a == 0 {
				continue
			}
			out.SetNRGBA(x, y, color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(uint32(a) * uint32(c.A) / 0xff)})
		}
	}
	return out
}

// toGray renders a mask as a grayscale image for the transcoder, which
// reads the alpha from luminance.
func toGray(mask *image.Alpha) *image.Gray {
	g := image.NewGray(mask.Bounds())
	copy(g.Pix, mask.Pix)
	return g
}
