package filtergraph

import "fmt"

// transparent is the pad fill used around media.
const transparent = "black@0"

// Trim cuts a stream to [start, end]. Nil bounds are omitted.
func Trim(start, end *float64) Filter {
	f := Filter{Name: "trim"}
	if start != nil {
		f = f.With("start", *start)
	}
	if end != nil {
		f = f.With("end", *end)
	}
	return f
}

// ResetPTS restarts timestamps at zero after a trim.
func ResetPTS() Filter {
	return Filter{Name: "setpts"}.Arg("PTS-STARTPTS")
}

// ClonePad holds the first frame for lead seconds and the last frame for
// trail seconds.
func ClonePad(lead, trail float64) Filter {
	return Filter{Name: "tpad"}.
		With("start_duration", lead).
		With("stop_duration", trail).
		With("start_mode", "clone").
		With("stop_mode", "clone")
}

// PixelFormat converts to the given pixel format.
func PixelFormat(pixFmt string) Filter {
	return Filter{Name: "format"}.Arg(pixFmt)
}

// ScaleDown fits a stream inside w x h keeping its aspect ratio.
func ScaleDown(w, h int) Filter {
	return Filter{Name: "scale"}.Arg(w).Arg(h).With("force_original_aspect_ratio", "decrease")
}

// PadCenter centers a stream on a transparent w x h canvas.
func PadCenter(w, h int) Filter {
	return Filter{Name: "pad"}.Arg(w).Arg(h).Arg("(ow-iw)/2").Arg("(oh-ih)/2").With("color", transparent)
}

// PadAt places a stream at (x, y) on a transparent w x h canvas.
func PadAt(w, h, x, y int) Filter {
	return Filter{Name: "pad"}.Arg(w).Arg(h).Arg(x).Arg(y).With("color", transparent)
}

// PadEven grows the canvas to even dimensions.
func PadEven() Filter {
	return Filter{Name: "pad"}.Arg("ceil(iw/2)*2").Arg("ceil(ih/2)*2").Arg(0).Arg(0).With("color", "black")
}

// Overlay draws the second input over the first at the origin.
func Overlay() Filter {
	return Filter{Name: "overlay"}.With("x", 0).With("y", 0).With("format", "auto")
}

// Scale2Ref scales the first input to the size of the second.
func Scale2Ref() Filter {
	return Filter{Name: "scale2ref"}.With("w", "rw").With("h", "rh")
}

// AlphaMerge takes the alpha of the first input from the luminance of the
// second.
func AlphaMerge() Filter {
	return Filter{Name: "alphamerge"}
}

// FPS resamples to a constant frame rate.
func FPS(n int) Filter {
	return Filter{Name: "fps"}.Arg(n)
}

// Split duplicates a stream.
func Split(n int) Filter {
	if n == 2 {
		return Filter{Name: "split"}
	}
	return Filter{Name: "split"}.Arg(n)
}

// PaletteGen derives a palette of at most maxColors colors.
func PaletteGen(maxColors int) Filter {
	return Filter{Name: "palettegen"}.With("max_colors", maxColors)
}

// PaletteUse maps a stream onto a palette.
func PaletteUse() Filter {
	return Filter{Name: "paletteuse"}.With("dither", "bayer")
}

// Size formats a frame size for -s.
func Size(w, h int) string {
	return fmt.Sprintf("%dx%d", w, h)
}
