package filtergraph

import (
	"fmt"
	"strconv"

	"github.com/ivlev/scene2video/internal/compositor"
	"github.com/ivlev/scene2video/internal/layout"
	"github.com/ivlev/scene2video/internal/scene"
	"github.com/ivlev/scene2video/internal/timing"
)

// DefaultFPS is used when the scene does not set a frame rate.
const DefaultFPS = 30

// Input is one -i binding with the flags that precede it.
type Input struct {
	Args []string
	Path string
}

// Command is a complete transcoder invocation minus the output path.
type Command struct {
	Inputs     []Input
	Graph      *Graph
	Output     Label
	OutputArgs []string
	Format     Format
	Width      int
	Height     int
	Duration   float64
	FPS        int
}

// Args renders the argument list. output may be a path or "pipe:1".
func (c *Command) Args(output string) []string {
	args := []string{"-y", "-hide_banner", "-nostdin"}
	for _, in := range c.Inputs {
		args = append(args, in.Args...)
		args = append(args, "-i", in.Path)
	}
	args = append(args, "-filter_complex", c.Graph.String(), "-map", c.Output.String())
	args = append(args, c.OutputArgs...)
	return append(args, output)
}

// Frames is the expected number of output frames.
func (c *Command) Frames() int {
	return FrameCount(c.Duration, c.FPS)
}

// Params is everything the synthesizer needs.
type Params struct {
	Scene  *scene.Scene
	Layout *layout.Layout
	Trims  []timing.Trim
	// Files are the static layers rendered by the compositor.
	Files  compositor.Files
	Format Format
	// Encoder overrides the default H.264 codec.
	Encoder string
}

// Build translates a laid-out scene into a transcoder command. Media are
// folded pairwise in declaration order, merged with the scene mask, placed
// over the background and under the bezel frames.
func Build(p Params) (*Command, error) {
	s, l, f := p.Scene, p.Layout, p.Format
	if !f.Supports(BackendGraph) {
		return nil, fmt.Errorf("format %s cannot be produced by the filter graph", f.Name)
	}
	duration := s.Duration()
	if duration <= 0 {
		return nil, fmt.Errorf("animated output needs a positive duration, got %gs", duration)
	}
	fps := s.Options.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}

	trims := make(map[int]timing.Trim, len(p.Trims))
	for _, tr := range p.Trims {
		trims[tr.Index] = tr
	}
	// Inputs come from the scene, not the layout: the caller may have
	// swapped sources for staged copies after layout was computed.
	paths := make(map[int]string, len(s.Media))
	for _, m := range s.Media {
		paths[m.Base().Index] = m.Base().Source.Path
	}

	g := New()
	cmd := &Command{Graph: g, Format: f, Duration: duration, FPS: fps}
	still := []string{"-loop", "1", "-t", strconv.FormatFloat(duration, 'f', -1, 64)}
	bind := func(path string, args []string) Label {
		cmd.Inputs = append(cmd.Inputs, Input{Args: args, Path: path})
		return InputLabel(len(cmd.Inputs) - 1)
	}

	var merged Label
	for i, pl := range l.Placements {
		base := pl.Medium.Base()
		path, ok := paths[base.Index]
		if !ok {
			return nil, fmt.Errorf("medium %d: not in scene", base.Index)
		}
		var (
			in      Label
			filters []Filter
		)
		switch pl.Medium.(type) {
		case scene.Video:
			tr, ok := trims[base.Index]
			if !ok {
				return nil, fmt.Errorf("medium %d: no timing for video", base.Index)
			}
			in = bind(path, nil)
			filters = timingFilters(tr)
		default:
			in = bind(path, still)
		}
		filters = append(filters,
			PixelFormat("rgba"),
			ScaleDown(pl.Content.Dx(), pl.Content.Dy()),
			PadCenter(pl.Rect.Dx(), pl.Rect.Dy()),
			PadAt(l.Width, l.Height, pl.Rect.Min.X, pl.Rect.Min.Y),
		)
		media := g.Chain("m", []Label{in}, filters...)

		if i == 0 {
			merged = media
			continue
		}
		merged = g.Chain("o", []Label{merged, media}, Overlay())
	}

	bg := bind(p.Files.Background, still)
	maskIn := bind(p.Files.Mask, still)
	fg := bind(p.Files.Foreground, still)

	gray := g.Chain("k", []Label{maskIn}, PixelFormat("gray"))
	scaled := g.ChainN("r", 2, []Label{gray, merged}, Scale2Ref())
	alpha := g.Chain("a", []Label{scaled[1], scaled[0]}, AlphaMerge())
	over := g.Chain("c", []Label{bg, alpha}, Overlay())
	framed := g.Chain("c", []Label{over, fg}, Overlay())

	w, h := l.Width, l.Height
	tail := []Filter{FPS(fps)}
	if f.Even && (w%2 != 0 || h%2 != 0) {
		tail = append(tail, PadEven())
		w, h = w+w%2, h+h%2
	}

	if f.Palette {
		pre := g.Chain("v", []Label{framed}, tail...)
		cmd.Output = paletteChain(g, pre, paletteSize(s.Options.MaxColors, f.MaxColors))
	} else {
		cmd.Output = g.Chain("out", []Label{framed}, tail...)
	}

	args, err := f.OutputArgs(s.Options, p.Encoder, w, h)
	if err != nil {
		return nil, err
	}
	cmd.OutputArgs = args
	cmd.Width, cmd.Height = w, h
	return cmd, nil
}

// timingFilters trims a clip and pads it to span the scene window.
func timingFilters(tr timing.Trim) []Filter {
	var filters []Filter
	if tr.TrimStart != nil || tr.TrimEnd != nil {
		filters = append(filters, Trim(tr.TrimStart, tr.TrimEnd))
	}
	filters = append(filters, ResetPTS())
	if tr.LeadPad > 0 || tr.TrailPad > 0 {
		filters = append(filters, ClonePad(tr.LeadPad, tr.TrailPad))
	}
	return filters
}

// paletteChain splits in once and feeds both palettegen and paletteuse
// from that single split, so the palette always matches the frames it is
// applied to.
func paletteChain(g *Graph, in Label, maxColors int) Label {
	branches := g.ChainN("s", 2, []Label{in}, Split(2))
	palette := g.Chain("p", []Label{branches[0]}, PaletteGen(maxColors))
	return g.Chain("out", []Label{branches[1], palette}, PaletteUse())
}

func paletteSize(requested, fallback int) int {
	switch {
	case requested >= 2 && requested <= 256:
		return requested
	case requested > 256:
		return 256
	case fallback > 0:
		return fallback
	}
	return 256
}

// FrameCount is ceil(duration * fps).
func FrameCount(duration float64, fps int) int {
	n := duration * float64(fps)
	whole := int(n)
	if float64(whole) < n-1e-9 {
		whole++
	}
	return whole
}
