// Package preview renders single frames of a scene for inspection. Each
// call opens its own decode handles, so a preview never disturbs a running
// conversion.
package preview

import (
	"context"
	"fmt"
	"image"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/scene2video/internal/bezel"
	"github.com/ivlev/scene2video/internal/compositor"
	"github.com/ivlev/scene2video/internal/layout"
	"github.com/ivlev/scene2video/internal/scene"
	"github.com/ivlev/scene2video/internal/sequencer"
	"github.com/ivlev/scene2video/internal/timing"
)

// Renderer draws preview frames.
type Renderer struct {
	catalog    *bezel.Catalog
	compositor *compositor.Compositor
	open       sequencer.OpenFunc
	logger     zerolog.Logger
}

// New creates a preview renderer.
func New(catalog *bezel.Catalog, load compositor.Loader, open sequencer.OpenFunc, logger zerolog.Logger) *Renderer {
	return &Renderer{
		catalog:    catalog,
		compositor: compositor.New(catalog, load, logger),
		open:       open,
		logger:     logger.With().Str("component", "preview").Logger(),
	}
}

// RenderAt draws the scene as it appears at scene time t. Times outside
// the scene window are clamped to it.
func (r *Renderer) RenderAt(ctx context.Context, s *scene.Scene, t float64) (*image.RGBA, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	t = min(max(t, s.StartTime), s.EndTime)

	l, err := layout.Compute(s, r.catalog)
	if err != nil {
		return nil, err
	}
	trims, err := timing.All(s)
	if err != nil {
		return nil, err
	}
	static, err := r.compositor.Prepare(s, l)
	if err != nil {
		return nil, err
	}
	stills, err := r.compositor.LoadStills(ctx, s)
	if err != nil {
		return nil, err
	}

	contents := make(map[int]compositor.Content, len(s.Media))
	for idx, img := range stills {
		contents[idx] = compositor.Still{Image: img}
	}
	frames, err := r.decode(ctx, s, trims, t)
	if err != nil {
		return nil, err
	}
	for idx, frame := range frames {
		contents[idx] = compositor.Frame{Image: frame}
	}

	dst := image.NewRGBA(l.Bounds())
	static.Compose(dst, contents)
	r.logger.Debug().Float64("time", t).Int("width", l.Width).Int("height", l.Height).Msg("preview rendered")
	return dst, nil
}

// decode fetches one frame per video. The frames are copied out before the
// sources close.
func (r *Renderer) decode(ctx context.Context, s *scene.Scene, trims []timing.Trim, t float64) (map[int]*image.RGBA, error) {
	paths := make(map[int]string)
	for _, v := range s.Videos() {
		paths[v.Index] = v.Source.Path
	}

	frames := make([]*image.RGBA, len(trims))
	g, ctx := errgroup.WithContext(ctx)
	for i, tr := range trims {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			src, err := r.open(paths[tr.Index])
			if err != nil {
				return fmt.Errorf("medium %d: %w", tr.Index, err)
			}
			defer src.Close()

			frame, err := src.FrameAt(tr.ClipTime(t))
			if err != nil {
				return fmt.Errorf("medium %d: %w", tr.Index, err)
			}
			out := image.NewRGBA(frame.Bounds())
			copy(out.Pix, frame.Pix)
			frames[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[int]*image.RGBA, len(trims))
	for i, tr := range trims {
		out[tr.Index] = frames[i]
	}
	return out, nil
}
