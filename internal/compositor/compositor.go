// Package compositor draws the scene layers shared by every backend: the
// background with drop shadows, the alpha mask and the bezel frames. The
// live preview, the frame sequencer and the filter graph all consume the
// same layers, which keeps their output pixel-consistent.
package compositor

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/scene2video/internal/bezel"
	"github.com/ivlev/scene2video/internal/layout"
	"github.com/ivlev/scene2video/internal/scene"
	"github.com/ivlev/scene2video/internal/system"
)

// Loader decodes an image file.
type Loader func(path string) (image.Image, error)

// OpenImage is the default loader.
func OpenImage(path string) (image.Image, error) {
	return imaging.Open(path, imaging.AutoOrientation(true))
}

// Content draws the visible pixels of one medium into a rect. Stills and
// video frames differ only in how they are blitted.
type Content interface {
	DrawInto(dst xdraw.Image, r image.Rectangle)
}

// Still is the content of an image medium.
type Still struct {
	Image image.Image
}

func (c Still) DrawInto(dst xdraw.Image, r image.Rectangle) {
	xdraw.CatmullRom.Scale(dst, r, c.Image, c.Image.Bounds(), xdraw.Over, nil)
}

// Frame is one decoded video frame.
type Frame struct {
	Image *image.RGBA
}

func (f Frame) DrawInto(dst xdraw.Image, r image.Rectangle) {
	xdraw.ApproxBiLinear.Scale(dst, r, f.Image, f.Image.Bounds(), xdraw.Over, nil)
}

// Compositor renders scene layers. It is safe for concurrent use as long
// as the bezel catalog is.
type Compositor struct {
	catalog *bezel.Catalog
	load    Loader
	logger  zerolog.Logger
}

// New creates a compositor. A nil loader falls back to OpenImage.
func New(catalog *bezel.Catalog, load Loader, logger zerolog.Logger) *Compositor {
	if load == nil {
		load = OpenImage
	}
	return &Compositor{
		catalog: catalog,
		load:    load,
		logger:  logger.With().Str("component", "compositor").Logger(),
	}
}

// Static holds the time-invariant layers of a scene. It is immutable once
// prepared and may be shared between frames.
type Static struct {
	Layout *layout.Layout
	// Background is the background with drop shadows.
	Background *image.RGBA
	Mask       *image.Alpha
	// Foreground holds the bezel frames on a transparent canvas.
	Foreground *image.RGBA
}

// Prepare renders the static layers for a laid-out scene.
func (c *Compositor) Prepare(s *scene.Scene, l *layout.Layout) (*Static, error) {
	bounds := l.Bounds()

	bg := image.NewRGBA(bounds)
	if err := c.DrawBackground(bg, s.Background, bounds); err != nil {
		return nil, err
	}
	if err := c.DrawShadows(bg, l); err != nil {
		return nil, err
	}

	mask, err := c.GenerateMask(l)
	if err != nil {
		return nil, err
	}

	fg := image.NewRGBA(bounds)
	if err := c.DrawForeground(fg, l); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("width", l.Width).
		Int("height", l.Height).
		Int("media", len(l.Placements)).
		Msg("static layers ready")

	return &Static{Layout: l, Background: bg, Mask: mask, Foreground: fg}, nil
}

// Compose draws one frame into dst. Media missing from contents are left
// transparent and show as black through the mask.
func (st *Static) Compose(dst *image.RGBA, contents map[int]Content) {
	bounds := st.Layout.Bounds()

	media := system.GetImage(bounds)
	defer system.PutImage(media)

	for _, p := range st.Layout.Placements {
		if content, ok := contents[p.Index()]; ok && content != nil {
			content.DrawInto(media, p.Fitted)
		}
	}
	alphaMerge(media, st.Mask)

	xdraw.Draw(dst, bounds, st.Background, bounds.Min, xdraw.Src)
	xdraw.Draw(dst, bounds, media, bounds.Min, xdraw.Over)
	xdraw.Draw(dst, bounds, st.Foreground, bounds.Min, xdraw.Over)
}

// LoadStills decodes the image media of s in parallel, keyed by index.
func (c *Compositor) LoadStills(ctx context.Context, s *scene.Scene) (map[int]image.Image, error) {
	var mu sync.Mutex
	stills := make(map[int]image.Image)

	g, ctx := errgroup.WithContext(ctx)
	for _, m := range s.Media {
		if m.Kind() != scene.KindImage {
			continue
		}
		base := m.Base()
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := c.load(base.Source.Path)
			if err != nil {
				return fmt.Errorf("medium %d: %w", base.Index, err)
			}
			mu.Lock()
			stills[base.Index] = img
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stills, nil
}

// Files are the static layers written for the transcoder.
type Files struct {
	Background string
	Mask       string
	Foreground string
}

// All returns the paths in transcoder input order.
func (f Files) All() []string {
	return []string{f.Background, f.Mask, f.Foreground}
}

// WriteFiles saves the static layers as PNG files in dir. The mask is
// written as grayscale.
func (st *Static) WriteFiles(dir string) (Files, error) {
	files := Files{
		Background: filepath.Join(dir, "background.png"),
		Mask:       filepath.Join(dir, "mask.png"),
		Foreground: filepath.Join(dir, "foreground.png"),
	}
	layers := []struct {
		path string
		img  image.Image
	}{
		{files.Background, st.Background},
		{files.Mask, toGray(st.Mask)},
		{files.Foreground, st.Foreground},
	}
	for _, layer := range layers {
		if err := imaging.Save(layer.img, layer.path); err != nil {
			return Files{}, fmt.Errorf("save %s: %w", filepath.Base(layer.path), err)
		}
	}
	return files, nil
}
