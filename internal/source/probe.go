package source

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/scene2video/internal/scene"
)

// Probe reads the intrinsic properties of a medium's source file.
func Probe(path string, kind scene.Kind) (scene.Asset, error) {
	if kind == scene.KindVideo {
		return ProbeVideo(path)
	}
	return ProbeImage(path)
}

// ProbeScene probes every medium in parallel and returns a copy of the
// scene with the assets filled in. Media that already carry a size are left
// alone.
func ProbeScene(ctx context.Context, s *scene.Scene) (*scene.Scene, error) {
	media := make([]scene.Medium, len(s.Media))
	copy(media, s.Media)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, m := range media {
		base := m.Base()
		if base.Source.Path == "" || (base.Source.Width > 0 && base.Source.Height > 0 && (m.Kind() == scene.KindImage || base.Source.Duration > 0)) {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			asset, err := Probe(base.Source.Path, m.Kind())
			if err != nil {
				return fmt.Errorf("medium %d: %w", base.Index, err)
			}
			media[i] = scene.WithSource(m, asset)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := *s
	out.Media = media
	return &out, nil
}
