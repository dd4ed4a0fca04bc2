// Package sequencer renders a scene frame by frame through the compositor
// and hands every frame to an encoder. It serves formats the filter graph
// cannot carry and conversions that need frame-exact seeks.
package sequencer

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/scene2video/internal/compositor"
	"github.com/ivlev/scene2video/internal/filtergraph"
	"github.com/ivlev/scene2video/internal/geometry"
	"github.com/ivlev/scene2video/internal/scene"
	"github.com/ivlev/scene2video/internal/system"
	"github.com/ivlev/scene2video/internal/timing"
	"github.com/ivlev/scene2video/internal/transcoder"
)

// State is the lifecycle stage of a render.
type State int

const (
	Idle State = iota
	LoadingAssets
	RenderingFrame
	Flushing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case LoadingAssets:
		return "loading_assets"
	case RenderingFrame:
		return "rendering_frame"
	case Flushing:
		return "flushing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// FrameSource yields decoded frames of one clip. The returned image stays
// valid until the next FrameAt call.
type FrameSource interface {
	FrameAt(t float64) (*image.RGBA, error)
	Close() error
}

// OpenFunc opens a frame source for a clip path.
type OpenFunc func(path string) (FrameSource, error)

// Config wires a Sequencer.
type Config struct {
	Scene  *scene.Scene
	Static *compositor.Static
	Trims  []timing.Trim
	// Stills holds the decoded image media by index.
	Stills  map[int]image.Image
	Open    OpenFunc
	Encoder Encoder
	// Codec is the encoder codec; the format's codec when empty.
	Codec      string
	Format     filtergraph.Format
	Bitrate    int
	OnProgress transcoder.ProgressFunc
	Logger     zerolog.Logger
}

// Sequencer drives one render. It is single use.
type Sequencer struct {
	cfg    Config
	logger zerolog.Logger

	mu    sync.Mutex
	state State
}

// New creates a sequencer in the Idle state.
func New(cfg Config) *Sequencer {
	return &Sequencer{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "sequencer").Logger(),
	}
}

// State returns the current lifecycle stage.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sequencer) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.logger.Trace().Stringer("state", st).Msg("state changed")
}

type clip struct {
	index int
	trim  timing.Trim
	src   FrameSource
	frame *image.RGBA
}

// Render produces the encoded container. A canceled context stops the
// render between frames.
func (s *Sequencer) Render(ctx context.Context) (data []byte, err error) {
	if s.State() != Idle {
		return nil, fmt.Errorf("sequencer already used (%s)", s.State())
	}
	var clips []*clip
	defer func() {
		for _, c := range clips {
			if c.src != nil {
				c.src.Close()
			}
		}
		if err != nil {
			s.cfg.Encoder.Close()
			s.setState(Failed)
		}
	}()

	sc, static := s.cfg.Scene, s.cfg.Static
	fps := sc.Options.FPS
	if fps <= 0 {
		fps = filtergraph.DefaultFPS
	}
	width, height := geometry.Even(static.Layout.Width, static.Layout.Height)
	codec := s.cfg.Codec
	if codec == "" {
		codec = s.cfg.Format.Codec
	}
	encCfg := EncoderConfig{
		Codec:   codec,
		Width:   width,
		Height:  height,
		FPS:     fps,
		Bitrate: s.cfg.Bitrate,
		Format:  s.cfg.Format,
		Options: sc.Options,
	}
	if err := CheckConfig(encCfg); err != nil {
		return nil, err
	}
	total := filtergraph.FrameCount(sc.Duration(), fps)
	if total <= 0 {
		return nil, fmt.Errorf("animated output needs a positive duration, got %gs", sc.Duration())
	}

	s.setState(LoadingAssets)
	need := uint64(width*height*4) * uint64(len(s.cfg.Trims)+4)
	if err := system.CheckMemory(ctx, need); err != nil {
		return nil, err
	}
	clips, err = s.openClips(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cfg.Encoder.Configure(ctx, encCfg); err != nil {
		return nil, err
	}

	contents := make(map[int]compositor.Content, len(sc.Media))
	for idx, img := range s.cfg.Stills {
		contents[idx] = compositor.Still{Image: img}
	}
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))

	started := time.Now()
	s.setState(RenderingFrame)
	for n := 0; n < total; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		at := sc.StartTime + float64(n)/float64(fps)
		if err := seekAll(clips, at); err != nil {
			return nil, err
		}
		for _, c := range clips {
			contents[c.index] = compositor.Frame{Image: c.frame}
		}
		static.Compose(canvas, contents)

		ts := int64(math.Round(float64(n) * 1e6 / float64(fps)))
		if err := s.cfg.Encoder.EncodeFrame(canvas, ts, n%KeyframeInterval == 0); err != nil {
			return nil, fmt.Errorf("encode frame %d: %w", n, err)
		}
		s.report(n+1, total, float64(n+1)/float64(fps), started)
	}

	s.setState(Flushing)
	data, err = s.cfg.Encoder.Flush()
	if err != nil {
		return nil, err
	}
	s.setState(Done)
	s.logger.Debug().
		Int("frames", total).
		Dur("elapsed", time.Since(started)).
		Int("bytes", len(data)).
		Msg("[+] frames encoded")
	return data, nil
}

func (s *Sequencer) openClips(ctx context.Context) ([]*clip, error) {
	byIndex := make(map[int]scene.Video)
	for _, v := range s.cfg.Scene.Videos() {
		byIndex[v.Index] = v
	}

	clips := make([]*clip, len(s.cfg.Trims))
	for i, tr := range s.cfg.Trims {
		if _, ok := byIndex[tr.Index]; !ok {
			return nil, fmt.Errorf("no video for trim of medium %d", tr.Index)
		}
		clips[i] = &clip{index: tr.Index, trim: tr}
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, tr := range s.cfg.Trims {
		v := byIndex[tr.Index]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			src, err := s.cfg.Open(v.Source.Path)
			if err != nil {
				return fmt.Errorf("medium %d: %w", tr.Index, err)
			}
			clips[i].src = src
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return clips, err
	}
	return clips, nil
}

// seekAll moves every clip to scene time at. The frame is ready only once
// the slowest clip has decoded.
func seekAll(clips []*clip, at float64) error {
	var g errgroup.Group
	for _, c := range clips {
		g.Go(func() error {
			frame, err := c.src.FrameAt(c.trim.ClipTime(at))
			if err != nil {
				return fmt.Errorf("medium %d at %.3fs: %w", c.index, at, err)
			}
			c.frame = frame
			return nil
		})
	}
	return g.Wait()
}

func (s *Sequencer) report(frame, total int, mediaTime float64, started time.Time) {
	if s.cfg.OnProgress == nil {
		return
	}
	p := transcoder.Progress{
		Frame:    frame,
		Fraction: float64(frame) / float64(total),
		Time:     mediaTime,
	}
	if elapsed := time.Since(started).Seconds(); elapsed > 0 {
		p.Speed = mediaTime / elapsed
	}
	s.cfg.OnProgress(p)
}
