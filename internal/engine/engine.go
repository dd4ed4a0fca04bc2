package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ivlev/scene2video/internal/bezel"
	"github.com/ivlev/scene2video/internal/compositor"
	"github.com/ivlev/scene2video/internal/filtergraph"
	"github.com/ivlev/scene2video/internal/layout"
	"github.com/ivlev/scene2video/internal/metrics"
	"github.com/ivlev/scene2video/internal/preview"
	"github.com/ivlev/scene2video/internal/scene"
	"github.com/ivlev/scene2video/internal/sequencer"
	"github.com/ivlev/scene2video/internal/source"
	"github.com/ivlev/scene2video/internal/timing"
	"github.com/ivlev/scene2video/internal/transcoder"
)

// DefaultStillDuration is the length of an animated output whose scene has
// no video and no explicit window.
const DefaultStillDuration = 3.0

// DefaultFormat is used when the scene does not name one.
const DefaultFormat = "mp4"

// Progress is reported by both animated backends.
type Progress = transcoder.Progress

// ProgressFunc receives conversion progress.
type ProgressFunc = transcoder.ProgressFunc

// OutputFile is the result of a conversion. Nothing is written to disk.
type OutputFile struct {
	Data []byte
	MIME string
	Name string
}

// MissingAssetError is returned when a medium has no source at conversion
// start. No transcoder work happens in that case.
type MissingAssetError struct {
	Index int
}

func (e *MissingAssetError) Error() string {
	return fmt.Sprintf("medium %d has no source", e.Index)
}

// Options configure a Project.
type Options struct {
	Catalog    *bezel.Catalog
	Transcoder *transcoder.Transcoder
	// Encoder overrides the H.264 codec, e.g. a hardware encoder.
	Encoder string
	// Backend forces a backend; chosen from the format when empty.
	Backend filtergraph.Backend
	// WorkDir holds per-conversion directories; os.TempDir when empty.
	WorkDir    string
	KeepTemp   bool
	Bitrate    int
	OnProgress ProgressFunc
	Load       compositor.Loader
	Open       sequencer.OpenFunc
	Logger     zerolog.Logger
}

// Project owns a probed scene and converts it.
type Project struct {
	opts       Options
	scene      *scene.Scene
	compositor *compositor.Compositor
	preview    *preview.Renderer
	logger     zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// NewProject probes every medium of s and prepares it for conversion.
func NewProject(ctx context.Context, s *scene.Scene, opts Options) (*Project, error) {
	if opts.Load == nil {
		opts.Load = source.OpenImage
	}
	if opts.Open == nil {
		opts.Open = openVideo
	}
	if opts.Transcoder == nil {
		opts.Transcoder = transcoder.New("", opts.Logger)
	}
	logger := opts.Logger.With().Str("component", "engine").Logger()

	probed, err := source.ProbeScene(ctx, s)
	if err != nil {
		return nil, err
	}
	return &Project{
		opts:       opts,
		scene:      probed,
		compositor: compositor.New(opts.Catalog, opts.Load, opts.Logger),
		preview:    preview.New(opts.Catalog, opts.Load, opts.Open, opts.Logger),
		logger:     logger,
	}, nil
}

func openVideo(path string) (sequencer.FrameSource, error) {
	r, err := source.OpenVideo(path)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Scene returns the probed scene.
func (p *Project) Scene() *scene.Scene {
	return p.scene
}

// Close stops running transcoder processes. Decode handles are owned by
// each render and are already released.
func (p *Project) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.opts.Transcoder.Cleanup()
	return nil
}

// Preview renders the scene at time t.
func (p *Project) Preview(ctx context.Context, t float64) (*image.RGBA, error) {
	s, _, err := p.resolve()
	if err != nil {
		return nil, err
	}
	img, err := p.preview.RenderAt(ctx, s, t)
	if err == nil {
		metrics.PreviewsTotal.Inc()
	}
	return img, err
}

// SelectBackend picks the renderer for format f. Static formats are always
// rendered as a single frame.
func SelectBackend(f filtergraph.Format, requested filtergraph.Backend) (filtergraph.Backend, error) {
	if !f.Animated {
		return filtergraph.BackendStill, nil
	}
	if requested != "" {
		if !f.Supports(requested) {
			return "", fmt.Errorf("format %s cannot be produced by the %s backend", f.Name, requested)
		}
		return requested, nil
	}
	if f.Supports(filtergraph.BackendGraph) {
		return filtergraph.BackendGraph, nil
	}
	return filtergraph.BackendFrames, nil
}

// resolve applies the timeline defaults and looks up the output format.
func (p *Project) resolve() (*scene.Scene, filtergraph.Format, error) {
	for _, m := range p.scene.Media {
		if m.Base().Source.Path == "" {
			return nil, filtergraph.Format{}, &MissingAssetError{Index: m.Base().Index}
		}
	}
	name := p.scene.Format
	if name == "" {
		name = DefaultFormat
	}
	f, ok := filtergraph.Lookup(name)
	if !ok {
		return nil, filtergraph.Format{}, fmt.Errorf("unknown format %q", name)
	}

	s := normalizeTimeline(*p.scene, f)
	if err := s.Validate(); err != nil {
		return nil, f, err
	}
	return &s, f, nil
}

// normalizeTimeline fills an empty scene window: the natural end of the
// clips for video scenes, DefaultStillDuration for animated stills.
func normalizeTimeline(s scene.Scene, f filtergraph.Format) scene.Scene {
	if s.EndTime > s.StartTime || !f.Animated {
		return s
	}
	if s.HasVideo() {
		if end := s.NaturalEnd(); end > s.StartTime {
			s.EndTime = end
		}
		return s
	}
	s.EndTime = s.StartTime + DefaultStillDuration
	return s
}

// Convert renders the scene into a single in-memory file.
func (p *Project) Convert(ctx context.Context) (*OutputFile, error) {
	s, f, err := p.resolve()
	if err != nil {
		return nil, err
	}
	backend, err := SelectBackend(f, p.opts.Backend)
	if err != nil {
		return nil, err
	}

	job := uuid.New()
	logger := p.logger.With().Str("job", job.String()).Str("format", f.Name).Str("backend", string(backend)).Logger()
	startTime := time.Now()

	l, err := layout.Compute(s, p.opts.Catalog)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Int("width", l.Width).
		Int("height", l.Height).
		Int("media", len(s.Media)).
		Float64("duration", s.Duration()).
		Msg("[*] Начало конвертации")

	var data []byte
	switch backend {
	case filtergraph.BackendStill:
		data, err = p.renderStill(ctx, s, f)
	default:
		data, err = p.renderAnimated(ctx, s, l, f, backend, job, logger)
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ConversionsTotal.WithLabelValues(f.Name, string(backend), status).Inc()
	if err != nil {
		logger.Error().Err(err).Msg("[-] Ошибка конвертации")
		return nil, err
	}
	elapsed := time.Since(startTime)
	metrics.ConversionDuration.WithLabelValues(f.Name, string(backend)).Observe(elapsed.Seconds())
	metrics.OutputBytes.Observe(float64(len(data)))

	logger.Info().Dur("elapsed", elapsed).Int("bytes", len(data)).Msg("[+] Конвертация завершена")
	return &OutputFile{
		Data: data,
		MIME: f.MIME,
		Name: f.Filename("scene_" + job.String()[:8]),
	}, nil
}

func (p *Project) renderStill(ctx context.Context, s *scene.Scene, f filtergraph.Format) ([]byte, error) {
	img, err := p.preview.RenderAt(ctx, s, s.StartTime)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	switch f.Name {
	case "jpg":
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality(s.Options.Quality, f.Quality)))
	default:
		err = imaging.Encode(&buf, img, imaging.PNG)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", f.Name, err)
	}
	metrics.FramesRenderedTotal.Inc()
	return buf.Bytes(), nil
}

func jpegQuality(requested, fallback int) int {
	if requested >= 1 && requested <= 100 {
		return requested
	}
	return fallback
}

func (p *Project) renderAnimated(ctx context.Context, s *scene.Scene, l *layout.Layout, f filtergraph.Format, backend filtergraph.Backend, job uuid.UUID, logger zerolog.Logger) ([]byte, error) {
	trims, err := timing.All(s)
	if err != nil {
		return nil, err
	}
	static, err := p.compositor.Prepare(s, l)
	if err != nil {
		return nil, err
	}

	dir, err := p.workDir(job)
	if err != nil {
		return nil, err
	}
	var temp []string
	defer func() {
		if p.opts.KeepTemp {
			logger.Info().Str("dir", dir).Msg("[*] Временные файлы сохранены")
			return
		}
		removed := p.opts.Transcoder.RemoveFiles(temp...)
		metrics.TempFilesRemovedTotal.Add(float64(removed))
		if err := os.Remove(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn().Err(err).Str("dir", dir).Msg("[!] Не удалось удалить рабочую папку")
		}
	}()

	if backend == filtergraph.BackendFrames {
		stills, err := p.compositor.LoadStills(ctx, s)
		if err != nil {
			return nil, err
		}
		codec := ""
		if f.Name == "mp4" {
			codec = p.opts.Encoder
		}
		seq := sequencer.New(sequencer.Config{
			Scene:      s,
			Static:     static,
			Trims:      trims,
			Stills:     stills,
			Open:       p.opts.Open,
			Encoder:    sequencer.NewFFmpegEncoder(p.opts.Transcoder, dir),
			Codec:      codec,
			Format:     f,
			Bitrate:    p.opts.Bitrate,
			OnProgress: p.countFrames(),
			Logger:     p.opts.Logger,
		})
		data, err := seq.Render(ctx)
		p.countRun(err)
		return data, err
	}

	staged, stagedFiles, err := p.stageStills(ctx, s, dir)
	temp = append(temp, stagedFiles...)
	if err != nil {
		return nil, err
	}
	files, err := static.WriteFiles(dir)
	if err != nil {
		return nil, err
	}
	temp = append(temp, files.All()...)

	cmd, err := filtergraph.Build(filtergraph.Params{
		Scene:   staged,
		Layout:  l,
		Trims:   trims,
		Files:   files,
		Format:  f,
		Encoder: p.opts.Encoder,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("graph", cmd.Graph.String()).Int("frames", cmd.Frames()).Msg("filter graph ready")

	var out bytes.Buffer
	err = p.opts.Transcoder.Run(ctx, cmd.Args("pipe:1"), transcoder.Options{
		Dir:        dir,
		Stdout:     &out,
		Duration:   cmd.Duration,
		OnProgress: p.opts.OnProgress,
	})
	p.countRun(err)
	if err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (p *Project) workDir(job uuid.UUID) (string, error) {
	parent := p.opts.WorkDir
	if parent == "" {
		parent = os.TempDir()
	}
	parent, err := filepath.Abs(parent)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(parent, "scene2video_"+job.String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// stageStills decodes every image medium the way the compositor sees it
// (EXIF orientation, PDF pages) and saves it as PNG for the transcoder.
// Video paths are made absolute since ffmpeg runs inside dir.
func (p *Project) stageStills(ctx context.Context, s *scene.Scene, dir string) (*scene.Scene, []string, error) {
	stills, err := p.compositor.LoadStills(ctx, s)
	if err != nil {
		return nil, nil, err
	}
	out := *s
	out.Media = make([]scene.Medium, len(s.Media))
	var files []string
	for i, m := range s.Media {
		asset := m.Base().Source
		if img, ok := stills[m.Base().Index]; ok {
			asset.Path = filepath.Join(dir, fmt.Sprintf("medium_%d.png", m.Base().Index))
			if err := imaging.Save(img, asset.Path); err != nil {
				return nil, files, fmt.Errorf("medium %d: %w", m.Base().Index, err)
			}
			files = append(files, asset.Path)
		} else if abs, err := filepath.Abs(asset.Path); err == nil {
			asset.Path = abs
		}
		out.Media[i] = scene.WithSource(m, asset)
	}
	return &out, files, nil
}

func (p *Project) countFrames() ProgressFunc {
	return func(pr Progress) {
		metrics.FramesRenderedTotal.Inc()
		if p.opts.OnProgress != nil {
			p.opts.OnProgress(pr)
		}
	}
}

func (p *Project) countRun(err error) {
	var exe *transcoder.ExecutionError
	switch {
	case err == nil:
		metrics.TranscoderRunsTotal.WithLabelValues("ok").Inc()
	case errors.As(err, &exe):
		metrics.TranscoderRunsTotal.WithLabelValues("error").Inc()
	}
}
