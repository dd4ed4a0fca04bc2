package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ivlev/scene2video/internal/filtergraph"
	"github.com/ivlev/scene2video/internal/geometry"
	"github.com/ivlev/scene2video/internal/scene"
	"github.com/ivlev/scene2video/internal/source"
)

type Config struct {
	ScenePath  string
	InputPath  string
	BezelsPath string
	OutputPath string
	Format     string
	Backend    string
	FPS        int
	MaxSize    int
	Quality    int
	Preset     string
	Background string
	Padding    int
	Spacing    int
	// PreviewAt рендерит один кадр в указанное время; отрицательное значение отключает превью.
	PreviewAt     float64
	WriteTemplate bool
	MetricsOut    string
	LogLevel      string
	KeepTemp      bool
	FFmpeg        string
	VideoEncoder  string
}

// Presets соответствуют форматам платформ.
var Presets = map[string]geometry.AspectRatio{
	"16:9": {W: 16, H: 9},
	"9:16": {W: 9, H: 16},
	"4:5":  {W: 4, H: 5},
	"1:1":  {W: 1, H: 1},
}

// ParseAspect разбирает пресет или произвольное соотношение вида "W:H".
func ParseAspect(s string) (*geometry.AspectRatio, error) {
	if s == "" {
		return nil, nil
	}
	if a, ok := Presets[s]; ok {
		return &a, nil
	}
	w, h, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("invalid aspect ratio %q", s)
	}
	a := geometry.AspectRatio{}
	var err error
	if a.W, err = strconv.ParseFloat(w, 64); err != nil {
		return nil, fmt.Errorf("invalid aspect ratio %q: %w", s, err)
	}
	if a.H, err = strconv.ParseFloat(h, 64); err != nil {
		return nil, fmt.Errorf("invalid aspect ratio %q: %w", s, err)
	}
	if !a.Valid() {
		return nil, fmt.Errorf("invalid aspect ratio %q", s)
	}
	return &a, nil
}

// Validate проверяет значения флагов.
func (c *Config) Validate() error {
	if c.Format != "" {
		if _, ok := filtergraph.Lookup(c.Format); !ok {
			return fmt.Errorf("unknown format %q, supported: %s", c.Format, strings.Join(filtergraph.Names(), ", "))
		}
	}
	switch filtergraph.Backend(c.Backend) {
	case "", filtergraph.BackendGraph, filtergraph.BackendFrames:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.FPS < 0 || c.MaxSize < 0 || c.Padding < 0 || c.Spacing < 0 {
		return fmt.Errorf("fps, max size, padding and spacing must not be negative")
	}
	if _, err := ParseAspect(c.Preset); err != nil {
		return err
	}
	if c.Background != "" {
		if _, err := scene.ParseColor(c.Background); err != nil {
			return err
		}
	}
	return nil
}

// LoadScene читает шаблон сцены или собирает сцену из медиафайлов InputPath.
func (c *Config) LoadScene() (*scene.Scene, error) {
	if c.ScenePath != "" {
		return scene.Load(c.ScenePath)
	}
	if c.InputPath == "" {
		return nil, fmt.Errorf("no scene template or input media")
	}
	paths, err := source.Collect(c.InputPath)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("в %s не найдено медиафайлов", c.InputPath)
	}

	s := &scene.Scene{MaxSize: 1080, Background: scene.Solid{Color: "#000000"}}
	for i, path := range paths {
		kind, err := source.KindOf(path)
		if err != nil {
			return nil, err
		}
		common := scene.Common{Index: i, Source: scene.Asset{Path: path}}
		if kind == scene.KindVideo {
			s.Media = append(s.Media, scene.Video{Common: common})
		} else {
			s.Media = append(s.Media, scene.Image{Common: common})
		}
	}
	return s, nil
}

// Apply переносит флаги поверх настроек сцены. Нулевые значения не
// переопределяют шаблон.
func (c *Config) Apply(s *scene.Scene) error {
	if c.Format != "" {
		s.Format = c.Format
	}
	if c.FPS > 0 {
		s.Options.FPS = c.FPS
	}
	if c.MaxSize > 0 {
		s.MaxSize = c.MaxSize
	}
	if c.Quality > 0 {
		s.Options.Quality = c.Quality
	}
	if c.Padding > 0 {
		s.PaddingX, s.PaddingY = c.Padding, c.Padding
	}
	if c.Spacing > 0 {
		s.Spacing = c.Spacing
	}
	if c.Background != "" {
		s.Background = scene.Solid{Color: c.Background}
	}
	aspect, err := ParseAspect(c.Preset)
	if err != nil {
		return err
	}
	if aspect != nil {
		s.AspectRatio = aspect
	}
	return nil
}
