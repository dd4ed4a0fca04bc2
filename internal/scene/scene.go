// Package scene describes a composition: ordered media, a background, the
// global timing window and the requested output. A Scene is edited by whole
// field replacement; every derived rect and mask is recomputed from scratch.
package scene

import (
	"fmt"
	"math"

	"github.com/ivlev/scene2video/internal/geometry"
)

// FormatOptions carries format-specific output settings.
type FormatOptions struct {
	FPS int
	// MaxColors bounds the palette of indexed-color formats.
	MaxColors int
	// Quality is a codec-specific quality knob (CRF, bitrate multiplier).
	Quality int
	// Loop is the loop count of animated image formats; 0 loops forever.
	Loop int
}

// Scene is the top-level composition. Media order is z-order: later media
// are drawn on top of earlier ones.
type Scene struct {
	Media      []Medium
	Background Background
	// AspectRatio, when set, fixes the output ratio. Otherwise the canvas is
	// derived from the content.
	AspectRatio *geometry.AspectRatio
	// MaxSize is the longer output dimension in pixels.
	MaxSize   int
	PaddingX  int
	PaddingY  int
	Spacing   int
	StartTime float64
	EndTime   float64
	Format    string
	Options   FormatOptions
}

// Duration is the rendered timeline length.
func (s *Scene) Duration() float64 {
	return s.EndTime - s.StartTime
}

// Videos returns the video media in z-order.
func (s *Scene) Videos() []Video {
	var out []Video
	for _, m := range s.Media {
		if v, ok := m.(Video); ok {
			out = append(out, v)
		}
	}
	return out
}

// HasVideo reports whether any medium is time-based.
func (s *Scene) HasVideo() bool {
	return len(s.Videos()) > 0
}

// NaturalEnd is the scene time at which the last trimmed clip ends.
func (s *Scene) NaturalEnd() float64 {
	end := 0.0
	for _, v := range s.Videos() {
		end = math.Max(end, v.SceneOffset+v.EndTime)
	}
	return end
}

// Replace returns a copy of the scene with the medium at position i
// replaced.
func (s Scene) Replace(i int, m Medium) Scene {
	media := make([]Medium, len(s.Media))
	copy(media, s.Media)
	media[i] = m
	s.Media = media
	return s
}

// ValidationError reports a scene that cannot be rendered as described.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid scene: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the scene invariants. It never corrects values.
func (s *Scene) Validate() error {
	if len(s.Media) == 0 {
		return invalid("media", "scene has no media")
	}
	if s.MaxSize <= 0 {
		return invalid("max_size", "must be positive, got %d", s.MaxSize)
	}
	if s.PaddingX < 0 || s.PaddingY < 0 || s.Spacing < 0 {
		return invalid("padding", "padding and spacing must not be negative")
	}
	if s.AspectRatio != nil && !s.AspectRatio.Valid() {
		return invalid("aspect_ratio", "invalid ratio %v", *s.AspectRatio)
	}
	if !geometry.Finite(s.StartTime) || !geometry.Finite(s.EndTime) {
		return invalid("time", "scene window is not finite")
	}
	if s.EndTime < s.StartTime {
		return invalid("time", "end %.3fs before start %.3fs", s.EndTime, s.StartTime)
	}
	if s.Options.FPS < 0 || s.Options.MaxColors < 0 {
		return invalid("options", "fps and max colors must not be negative")
	}

	seen := make(map[int]bool, len(s.Media))
	for pos, m := range s.Media {
		base := m.Base()
		field := fmt.Sprintf("media[%d]", pos)
		if seen[base.Index] {
			return invalid(field, "duplicate index %d", base.Index)
		}
		seen[base.Index] = true

		if base.WithBezel && base.BezelKey == "" {
			return invalid(field, "bezel enabled without a bezel key")
		}
		if base.CornerRadius < 0 {
			return invalid(field, "negative corner radius")
		}
		if base.WithShadow {
			if _, err := ParseColor(base.Shadow.Color); err != nil {
				return invalid(field, "shadow: %v", err)
			}
			if base.Shadow.Blur < 0 {
				return invalid(field, "shadow blur must not be negative")
			}
		}
		if v, ok := m.(Video); ok {
			if err := s.validateVideo(field, v); err != nil {
				return err
			}
		}
	}
	return s.validateBackground()
}

func (s *Scene) validateVideo(field string, v Video) error {
	for _, t := range []float64{v.StartTime, v.EndTime, v.SceneOffset, v.TotalDuration} {
		if !geometry.Finite(t) {
			return invalid(field, "non-finite timing")
		}
	}
	if v.StartTime < 0 {
		return invalid(field, "trim start %.3fs is negative", v.StartTime)
	}
	if v.EndTime < v.StartTime {
		return invalid(field, "trim end %.3fs before trim start %.3fs", v.EndTime, v.StartTime)
	}
	if v.TotalDuration > 0 && v.EndTime > v.TotalDuration {
		return invalid(field, "trim end %.3fs beyond clip duration %.3fs", v.EndTime, v.TotalDuration)
	}
	if s.EndTime > s.StartTime {
		from := math.Max(v.StartTime, s.StartTime-v.SceneOffset)
		to := math.Min(v.EndTime, s.EndTime-v.SceneOffset)
		if to < from {
			return invalid(field, "clip lies outside the scene window")
		}
	}
	return nil
}

func (s *Scene) validateBackground() error {
	var colors []string
	switch b := s.Background.(type) {
	case nil:
		return nil
	case Solid:
		colors = []string{b.Color}
	case LinearGradient:
		colors = []string{b.From, b.To}
		if !geometry.Finite(b.Angle) {
			return invalid("background", "non-finite gradient angle")
		}
	case RadialGradient:
		colors = []string{b.Inner, b.Outer}
		if b.InnerRadius < 0 || !geometry.Finite(b.InnerRadius) {
			return invalid("background", "invalid inner radius %g", b.InnerRadius)
		}
	case ImageFill:
		if b.Source == "" {
			return invalid("background", "image background without source")
		}
	}
	for _, c := range colors {
		if _, err := ParseColor(c); err != nil {
			return invalid("background", "%v", err)
		}
	}
	return nil
}
