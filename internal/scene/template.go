package scene

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/scene2video/internal/geometry"
)

// TemplateVersion is written into every template file.
const TemplateVersion = "1.0"

// Template is the on-disk YAML form of a scene
type Template struct {
	Version     string                `yaml:"version"`
	Name        string                `yaml:"name,omitempty"`
	AspectRatio *geometry.AspectRatio `yaml:"aspect_ratio,omitempty"`
	MaxSize     int                   `yaml:"max_size"`
	Padding     PaddingSpec           `yaml:"padding"`
	Spacing     int                   `yaml:"spacing"`
	Start       float64               `yaml:"start"`
	End         float64               `yaml:"end"`
	Format      string                `yaml:"format"`
	Options     OptionsSpec           `yaml:"options"`
	Background  BackgroundSpec        `yaml:"background"`
	Media       []MediumSpec          `yaml:"media"`
}

// PaddingSpec is the horizontal/vertical canvas padding.
type PaddingSpec struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

// OptionsSpec mirrors FormatOptions.
type OptionsSpec struct {
	FPS       int `yaml:"fps,omitempty"`
	MaxColors int `yaml:"max_colors,omitempty"`
	Quality   int `yaml:"quality,omitempty"`
	Loop      int `yaml:"loop,omitempty"`
}

// BackgroundSpec is the flattened background union.
type BackgroundSpec struct {
	Kind        string  `yaml:"kind"`
	Color       string  `yaml:"color,omitempty"`
	From        string  `yaml:"from,omitempty"`
	To          string  `yaml:"to,omitempty"`
	Angle       float64 `yaml:"angle,omitempty"`
	InnerRadius float64 `yaml:"inner_radius,omitempty"`
	Source      string  `yaml:"source,omitempty"`
	AspectFill  bool    `yaml:"aspect_fill,omitempty"`
}

// ShadowSpec is a drop shadow.
type ShadowSpec struct {
	Color   string  `yaml:"color"`
	Blur    float64 `yaml:"blur"`
	OffsetX float64 `yaml:"offset_x"`
	OffsetY float64 `yaml:"offset_y"`
}

// MediumSpec is the flattened medium union.
type MediumSpec struct {
	Kind         string      `yaml:"kind"`
	Source       string      `yaml:"source"`
	Width        int         `yaml:"width,omitempty"`
	Height       int         `yaml:"height,omitempty"`
	Bezel        string      `yaml:"bezel,omitempty"`
	Orientation  string      `yaml:"orientation,omitempty"`
	Shadow       *ShadowSpec `yaml:"shadow,omitempty"`
	CornerRadius float64     `yaml:"corner_radius,omitempty"`
	Start        float64     `yaml:"start,omitempty"`
	End          float64     `yaml:"end,omitempty"`
	Offset       float64     `yaml:"offset,omitempty"`
	Duration     float64     `yaml:"duration,omitempty"`
}

// ToTemplate converts a scene to its serializable form.
func ToTemplate(s *Scene) Template {
	t := Template{
		Version:    TemplateVersion,
		MaxSize:    s.MaxSize,
		Padding:    PaddingSpec{X: s.PaddingX, Y: s.PaddingY},
		Spacing:    s.Spacing,
		Start:      s.StartTime,
		End:        s.EndTime,
		Format:     s.Format,
		Background: backgroundSpec(s.Background),
		Options: OptionsSpec{
			FPS:       s.Options.FPS,
			MaxColors: s.Options.MaxColors,
			Quality:   s.Options.Quality,
			Loop:      s.Options.Loop,
		},
	}
	if s.AspectRatio != nil {
		ar := *s.AspectRatio
		t.AspectRatio = &ar
	}

	for _, m := range s.Media {
		base := m.Base()
		spec := MediumSpec{
			Kind:         m.Kind().String(),
			Source:       base.Source.Path,
			Width:        base.Source.Width,
			Height:       base.Source.Height,
			CornerRadius: base.CornerRadius,
		}
		if base.WithBezel {
			spec.Bezel = base.BezelKey
		}
		if base.Orientation != geometry.Portrait {
			spec.Orientation = base.Orientation.String()
		}
		if base.WithShadow {
			spec.Shadow = &ShadowSpec{
				Color:   base.Shadow.Color,
				Blur:    base.Shadow.Blur,
				OffsetX: base.Shadow.OffsetX,
				OffsetY: base.Shadow.OffsetY,
			}
		}
		if v, ok := m.(Video); ok {
			spec.Start = v.StartTime
			spec.End = v.EndTime
			spec.Offset = v.SceneOffset
			spec.Duration = v.TotalDuration
		}
		t.Media = append(t.Media, spec)
	}
	return t
}

func backgroundSpec(b Background) BackgroundSpec {
	switch v := b.(type) {
	case Solid:
		return BackgroundSpec{Kind: "solid", Color: v.Color}
	case LinearGradient:
		return BackgroundSpec{Kind: "linear", From: v.From, To: v.To, Angle: v.Angle}
	case RadialGradient:
		return BackgroundSpec{Kind: "radial", From: v.Inner, To: v.Outer, InnerRadius: v.InnerRadius}
	case ImageFill:
		return BackgroundSpec{Kind: "image", Source: v.Source, AspectFill: v.AspectFill}
	}
	return BackgroundSpec{Kind: "none"}
}

// FromTemplate reconstructs a scene. Medium indexes follow list order.
func FromTemplate(t Template) (*Scene, error) {
	s := &Scene{
		MaxSize:   t.MaxSize,
		PaddingX:  t.Padding.X,
		PaddingY:  t.Padding.Y,
		Spacing:   t.Spacing,
		StartTime: t.Start,
		EndTime:   t.End,
		Format:    t.Format,
		Options: FormatOptions{
			FPS:       t.Options.FPS,
			MaxColors: t.Options.MaxColors,
			Quality:   t.Options.Quality,
			Loop:      t.Options.Loop,
		},
	}
	if t.AspectRatio != nil {
		ar := *t.AspectRatio
		s.AspectRatio = &ar
	}

	bg, err := backgroundFromSpec(t.Background)
	if err != nil {
		return nil, err
	}
	s.Background = bg

	for i, spec := range t.Media {
		m, err := mediumFromSpec(i, spec)
		if err != nil {
			return nil, fmt.Errorf("media[%d]: %w", i, err)
		}
		s.Media = append(s.Media, m)
	}
	return s, nil
}

func backgroundFromSpec(b BackgroundSpec) (Background, error) {
	switch strings.ToLower(b.Kind) {
	case "", "none":
		return nil, nil
	case "solid":
		return Solid{Color: b.Color}, nil
	case "linear":
		return LinearGradient{From: b.From, To: b.To, Angle: b.Angle}, nil
	case "radial":
		return RadialGradient{Inner: b.From, Outer: b.To, InnerRadius: b.InnerRadius}, nil
	case "image":
		return ImageFill{Source: b.Source, AspectFill: b.AspectFill}, nil
	}
	return nil, fmt.Errorf("unknown background kind %q", b.Kind)
}

func mediumFromSpec(index int, spec MediumSpec) (Medium, error) {
	orientation, err := geometry.ParseOrientation(spec.Orientation)
	if err != nil {
		return nil, err
	}

	common := Common{
		Index: index,
		Source: Asset{
			Path:     spec.Source,
			Width:    spec.Width,
			Height:   spec.Height,
			Duration: spec.Duration,
		},
		WithBezel:    spec.Bezel != "",
		BezelKey:     spec.Bezel,
		Orientation:  orientation,
		CornerRadius: spec.CornerRadius,
	}
	if spec.Shadow != nil {
		common.WithShadow = true
		common.Shadow = Shadow{
			Color:   spec.Shadow.Color,
			Blur:    spec.Shadow.Blur,
			OffsetX: spec.Shadow.OffsetX,
			OffsetY: spec.Shadow.OffsetY,
		}
	}

	switch strings.ToLower(spec.Kind) {
	case "video":
		return Video{
			Common:        common,
			StartTime:     spec.Start,
			EndTime:       spec.End,
			SceneOffset:   spec.Offset,
			TotalDuration: spec.Duration,
		}, nil
	case "image":
		return Image{Common: common}, nil
	}
	return nil, fmt.Errorf("unknown medium kind %q", spec.Kind)
}

// WriteTemplate writes a template to a YAML file
func WriteTemplate(t Template, path string) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ReadTemplate reads a template from a YAML file
func ReadTemplate(path string) (Template, error) {
	var t Template
	data, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse template %s: %w", path, err)
	}
	return t, nil
}

// Load reads a template file and builds the scene it describes. Relative
// media and background paths are resolved against the template directory.
func Load(path string) (*Scene, error) {
	t, err := ReadTemplate(path)
	if err != nil {
		return nil, err
	}
	base := filepath.Dir(path)
	for i := range t.Media {
		t.Media[i].Source = resolve(base, t.Media[i].Source)
	}
	if t.Background.Source != "" {
		t.Background.Source = resolve(base, t.Background.Source)
	}
	return FromTemplate(t)
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// GenerateTemplatePath creates a timestamped template filename in dir
func GenerateTemplatePath(dir string) string {
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(dir, fmt.Sprintf("scene_%s.yaml", timestamp))
}

// FindLatestTemplate finds the most recently modified template in dir
func FindLatestTemplate(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read templates directory: %w", err)
	}

	type candidate struct {
		path string
		mod  time.Time
	}
	var found []candidate
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		found = append(found, candidate{path: filepath.Join(dir, name), mod: info.ModTime()})
	}

	if len(found) == 0 {
		return "", fmt.Errorf("no scene templates found in %s", dir)
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].mod.After(found[j].mod)
	})
	return found[0].path, nil
}
