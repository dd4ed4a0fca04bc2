package scene

import (
	"github.com/ivlev/scene2video/internal/geometry"
)

// Kind distinguishes the two medium variants.
type Kind int

const (
	KindVideo Kind = iota
	KindImage
)

func (k Kind) String() string {
	if k == KindImage {
		return "image"
	}
	return "video"
}

// Asset is the handle of a medium's source file together with its probed
// intrinsic properties. Width and Height are zero until probed.
type Asset struct {
	Path     string
	Width    int
	Height   int
	Duration float64
}

// Size returns the intrinsic pixel size of the asset.
func (a Asset) Size() geometry.Size {
	return geometry.Size{W: float64(a.Width), H: float64(a.Height)}
}

// Shadow describes a drop shadow in canvas terms.
type Shadow struct {
	Color   string
	Blur    float64
	OffsetX float64
	OffsetY float64
}

// Common holds the fields shared by every medium.
type Common struct {
	// Index is the stable identity of the medium and its z-order key.
	Index       int
	Source      Asset
	WithBezel   bool
	BezelKey    string
	Orientation geometry.Orientation
	WithShadow  bool
	Shadow      Shadow
	// CornerRadius applies only when WithBezel is false.
	CornerRadius float64
}

// Medium is a single participant of a scene. The interface is sealed: only
// Video and Image implement it.
type Medium interface {
	Base() Common
	Kind() Kind
	isMedium()
}

// Image is a still medium.
type Image struct {
	Common
}

func (m Image) Base() Common { return m.Common }
func (m Image) Kind() Kind   { return KindImage }
func (Image) isMedium()      {}

// Video is a time-based medium trimmed to [StartTime, EndTime] of its own
// timeline and placed at SceneOffset on the scene timeline.
type Video struct {
	Common
	StartTime     float64
	EndTime       float64
	SceneOffset   float64
	TotalDuration float64
}

func (m Video) Base() Common { return m.Common }
func (m Video) Kind() Kind   { return KindVideo }
func (Video) isMedium()      {}

// WithSource returns a copy of m whose asset is replaced. Media are never
// mutated in place.
func WithSource(m Medium, a Asset) Medium {
	switch v := m.(type) {
	case Video:
		v.Source = a
		if v.TotalDuration == 0 {
			v.TotalDuration = a.Duration
		}
		if v.EndTime == 0 {
			v.EndTime = v.TotalDuration
		}
		return v
	case Image:
		v.Source = a
		return v
	}
	return m
}
