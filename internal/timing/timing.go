// Package timing reconciles each clip's own trim window with the scene
// timeline.
package timing

import (
	"fmt"
	"math"

	"github.com/ivlev/scene2video/internal/geometry"
	"github.com/ivlev/scene2video/internal/scene"
)

// Error reports timing input that cannot be reconciled. Values are never
// corrected silently.
type Error struct {
	Index  int
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("timing: medium %d: %s", e.Index, e.Reason)
}

// Trim is the reconciled timing of one clip, in seconds.
type Trim struct {
	Index int
	// TrimStart and TrimEnd are nil when they coincide with the clip's own
	// boundaries and no trim is needed.
	TrimStart *float64
	TrimEnd   *float64
	// LeadPad holds the first frame before the clip starts.
	LeadPad float64
	// TrailPad holds the last frame after the clip ends.
	TrailPad float64

	// Start and End are the effective trim window in clip time.
	Start  float64
	End    float64
	Offset float64
}

// Duration is the length of the trimmed content.
func (t Trim) Duration() float64 {
	return t.End - t.Start
}

// Span is the padded length on the scene timeline.
func (t Trim) Span() float64 {
	return t.LeadPad + t.Duration() + t.TrailPad
}

// ClipTime maps an absolute scene time to the clip's own timeline, clamped
// into the effective trim window.
func (t Trim) ClipTime(sceneTime float64) float64 {
	return math.Min(math.Max(sceneTime-t.Offset, t.Start), t.End)
}

// TrimAndPad reconciles v against the scene window. It is a pure function
// of its inputs.
func TrimAndPad(s *scene.Scene, v scene.Video) (Trim, error) {
	idx := v.Index
	for _, x := range []float64{s.StartTime, s.EndTime, v.StartTime, v.EndTime, v.SceneOffset, v.TotalDuration} {
		if !geometry.Finite(x) {
			return Trim{}, &Error{Index: idx, Reason: "non-finite time value"}
		}
	}
	if s.EndTime < s.StartTime {
		return Trim{}, &Error{Index: idx, Reason: fmt.Sprintf("scene end %.3fs before start %.3fs", s.EndTime, s.StartTime)}
	}
	if v.StartTime < 0 || v.EndTime < v.StartTime {
		return Trim{}, &Error{Index: idx, Reason: fmt.Sprintf("invalid trim window [%.3f, %.3f]", v.StartTime, v.EndTime)}
	}

	start := math.Max(v.StartTime, s.StartTime-v.SceneOffset)
	end := math.Min(v.EndTime, s.EndTime-v.SceneOffset)
	if start > end {
		return Trim{}, &Error{Index: idx, Reason: "clip lies outside the scene window"}
	}

	tr := Trim{
		Index:    idx,
		Start:    start,
		End:      end,
		Offset:   v.SceneOffset,
		LeadPad:  math.Max(0, start+v.SceneOffset-s.StartTime),
		TrailPad: math.Max(0, s.EndTime-(end+v.SceneOffset)),
	}
	if start != 0 {
		tr.TrimStart = &start
	}
	if v.TotalDuration <= 0 || end != v.TotalDuration {
		tr.TrimEnd = &end
	}
	return tr, nil
}

// All reconciles every video of the scene in z-order.
func All(s *scene.Scene) ([]Trim, error) {
	var out []Trim
	for _, v := range s.Videos() {
		tr, err := TrimAndPad(s, v)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, nil
}
