package engine

import (
	"testing"

	"github.com/ivlev/scene2video/internal/filtergraph"
	"github.com/ivlev/scene2video/internal/scene"
)

func TestNormalizeTimeline(t *testing.T) {
	mp4, _ := filtergraph.Lookup("mp4")
	png, _ := filtergraph.Lookup("png")

	clip := scene.Video{
		Common:    scene.Common{Index: 0, Source: scene.Asset{Path: "a.mp4", Width: 10, Height: 10, Duration: 8}},
		StartTime: 1, EndTime: 5, SceneOffset: 2, TotalDuration: 8,
	}
	still := scene.Image{Common: scene.Common{Index: 1, Source: scene.Asset{Path: "a.png", Width: 10, Height: 10}}}

	tests := []struct {
		name    string
		scene   scene.Scene
		format  filtergraph.Format
		wantEnd float64
	}{
		{"explicit window kept", scene.Scene{Media: []scene.Medium{clip}, EndTime: 4}, mp4, 4},
		{"video natural end", scene.Scene{Media: []scene.Medium{clip, still}}, mp4, 7},
		{"stills default", scene.Scene{Media: []scene.Medium{still}, StartTime: 1, EndTime: 1}, mp4, 1 + DefaultStillDuration},
		{"static format untouched", scene.Scene{Media: []scene.Medium{still}}, png, 0},
	}
	for _, tt := range tests {
		got := normalizeTimeline(tt.scene, tt.format)
		if got.EndTime != tt.wantEnd {
			t.Errorf("%s: end = %g, want %g", tt.name, got.EndTime, tt.wantEnd)
		}
	}
}
