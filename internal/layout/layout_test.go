package layout

import (
	"errors"
	"image"
	"math"
	"testing"

	"github.com/ivlev/scene2video/internal/bezel"
	"github.com/ivlev/scene2video/internal/geometry"
	"github.com/ivlev/scene2video/internal/scene"
)

func video(index, w, h int) scene.Video {
	return scene.Video{
		Common:        scene.Common{Index: index, Source: scene.Asset{Path: "clip.mp4", Width: w, Height: h, Duration: 10}},
		EndTime:       10,
		TotalDuration: 10,
	}
}

func testCatalog(t *testing.T) *bezel.Catalog {
	t.Helper()
	c, err := bezel.New(t.TempDir(), []bezel.Bezel{
		{Key: "phone-black", Title: "Phone", ModelKey: "phone", Width: 300, Height: 600, ContentScale: 0.956},
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestSingleVideoScenario(t *testing.T) {
	s := &scene.Scene{
		Media:   []scene.Medium{video(0, 1280, 720)},
		MaxSize: 480,
	}
	size, err := SceneSize(s, nil)
	if err != nil {
		t.Fatal(err)
	}
	if size.W != 480 || size.H != 270 {
		t.Errorf("scene size = %v, want 480x270", size)
	}
}

func TestSingleMediumProperty(t *testing.T) {
	tests := []struct {
		w, h, max, padX, padY int
	}{
		{1280, 720, 480, 0, 0},
		{720, 1280, 480, 10, 20},
		{400, 300, 1080, 32, 32},
		{1920, 1080, 1000, 5, 0},
		{333, 777, 500, 0, 7},
	}
	for _, tt := range tests {
		s := &scene.Scene{
			Media:    []scene.Medium{video(0, tt.w, tt.h)},
			MaxSize:  tt.max,
			PaddingX: tt.padX,
			PaddingY: tt.padY,
		}
		size, err := SceneSize(s, nil)
		if err != nil {
			t.Fatal(err)
		}
		k := math.Min(1, math.Min(float64(tt.max)/float64(tt.w), float64(tt.max)/float64(tt.h)))
		wantW := float64(geometry.ClampPx(float64(tt.w)*k) + 2*tt.padX)
		wantH := float64(geometry.ClampPx(float64(tt.h)*k) + 2*tt.padY)
		if size.W != wantW || size.H != wantH {
			t.Errorf("%dx%d max %d: size = %v, want %gx%g", tt.w, tt.h, tt.max, size, wantW, wantH)
		}
	}
}

func TestFilmstripSharesHeight(t *testing.T) {
	s := &scene.Scene{
		Media: []scene.Medium{
			video(0, 1280, 720),
			video(1, 720, 1280),
			scene.Image{Common: scene.Common{Index: 2, Source: scene.Asset{Width: 500, Height: 500}}},
		},
		MaxSize:  1200,
		PaddingX: 16,
		PaddingY: 16,
		Spacing:  24,
	}
	l, err := Compute(s, nil)
	if err != nil {
		t.Fatal(err)
	}

	h := l.Placements[0].Rect.Dy()
	for i, p := range l.Placements {
		if p.Rect.Dy() != h {
			t.Errorf("medium %d height = %d, want %d", i, p.Rect.Dy(), h)
		}
		if i > 0 {
			prev := l.Placements[i-1].Rect
			if p.Rect.Min.X != prev.Max.X+s.Spacing {
				t.Errorf("medium %d x = %d, want %d", i, p.Rect.Min.X, prev.Max.X+s.Spacing)
			}
		}
		t.Logf("medium %d rect=%v", i, p.Rect)
	}
	if l.Width > s.MaxSize+2*s.PaddingX {
		t.Errorf("canvas width %d exceeds max size plus padding", l.Width)
	}
	last := l.Placements[len(l.Placements)-1].Rect
	if last.Max.X+s.PaddingX != l.Width {
		t.Errorf("last medium ends at %d, canvas width %d", last.Max.X, l.Width)
	}
}

func TestNeverUpscales(t *testing.T) {
	s := &scene.Scene{
		Media:   []scene.Medium{video(0, 320, 240)},
		MaxSize: 4000,
	}
	l, err := Compute(s, nil)
	if err != nil {
		t.Fatal(err)
	}
	if l.Scale != 1 || l.Width != 320 || l.Height != 240 {
		t.Errorf("got %dx%d scale %g, want 320x240 scale 1", l.Width, l.Height, l.Scale)
	}
}

func TestBezelContentScale(t *testing.T) {
	c := testCatalog(t)
	v := video(0, 1170, 2532)
	v.WithBezel = true
	v.BezelKey = "phone-black"
	s := &scene.Scene{Media: []scene.Medium{v}, MaxSize: 600}

	l, err := Compute(s, c)
	if err != nil {
		t.Fatal(err)
	}
	p := l.Placements[0]
	if p.Rect != image.Rect(0, 0, 300, 600) {
		t.Fatalf("rect = %v, want 300x600", p.Rect)
	}
	const eps = 1e-9
	if math.Abs(p.ContentF.W-286.8) > eps || math.Abs(p.ContentF.H-573.6) > eps {
		t.Errorf("content target = %gx%g, want 286.8x573.6", p.ContentF.W, p.ContentF.H)
	}
	if math.Abs(p.ContentF.X-6.6) > eps || math.Abs(p.ContentF.Y-13.2) > eps {
		t.Errorf("content origin = %g,%g, want 6.6,13.2", p.ContentF.X, p.ContentF.Y)
	}
	if p.Content.Dx() != 287 || p.Content.Dy() != 574 {
		t.Errorf("rounded content = %v", p.Content)
	}
	if !p.Fitted.In(p.Rect) {
		t.Errorf("fitted %v escapes rect %v", p.Fitted, p.Rect)
	}
}

func TestSideUpBezelSwapsFootprint(t *testing.T) {
	c := testCatalog(t)
	v := video(0, 1920, 1080)
	v.WithBezel = true
	v.BezelKey = "phone-black"
	v.Orientation = geometry.LandscapeRight
	s := &scene.Scene{Media: []scene.Medium{v}, MaxSize: 1000}

	r, err := MediumRect(s, c, v)
	if err != nil {
		t.Fatal(err)
	}
	if r.Dx() != 600 || r.Dy() != 300 {
		t.Errorf("rect = %v, want 600x300", r)
	}
}

func TestAspectRatioCentersContent(t *testing.T) {
	s := &scene.Scene{
		Media:       []scene.Medium{video(0, 720, 1280)},
		AspectRatio: &geometry.AspectRatio{W: 16, H: 9},
		MaxSize:     1280,
		PaddingX:    40,
		PaddingY:    40,
	}
	l, err := Compute(s, nil)
	if err != nil {
		t.Fatal(err)
	}
	if l.Width != 1280 || l.Height != 720 {
		t.Fatalf("canvas = %dx%d, want 1280x720", l.Width, l.Height)
	}
	r := l.Placements[0].Rect
	if r.Dy() != 640 {
		t.Errorf("content height = %d, want 640", r.Dy())
	}
	left, right := r.Min.X, l.Width-r.Max.X
	if d := left - right; d < -1 || d > 1 {
		t.Errorf("not centered: left %d right %d", left, right)
	}
	if r.Min.Y != 40 {
		t.Errorf("y = %d, want 40", r.Min.Y)
	}
}

func TestTinyContentClampsToOnePixel(t *testing.T) {
	s := &scene.Scene{
		Media: []scene.Medium{
			video(0, 4000, 4000),
			video(1, 1, 4000),
		},
		MaxSize: 100,
	}
	l, err := Compute(s, nil)
	if err != nil {
		t.Fatal(err)
	}
	if w := l.Placements[1].Rect.Dx(); w != 1 {
		t.Errorf("thin medium width = %d, want 1", w)
	}
}

func TestGeometryErrors(t *testing.T) {
	tests := []struct {
		name string
		s    *scene.Scene
	}{
		{"unprobed asset", &scene.Scene{Media: []scene.Medium{video(0, 0, 0)}, MaxSize: 100}},
		{"zero max size", &scene.Scene{Media: []scene.Medium{video(0, 10, 10)}}},
		{"spacing eats canvas", &scene.Scene{
			Media:   []scene.Medium{video(0, 10, 10), video(1, 10, 10)},
			MaxSize: 100,
			Spacing: 100,
		}},
	}
	for _, tt := range tests {
		_, err := Compute(tt.s, nil)
		var gerr *GeometryError
		if !errors.As(err, &gerr) {
			t.Errorf("%s: expected GeometryError, got %v", tt.name, err)
		}
	}
}

func TestUnknownBezel(t *testing.T) {
	v := video(0, 100, 100)
	v.WithBezel = true
	v.BezelKey = "missing"
	if _, err := Compute(&scene.Scene{Media: []scene.Medium{v}, MaxSize: 100}, testCatalog(t)); err == nil {
		t.Error("expected error for unknown bezel")
	}
}

func TestTemplateRoundTripKeepsLayout(t *testing.T) {
	s := &scene.Scene{
		Media: []scene.Medium{
			video(0, 1280, 720),
			scene.Image{Common: scene.Common{Index: 1, Source: scene.Asset{Path: "a.png", Width: 600, Height: 900}}},
		},
		Background: scene.ImageFill{Source: "bg.jpg", AspectFill: true},
		MaxSize:    900,
		PaddingX:   12,
		PaddingY:   30,
		Spacing:    8,
		EndTime:    10,
	}
	back, err := scene.FromTemplate(scene.ToTemplate(s))
	if err != nil {
		t.Fatal(err)
	}

	a, err := Compute(s, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Compute(back, nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.Width != b.Width || a.Height != b.Height {
		t.Errorf("size %dx%d != %dx%d", a.Width, a.Height, b.Width, b.Height)
	}
	for i := range a.Placements {
		if a.Placements[i].Rect != b.Placements[i].Rect {
			t.Errorf("medium %d rect %v != %v", i, a.Placements[i].Rect, b.Placements[i].Rect)
		}
	}
	if !back.Background.Equal(s.Background) {
		t.Error("background identity lost")
	}
}
