package preview

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"github.com/ivlev/scene2video/internal/scene"
	"github.com/ivlev/scene2video/internal/sequencer"
)

type clipSource struct {
	mu    *sync.Mutex
	seeks *[]float64
	frame *image.RGBA
}

func (c clipSource) FrameAt(t float64) (*image.RGBA, error) {
	c.mu.Lock()
	*c.seeks = append(*c.seeks, t)
	c.mu.Unlock()
	return c.frame, nil
}

func (c clipSource) Close() error { return nil }

func testScene() *scene.Scene {
	return &scene.Scene{
		Media: []scene.Medium{
			scene.Video{
				Common:  scene.Common{Index: 3, Source: scene.Asset{Path: "clip.mp4", Width: 40, Height: 20, Duration: 4}},
				EndTime: 4, SceneOffset: 1, TotalDuration: 4,
			},
			scene.Image{Common: scene.Common{Index: 7, Source: scene.Asset{Path: "still.png", Width: 40, Height: 20}}},
		},
		Background: scene.Solid{Color: "#000080"},
		MaxSize:    80,
		EndTime:    3,
	}
}

func TestRenderAt(t *testing.T) {
	var mu sync.Mutex
	var seeks []float64
	red := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for i := 0; i < len(red.Pix); i += 4 {
		red.Pix[i], red.Pix[i+3] = 0xff, 0xff
	}
	open := func(path string) (sequencer.FrameSource, error) {
		if path != "clip.mp4" {
			t.Errorf("opened %s", path)
		}
		return clipSource{mu: &mu, seeks: &seeks, frame: red}, nil
	}
	load := func(path string) (image.Image, error) {
		return imaging.New(40, 20, color.NRGBA{G: 0xff, A: 0xff}), nil
	}
	r := New(nil, load, open, zerolog.Nop())

	tests := []struct {
		at       float64
		wantSeek float64
	}{
		{0, 0},
		{2.5, 1.5},
		{10, 2},
		{-4, 0},
	}
	for _, tt := range tests {
		img, err := r.RenderAt(context.Background(), testScene(), tt.at)
		if err != nil {
			t.Fatalf("RenderAt(%g): %v", tt.at, err)
		}
		if b := img.Bounds(); b.Dx() != 80 || b.Dy() != 20 {
			t.Fatalf("bounds = %v", b)
		}
		if got := img.RGBAAt(10, 10); got.R != 0xff {
			t.Errorf("at %g: video pixel = %+v", tt.at, got)
		}
		if got := img.RGBAAt(70, 10); got.G != 0xff {
			t.Errorf("at %g: still pixel = %+v", tt.at, got)
		}
		last := seeks[len(seeks)-1]
		if math.Abs(last-tt.wantSeek) > 1e-9 {
			t.Errorf("at %g: clip time = %g, want %g", tt.at, last, tt.wantSeek)
		}
	}
}

func TestRenderAtErrors(t *testing.T) {
	load := func(string) (image.Image, error) { return imaging.New(40, 20, color.Black), nil }
	failing := func(string) (sequencer.FrameSource, error) { return nil, errors.New("no decoder") }

	r := New(nil, load, failing, zerolog.Nop())
	if _, err := r.RenderAt(context.Background(), testScene(), 1); err == nil {
		t.Error("expected open error")
	}

	bad := testScene()
	bad.MaxSize = 0
	var validation *scene.ValidationError
	if _, err := r.RenderAt(context.Background(), bad, 1); !errors.As(err, &validation) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}
