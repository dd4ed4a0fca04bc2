package sequencer

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"os/exec"
	"slices"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ivlev/scene2video/internal/compositor"
	"github.com/ivlev/scene2video/internal/filtergraph"
	"github.com/ivlev/scene2video/internal/layout"
	"github.com/ivlev/scene2video/internal/scene"
	"github.com/ivlev/scene2video/internal/timing"
	"github.com/ivlev/scene2video/internal/transcoder"
)

type fakeSource struct {
	mu     sync.Mutex
	frame  *image.RGBA
	times  []float64
	fail   bool
	closed bool
}

func newFakeSource(c color.RGBA) *fakeSource {
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return &fakeSource{frame: img}
}

func (f *fakeSource) FrameAt(t float64) (*image.RGBA, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("decode failed")
	}
	f.times = append(f.times, t)
	return f.frame, nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

type fakeEncoder struct {
	cfg        EncoderConfig
	timestamps []int64
	keyframes  []int
	last       *image.RGBA
	flushed    bool
	closed     bool
}

func (e *fakeEncoder) Configure(ctx context.Context, cfg EncoderConfig) error {
	e.cfg = cfg
	return nil
}

func (e *fakeEncoder) EncodeFrame(img *image.RGBA, ts int64, keyframe bool) error {
	if keyframe {
		e.keyframes = append(e.keyframes, len(e.timestamps))
	}
	e.timestamps = append(e.timestamps, ts)
	e.last = image.NewRGBA(img.Bounds())
	copy(e.last.Pix, img.Pix)
	return nil
}

func (e *fakeEncoder) Flush() ([]byte, error) {
	e.flushed = true
	return []byte("container"), nil
}

func (e *fakeEncoder) Close() error {
	e.closed = true
	return nil
}

func mp4(t *testing.T) filtergraph.Format {
	t.Helper()
	f, ok := filtergraph.Lookup("mp4")
	if !ok {
		t.Fatal("mp4 format missing")
	}
	return f
}

// fixture builds a 1s scene at 10fps: a video offset by 0.5s next to a
// still, both 40x20.
func fixture(t *testing.T, src *fakeSource, enc Encoder) (*Sequencer, *scene.Scene) {
	t.Helper()
	s := &scene.Scene{
		Media: []scene.Medium{
			scene.Video{
				Common:  scene.Common{Index: 0, Source: scene.Asset{Path: "clip.mp4", Width: 40, Height: 20, Duration: 2}},
				EndTime: 2, SceneOffset: 0.5, TotalDuration: 2,
			},
			scene.Image{Common: scene.Common{Index: 1, Source: scene.Asset{Path: "still.png", Width: 40, Height: 20}}},
		},
		Background: scene.Solid{Color: "#0000ff"},
		MaxSize:    80,
		EndTime:    1,
		Options:    scene.FormatOptions{FPS: 10},
	}
	l, err := layout.Compute(s, nil)
	if err != nil {
		t.Fatal(err)
	}
	static, err := compositor.New(nil, nil, zerolog.Nop()).Prepare(s, l)
	if err != nil {
		t.Fatal(err)
	}
	trims, err := timing.All(s)
	if err != nil {
		t.Fatal(err)
	}
	green := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for i := 0; i < len(green.Pix); i += 4 {
		green.Pix[i+1], green.Pix[i+3] = 0xff, 0xff
	}
	return New(Config{
		Scene:   s,
		Static:  static,
		Trims:   trims,
		Stills:  map[int]image.Image{1: green},
		Open:    func(string) (FrameSource, error) { return src, nil },
		Encoder: enc,
		Format:  mp4(t),
		Logger:  zerolog.Nop(),
	}), s
}

func TestRender(t *testing.T) {
	src := newFakeSource(color.RGBA{R: 0xff, A: 0xff})
	enc := &fakeEncoder{}
	seq, _ := fixture(t, src, enc)

	var progress []transcoder.Progress
	seq.cfg.OnProgress = func(p transcoder.Progress) { progress = append(progress, p) }

	data, err := seq.Render(context.Background())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if string(data) != "container" || !enc.flushed {
		t.Errorf("data = %q, flushed = %v", data, enc.flushed)
	}
	if seq.State() != Done {
		t.Errorf("state = %s", seq.State())
	}
	if !src.closed {
		t.Error("frame source not closed")
	}

	if enc.cfg.Width != 80 || enc.cfg.Height != 20 || enc.cfg.Codec != "libx264" {
		t.Errorf("encoder config = %+v", enc.cfg)
	}
	if len(enc.timestamps) != 10 {
		t.Fatalf("encoded %d frames, want 10", len(enc.timestamps))
	}
	for n, ts := range enc.timestamps {
		if ts != int64(n)*100000 {
			t.Errorf("frame %d timestamp = %d", n, ts)
		}
	}
	if !slices.Equal(enc.keyframes, []int{0}) {
		t.Errorf("keyframes = %v", enc.keyframes)
	}

	// Before the offset the clip holds its first frame, then follows the
	// scene clock.
	want := []float64{0, 0, 0, 0, 0, 0, 0.1, 0.2, 0.3, 0.4}
	for i, got := range src.times {
		if math.Abs(got-want[i]) > 1e-9 {
			t.Errorf("seek %d = %g, want %g", i, got, want[i])
		}
	}

	if got := enc.last.RGBAAt(20, 10); got.R != 0xff || got.G != 0 {
		t.Errorf("video pixel = %+v, want red", got)
	}
	if got := enc.last.RGBAAt(60, 10); got.G != 0xff || got.R != 0 {
		t.Errorf("still pixel = %+v, want green", got)
	}

	if len(progress) != 10 || progress[9].Fraction != 1 {
		t.Errorf("progress = %+v", progress)
	}
	t.Logf("last progress %+v", progress[len(progress)-1])
}

func TestRenderOnce(t *testing.T) {
	seq, _ := fixture(t, newFakeSource(color.RGBA{A: 0xff}), &fakeEncoder{})
	if _, err := seq.Render(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := seq.Render(context.Background()); err == nil {
		t.Error("second Render should fail")
	}
}

func TestRenderCanceled(t *testing.T) {
	src := newFakeSource(color.RGBA{A: 0xff})
	enc := &fakeEncoder{}
	seq, _ := fixture(t, src, enc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := seq.Render(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if seq.State() != Failed || !enc.closed {
		t.Errorf("state = %s, encoder closed = %v", seq.State(), enc.closed)
	}
	if len(enc.timestamps) != 0 {
		t.Errorf("encoded %d frames after cancel", len(enc.timestamps))
	}
}

func TestRenderSeekFailure(t *testing.T) {
	src := newFakeSource(color.RGBA{A: 0xff})
	src.fail = true
	enc := &fakeEncoder{}
	seq, _ := fixture(t, src, enc)

	if _, err := seq.Render(context.Background()); err == nil {
		t.Fatal("expected seek error")
	}
	if seq.State() != Failed || !enc.closed || !src.closed {
		t.Errorf("state = %s, encoder closed = %v, source closed = %v", seq.State(), enc.closed, src.closed)
	}
}

func TestRenderUnsupported(t *testing.T) {
	enc := &fakeEncoder{}
	seq, _ := fixture(t, newFakeSource(color.RGBA{A: 0xff}), enc)
	seq.cfg.Codec = "h264_videotoolbox"
	seq.cfg.Static.Layout.Width = 5000

	_, err := seq.Render(context.Background())
	var unsupported *UnsupportedConfigurationError
	if !errors.As(err, &unsupported) {
		t.Fatalf("err = %v, want UnsupportedConfigurationError", err)
	}
	if unsupported.Codec != "h264_videotoolbox" || unsupported.Width != 5000 {
		t.Errorf("error = %+v", unsupported)
	}
	if enc.cfg.Codec != "" {
		t.Error("encoder configured despite rejection")
	}
}

func TestRenderEmptyWindow(t *testing.T) {
	enc := &fakeEncoder{}
	src := newFakeSource(color.RGBA{A: 0xff})
	seq, s := fixture(t, src, enc)
	s.StartTime, s.EndTime = 0.5, 0.5

	if _, err := seq.Render(context.Background()); err == nil {
		t.Fatal("empty scene window accepted")
	}
	if enc.cfg.Codec != "" || len(enc.timestamps) != 0 {
		t.Errorf("encoder used: codec %q, %d frames", enc.cfg.Codec, len(enc.timestamps))
	}
	if seq.State() != Failed || len(src.times) != 0 {
		t.Errorf("state = %s, seeks = %v", seq.State(), src.times)
	}
}

func TestCheckConfig(t *testing.T) {
	mp4 := mp4(t)
	gif, _ := filtergraph.Lookup("gif")
	tests := []struct {
		name string
		cfg  EncoderConfig
		ok   bool
	}{
		{"valid", EncoderConfig{Codec: "libx264", Width: 1920, Height: 1080, FPS: 30, Format: mp4}, true},
		{"odd", EncoderConfig{Codec: "libx264", Width: 641, Height: 480, FPS: 30, Format: mp4}, false},
		{"too large for hardware", EncoderConfig{Codec: "h264_videotoolbox", Width: 4100, Height: 2000, FPS: 30, Format: mp4}, false},
		{"unknown codec", EncoderConfig{Codec: "mpeg1", Width: 64, Height: 64, FPS: 30, Format: mp4}, false},
		{"palette format", EncoderConfig{Codec: "libx264", Width: 64, Height: 64, FPS: 30, Format: gif}, false},
		{"no frame rate", EncoderConfig{Codec: "libx264", Width: 64, Height: 64, Format: mp4}, false},
	}
	for _, tt := range tests {
		err := CheckConfig(tt.cfg)
		if (err == nil) != tt.ok {
			t.Errorf("%s: err = %v", tt.name, err)
		}
	}
}

func TestStateString(t *testing.T) {
	for st, want := range map[State]string{Idle: "idle", RenderingFrame: "rendering_frame", Failed: "failed", State(42): "state(42)"} {
		if st.String() != want {
			t.Errorf("%d.String() = %q", int(st), st.String())
		}
	}
}

func TestFFmpegArgs(t *testing.T) {
	e := NewFFmpegEncoder(nil, "")
	args, err := e.buildFFmpegArgs(EncoderConfig{Codec: "h264_nvenc", Width: 64, Height: 48, FPS: 25, Bitrate: 800, Format: mp4(t)})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range [][]string{
		{"-video_size", "64x48"},
		{"-framerate", "25"},
		{"-i", "pipe:0"},
		{"-c:v", "h264_nvenc"},
		{"-g", "30"},
		{"-maxrate", "800k"},
	} {
		i := slices.Index(args, want[0])
		if i < 0 || i+1 >= len(args) || args[i+1] != want[1] {
			t.Errorf("missing %v in %v", want, args)
		}
	}
	if args[len(args)-1] != "pipe:1" {
		t.Errorf("output = %s", args[len(args)-1])
	}
}

func TestFFmpegEncoder(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available")
	}
	tc := transcoder.New("", zerolog.Nop())
	enc := NewFFmpegEncoder(tc, t.TempDir())
	cfg := EncoderConfig{Codec: "libx264", Width: 64, Height: 48, FPS: 10, Format: mp4(t)}
	if err := enc.Configure(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	frame := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for n := 0; n < 10; n++ {
		if err := enc.EncodeFrame(frame, int64(n)*100000, n%KeyframeInterval == 0); err != nil {
			t.Fatalf("frame %d: %v", n, err)
		}
	}
	if err := enc.EncodeFrame(frame, 0, false); err == nil {
		t.Error("expected error for non-monotonic timestamp")
	}
	data, err := enc.Flush()
	if err != nil {
		var exe *transcoder.ExecutionError
		if errors.As(err, &exe) {
			t.Skipf("ffmpeg cannot encode libx264: %s", exe.Output)
		}
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("empty container")
	}
	t.Logf("encoded %d bytes", len(data))
}
