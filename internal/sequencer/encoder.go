package sequencer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"strconv"

	"github.com/ivlev/scene2video/internal/filtergraph"
	"github.com/ivlev/scene2video/internal/scene"
	"github.com/ivlev/scene2video/internal/transcoder"
)

// KeyframeInterval forces a keyframe every this many frames.
const KeyframeInterval = 30

// EncoderConfig fixes the stream an Encoder produces.
type EncoderConfig struct {
	Codec  string
	Width  int
	Height int
	FPS    int
	// Bitrate caps the stream in kbit/s when positive.
	Bitrate int
	Format  filtergraph.Format
	Options scene.FormatOptions
}

// Encoder consumes composed frames and produces one container buffer.
type Encoder interface {
	Configure(ctx context.Context, cfg EncoderConfig) error
	// EncodeFrame takes a frame with its timestamp in microseconds. The
	// image may be reused by the caller once the call returns.
	EncodeFrame(img *image.RGBA, timestamp int64, keyframe bool) error
	Flush() ([]byte, error)
	// Close abandons an unfinished stream.
	Close() error
}

// UnsupportedConfigurationError is returned for a codec and size the encoder
// rejects. There is no fallback to another configuration.
type UnsupportedConfigurationError struct {
	Codec  string
	Width  int
	Height int
	Reason string
}

func (e *UnsupportedConfigurationError) Error() string {
	return fmt.Sprintf("unsupported encoder configuration %s %dx%d: %s", e.Codec, e.Width, e.Height, e.Reason)
}

var maxDimensions = map[string]image.Point{
	"libx264":           {8192, 4320},
	"h264_videotoolbox": {4096, 2304},
	"h264_nvenc":        {4096, 4096},
	"libvpx-vp9":        {16384, 16384},
	"prores_ks":         {8192, 8192},
}

// CheckConfig validates cfg against the limits of its codec.
func CheckConfig(cfg EncoderConfig) error {
	reject := func(format string, args ...any) error {
		return &UnsupportedConfigurationError{Codec: cfg.Codec, Width: cfg.Width, Height: cfg.Height, Reason: fmt.Sprintf(format, args...)}
	}
	limit, ok := maxDimensions[cfg.Codec]
	if !ok {
		return reject("unknown codec")
	}
	if !cfg.Format.Supports(filtergraph.BackendFrames) {
		return reject("format %s is not encoded frame by frame", cfg.Format.Name)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return reject("empty frame")
	}
	if cfg.Width%2 != 0 || cfg.Height%2 != 0 {
		return reject("dimensions must be even")
	}
	if cfg.Width > limit.X || cfg.Height > limit.Y {
		return reject("exceeds %dx%d", limit.X, limit.Y)
	}
	if cfg.FPS <= 0 {
		return reject("frame rate must be positive")
	}
	return nil
}

// FFmpegEncoder pipes raw RGBA frames into an ffmpeg process and collects
// the muxed container from its stdout.
type FFmpegEncoder struct {
	tc  *transcoder.Transcoder
	dir string

	cfg     EncoderConfig
	proc    *transcoder.Process
	out     bytes.Buffer
	lastTS  int64
	written int
}

// NewFFmpegEncoder creates an encoder running in dir.
func NewFFmpegEncoder(tc *transcoder.Transcoder, dir string) *FFmpegEncoder {
	return &FFmpegEncoder{tc: tc, dir: dir, lastTS: -1}
}

func (e *FFmpegEncoder) Configure(ctx context.Context, cfg EncoderConfig) error {
	if err := CheckConfig(cfg); err != nil {
		return err
	}
	args, err := e.buildFFmpegArgs(cfg)
	if err != nil {
		return err
	}
	proc, err := e.tc.Start(ctx, args, transcoder.Options{Dir: e.dir, Stdout: &e.out})
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.proc = proc
	return nil
}

func (e *FFmpegEncoder) buildFFmpegArgs(cfg EncoderConfig) ([]string, error) {
	encoder := ""
	if cfg.Codec != cfg.Format.Codec {
		encoder = cfg.Codec
	}
	out, err := cfg.Format.OutputArgs(cfg.Options, encoder, cfg.Width, cfg.Height)
	if err != nil {
		return nil, err
	}

	args := []string{
		"-y", "-hide_banner",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", filtergraph.Size(cfg.Width, cfg.Height),
		"-framerate", strconv.Itoa(cfg.FPS),
		"-i", "pipe:0",
	}
	args = append(args, out...)
	args = append(args,
		"-g", strconv.Itoa(KeyframeInterval),
		"-force_key_frames", fmt.Sprintf("expr:eq(mod(n,%d),0)", KeyframeInterval),
	)
	if cfg.Bitrate > 0 {
		args = append(args, "-maxrate", fmt.Sprintf("%dk", cfg.Bitrate), "-bufsize", fmt.Sprintf("%dk", cfg.Bitrate*2))
	}
	return append(args, "pipe:1"), nil
}

// EncodeFrame writes one frame. Raw input carries no per-frame flags, so the
// keyframe hint is honored through the fixed keyframe expression and
// rejected when it disagrees with it.
func (e *FFmpegEncoder) EncodeFrame(img *image.RGBA, timestamp int64, keyframe bool) error {
	if e.proc == nil {
		return errors.New("encoder is not configured")
	}
	if timestamp <= e.lastTS {
		return fmt.Errorf("timestamp %dus is not after %dus", timestamp, e.lastTS)
	}
	if keyframe != (e.written%KeyframeInterval == 0) {
		return fmt.Errorf("keyframe hint on frame %d does not match interval %d", e.written, KeyframeInterval)
	}
	if b := img.Bounds(); b.Dx() != e.cfg.Width || b.Dy() != e.cfg.Height {
		return fmt.Errorf("frame %dx%d does not match stream %dx%d", b.Dx(), b.Dy(), e.cfg.Width, e.cfg.Height)
	}
	if err := writeRawRGBA(e.proc.Stdin, img); err != nil {
		return fmt.Errorf("write raw error: %w", err)
	}
	e.lastTS = timestamp
	e.written++
	return nil
}

// Flush closes the input and returns the finished container.
func (e *FFmpegEncoder) Flush() ([]byte, error) {
	if e.proc == nil {
		return nil, errors.New("encoder is not configured")
	}
	proc := e.proc
	e.proc = nil
	if err := proc.Wait(); err != nil {
		return nil, err
	}
	return e.out.Bytes(), nil
}

// Close stops a stream that was not flushed.
func (e *FFmpegEncoder) Close() error {
	if e.proc == nil {
		return nil
	}
	proc := e.proc
	e.proc = nil
	proc.Kill()
	proc.Wait()
	return nil
}

func writeRawRGBA(w io.Writer, img image.Image) error {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 || rgba.Rect.Min.X != 0 || rgba.Rect.Min.Y != 0 {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Rect, img, bounds.Min, draw.Src)
	}
	_, err := w.Write(rgba.Pix)
	return err
}
