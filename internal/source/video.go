package source

import (
	"fmt"
	"image"
	"math"

	vidio "github.com/AlexEidt/Vidio"

	"github.com/ivlev/scene2video/internal/scene"
)

// seekWindow is how far ahead, in frames, a reader decodes sequentially
// instead of starting a new seek.
const seekWindow = 90

// ProbeVideo reads the size and duration of a clip.
func ProbeVideo(path string) (scene.Asset, error) {
	v, err := vidio.NewVideo(path)
	if err != nil {
		return scene.Asset{Path: path}, fmt.Errorf("probe %s: %w", path, err)
	}
	defer v.Close()
	return scene.Asset{
		Path:     path,
		Width:    v.Width(),
		Height:   v.Height(),
		Duration: v.Duration(),
	}, nil
}

// VideoReader decodes frames of one clip. Readers are never shared: every
// preview and every conversion opens its own.
type VideoReader struct {
	path   string
	video  *vidio.Video
	fps    float64
	frames int
	frame  *image.RGBA

	// current is the index held in frame, streamPos the last index read
	// from the sequential stream.
	current   int
	streamPos int
}

// OpenVideo opens a clip for frame access.
func OpenVideo(path string) (*VideoReader, error) {
	v, err := vidio.NewVideo(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	frame := image.NewRGBA(image.Rect(0, 0, v.Width(), v.Height()))
	if err := v.SetFrameBuffer(frame.Pix); err != nil {
		v.Close()
		return nil, err
	}

	fps := v.FPS()
	if fps <= 0 {
		fps = 30
	}
	frames := v.Frames()
	if frames <= 0 {
		frames = int(math.Ceil(v.Duration() * fps))
	}
	return &VideoReader{
		path:      path,
		video:     v,
		fps:       fps,
		frames:    max(frames, 1),
		frame:     frame,
		current:   -1,
		streamPos: -1,
	}, nil
}

// Path returns the clip path.
func (r *VideoReader) Path() string {
	return r.path
}

// Index maps a clip time to a frame index.
func (r *VideoReader) Index(t float64) int {
	n := int(math.Floor(t*r.fps + 1e-6))
	return min(max(n, 0), r.frames-1)
}

// FrameAt returns the frame shown at clip time t. The returned image is
// reused by the next call.
func (r *VideoReader) FrameAt(t float64) (*image.RGBA, error) {
	n := r.Index(t)
	if n == r.current {
		return r.frame, nil
	}

	if n > r.streamPos && n-r.streamPos <= seekWindow {
		for r.streamPos < n {
			if !r.video.Read() {
				if r.streamPos < 0 {
					return nil, fmt.Errorf("%s: no decodable frames", r.path)
				}
				// Frame count from the container can overshoot; hold the last
				// decoded frame.
				r.frames = r.streamPos + 1
				r.current = r.streamPos
				return r.frame, nil
			}
			r.streamPos++
		}
		r.current = n
		return r.frame, nil
	}

	if err := r.video.ReadFrame(n); err != nil {
		return nil, fmt.Errorf("seek %s to frame %d: %w", r.path, n, err)
	}
	r.current = n
	return r.frame, nil
}

// Close releases the decoder.
func (r *VideoReader) Close() error {
	r.video.Close()
	return nil
}
