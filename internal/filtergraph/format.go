package filtergraph

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ivlev/scene2video/internal/scene"
)

// Backend names a renderer able to produce a format.
type Backend string

const (
	// BackendGraph drives ffmpeg with a generated filter graph.
	BackendGraph Backend = "graph"
	// BackendFrames renders every frame locally and pipes it to an encoder.
	BackendFrames Backend = "frames"
	// BackendStill renders a single frame.
	BackendStill Backend = "still"
)

// Format describes an output container and how ffmpeg produces it.
type Format struct {
	Name      string
	Ext       string
	MIME      string
	Codec     string
	PixFmt    string
	Muxer     string
	Animated  bool
	Palette   bool
	Alpha     bool
	Even      bool
	Backends  []Backend
	Quality   int
	MaxColors int
}

// Supports reports whether the format can be produced by backend b.
func (f Format) Supports(b Backend) bool {
	for _, x := range f.Backends {
		if x == b {
			return true
		}
	}
	return false
}

// Filename suggests a file name for an output.
func (f Format) Filename(base string) string {
	return base + "." + f.Ext
}

var formats = map[string]Format{
	"mp4": {
		Name: "mp4", Ext: "mp4", MIME: "video/mp4",
		Codec: "libx264", PixFmt: "yuv420p", Muxer: "mp4",
		Animated: true, Even: true, Quality: 23,
		Backends: []Backend{BackendGraph, BackendFrames},
	},
	"webm": {
		Name: "webm", Ext: "webm", MIME: "video/webm",
		Codec: "libvpx-vp9", PixFmt: "yuva420p", Muxer: "webm",
		Animated: true, Alpha: true, Even: true, Quality: 32,
		Backends: []Backend{BackendGraph, BackendFrames},
	},
	"gif": {
		Name: "gif", Ext: "gif", MIME: "image/gif",
		Muxer:    "gif",
		Animated: true, Palette: true, MaxColors: 256,
		Backends: []Backend{BackendGraph},
	},
	"apng": {
		Name: "apng", Ext: "png", MIME: "image/apng",
		Codec: "apng", PixFmt: "rgba", Muxer: "apng",
		Animated: true, Alpha: true,
		Backends: []Backend{BackendGraph},
	},
	"webp": {
		Name: "webp", Ext: "webp", MIME: "image/webp",
		Codec: "libwebp_anim", PixFmt: "yuva420p", Muxer: "webp",
		Animated: true, Alpha: true,
		Backends: []Backend{BackendGraph},
	},
	"mov": {
		Name: "mov", Ext: "mov", MIME: "video/quicktime",
		Codec: "prores_ks", PixFmt: "yuva444p10le", Muxer: "mov",
		Animated: true, Alpha: true,
		Backends: []Backend{BackendFrames},
	},
	"png": {
		Name: "png", Ext: "png", MIME: "image/png",
		Alpha:    true,
		Backends: []Backend{BackendStill},
	},
	"jpg": {
		Name: "jpg", Ext: "jpg", MIME: "image/jpeg",
		Quality:  90,
		Backends: []Backend{BackendStill},
	},
}

// Lookup finds a format by name. "jpeg" is accepted for jpg.
func Lookup(name string) (Format, bool) {
	name = strings.ToLower(strings.TrimPrefix(name, "."))
	if name == "jpeg" {
		name = "jpg"
	}
	f, ok := formats[name]
	return f, ok
}

// Names lists the supported formats.
func Names() []string {
	out := make([]string, 0, len(formats))
	for name := range formats {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// OutputArgs returns the codec and muxer flags for this format. encoder
// overrides the H.264 codec when a hardware encoder is available.
func (f Format) OutputArgs(opts scene.FormatOptions, encoder string, w, h int) ([]string, error) {
	if !f.Animated {
		return nil, fmt.Errorf("format %s is not produced by ffmpeg", f.Name)
	}
	args := []string{"-s", Size(w, h), "-an"}
	quality := opts.Quality
	if quality == 0 {
		quality = f.Quality
	}

	switch f.Name {
	case "mp4":
		codec := f.Codec
		if encoder != "" {
			codec = encoder
		}
		args = append(args, "-c:v", codec, "-pix_fmt", f.PixFmt)
		args = append(args, h264Quality(codec, quality)...)
		args = append(args, "-movflags", "frag_keyframe+empty_moov")
	case "webm":
		args = append(args, "-c:v", f.Codec, "-pix_fmt", f.PixFmt, "-crf", strconv.Itoa(quality), "-b:v", "0")
	case "gif":
		args = append(args, "-loop", strconv.Itoa(opts.Loop))
	case "apng":
		args = append(args, "-c:v", f.Codec, "-pix_fmt", f.PixFmt, "-plays", strconv.Itoa(opts.Loop))
	case "webp":
		args = append(args, "-c:v", f.Codec, "-pix_fmt", f.PixFmt, "-lossless", "1", "-loop", strconv.Itoa(opts.Loop))
	case "mov":
		args = append(args, "-c:v", f.Codec, "-profile:v", "4444", "-pix_fmt", f.PixFmt, "-movflags", "frag_keyframe+empty_moov")
	}
	return append(args, "-f", f.Muxer), nil
}

// h264Quality maps the quality knob onto each encoder's rate control.
func h264Quality(encoder string, quality int) []string {
	switch encoder {
	case "h264_videotoolbox":
		// VideoToolbox не везде поддерживает -q:v, используем битрейт
		bitrate := quality * 100
		return []string{"-b:v", fmt.Sprintf("%dk", bitrate)}
	case "h264_nvenc":
		return []string{"-cq", fmt.Sprintf("%d", quality)}
	default: // libx264
		return []string{"-crf", fmt.Sprintf("%d", quality), "-preset", "medium"}
	}
}
