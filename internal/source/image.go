package source

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/webp"

	"github.com/ivlev/scene2video/internal/scene"
)

var (
	imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true, ".bmp": true, ".tif": true, ".tiff": true, ".pdf": true}
	videoExts = map[string]bool{".mp4": true, ".mov": true, ".m4v": true, ".webm": true, ".mkv": true, ".avi": true}
)

// KindOf classifies a file by extension.
func KindOf(path string) (scene.Kind, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case videoExts[ext]:
		return scene.KindVideo, nil
	case imageExts[ext]:
		return scene.KindImage, nil
	}
	return 0, fmt.Errorf("unsupported media file %s", filepath.Base(path))
}

// Collect returns the media files under path. A directory is listed in name
// order, a single file is returned as is.
func Collect(path string) ([]string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, err := KindOf(entry.Name()); err == nil {
			paths = append(paths, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// OpenImage decodes a still. PDFs yield their first page.
func OpenImage(path string) (image.Image, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		doc, err := NewFitzPDFSource(path)
		if err != nil {
			return nil, err
		}
		defer doc.Close()
		return doc.RenderPage(0, DefaultDPI)
	case ".webp":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return webp.Decode(f)
	}
	return imaging.Open(path, imaging.AutoOrientation(true))
}

// ProbeImage reads the pixel size of a still as it will be drawn, with EXIF
// orientation applied.
func ProbeImage(path string) (scene.Asset, error) {
	asset := scene.Asset{Path: path}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		doc, err := NewFitzPDFSource(path)
		if err != nil {
			return asset, err
		}
		defer doc.Close()
		if doc.PageCount() == 0 {
			return asset, fmt.Errorf("%s has no pages", filepath.Base(path))
		}
		asset.Width, asset.Height, err = doc.GetPageDimensions(0, DefaultDPI)
		return asset, err
	case ".webp":
		f, err := os.Open(path)
		if err != nil {
			return asset, err
		}
		defer f.Close()
		cfg, err := webp.DecodeConfig(f)
		if err != nil {
			return asset, err
		}
		asset.Width, asset.Height = cfg.Width, cfg.Height
		return asset, nil
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return asset, err
	}
	b := img.Bounds()
	asset.Width, asset.Height = b.Dx(), b.Dy()
	return asset, nil
}
