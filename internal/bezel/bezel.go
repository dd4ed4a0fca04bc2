// Package bezel provides the read-only catalog of device frames. A catalog
// is loaded once, passed explicitly to the layout engine and compositors, and
// never mutated afterwards.
package bezel

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/disintegration/imaging"
	"gopkg.in/yaml.v3"

	"github.com/ivlev/scene2video/internal/geometry"
)

// Bezel is an immutable catalog entry. Several color variants share one
// ModelKey and therefore one mask.
type Bezel struct {
	Key          string  `yaml:"key"`
	Title        string  `yaml:"title"`
	ModelKey     string  `yaml:"model"`
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	ContentScale float64 `yaml:"content_scale"`
}

// NaturalSize returns the bezel's pixel size, rotated for side-up
// orientations.
func (b Bezel) NaturalSize(o geometry.Orientation) geometry.Size {
	s := geometry.Size{W: float64(b.Width), H: float64(b.Height)}
	if o.SideUp() {
		return s.Swap()
	}
	return s
}

func (b Bezel) validate() error {
	if b.Key == "" {
		return fmt.Errorf("bezel without key")
	}
	if b.ModelKey == "" {
		return fmt.Errorf("bezel %s: empty model key", b.Key)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("bezel %s: invalid size %dx%d", b.Key, b.Width, b.Height)
	}
	if !(b.ContentScale > 0 && b.ContentScale <= 1) {
		return fmt.Errorf("bezel %s: content scale %g outside (0, 1]", b.Key, b.ContentScale)
	}
	return nil
}

// Variant selects one of the four image assets published per bezel.
type Variant int

const (
	// FullColor is the device frame itself, keyed by color variant.
	FullColor Variant = iota
	// Preview is the small thumbnail used by pickers.
	Preview
	// SolidMask is the opaque device silhouette on a transparent background,
	// keyed by model.
	SolidMask
	// EdgeMask is the silhouette with a feathered transparent edge, keyed by
	// model.
	EdgeMask
)

func (v Variant) String() string {
	switch v {
	case Preview:
		return "preview"
	case SolidMask:
		return "mask"
	case EdgeMask:
		return "mask-edge"
	default:
		return "full"
	}
}

// Catalog is the keyed lookup table of bezels plus lazily decoded assets.
type Catalog struct {
	dir     string
	entries map[string]Bezel
	keys    []string

	mu     sync.Mutex
	images map[string]image.Image
}

type catalogFile struct {
	AssetDir string  `yaml:"asset_dir"`
	Bezels   []Bezel `yaml:"bezels"`
}

// New builds a catalog from entries whose assets live in dir.
func New(dir string, entries []Bezel) (*Catalog, error) {
	c := &Catalog{
		dir:     dir,
		entries: make(map[string]Bezel, len(entries)),
		images:  make(map[string]image.Image),
	}
	for _, b := range entries {
		if err := b.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.entries[b.Key]; dup {
			return nil, fmt.Errorf("duplicate bezel key %s", b.Key)
		}
		c.entries[b.Key] = b
		c.keys = append(c.keys, b.Key)
	}
	sort.Strings(c.keys)
	return c, nil
}

// Load reads a catalog YAML file. A relative asset_dir is resolved against
// the file's directory.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse bezel catalog %s: %w", path, err)
	}

	dir := f.AssetDir
	if dir == "" {
		dir = "."
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(filepath.Dir(path), dir)
	}
	return New(dir, f.Bezels)
}

// Lookup returns the bezel registered under key.
func (c *Catalog) Lookup(key string) (Bezel, bool) {
	if c == nil {
		return Bezel{}, false
	}
	b, ok := c.entries[key]
	return b, ok
}

// Keys returns all bezel keys in sorted order.
func (c *Catalog) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// AssetPath applies the naming convention for a bezel asset.
func (c *Catalog) AssetPath(b Bezel, v Variant) string {
	var name string
	switch v {
	case Preview:
		name = b.Key + "-preview.png"
	case SolidMask:
		name = b.ModelKey + "-mask.png"
	case EdgeMask:
		name = b.ModelKey + "-mask-edge.png"
	default:
		name = b.Key + ".png"
	}
	return filepath.Join(c.dir, name)
}

// Image decodes a bezel asset. Decoded images are cached and shared, so
// callers must not draw into them.
func (c *Catalog) Image(b Bezel, v Variant) (image.Image, error) {
	path := c.AssetPath(b, v)

	c.mu.Lock()
	defer c.mu.Unlock()

	if img, ok := c.images[path]; ok {
		return img, nil
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bezel %s %s asset: %w", b.Key, v, err)
	}
	c.images[path] = img
	return img, nil
}
