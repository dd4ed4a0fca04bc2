// Package source opens and probes the files behind scene media: stills
// (raster images and PDF pages) and video clips.
package source

import (
	"image"

	"github.com/gen2brain/go-fitz"
)

// DefaultDPI is the rasterization density of PDF pages.
const DefaultDPI = 150

// Document is a paged still source.
type Document interface {
	PageCount() int
	GetPageDimensions(index int, dpi int) (width, height int, err error)
	RenderPage(index int, dpi int) (image.Image, error)
	Close() error
}

// FitzPDFSource реализует Document через go-fitz
type FitzPDFSource struct {
	doc  *fitz.Document
	path string
}

func NewFitzPDFSource(path string) (*FitzPDFSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return &FitzPDFSource{doc: doc, path: path}, nil
}

func (f *FitzPDFSource) PageCount() int {
	return f.doc.NumPage()
}

// GetPageDimensions возвращает размер страницы в пикселях при заданном DPI.
// Bound отдает размер в пунктах (72 на дюйм).
func (f *FitzPDFSource) GetPageDimensions(index int, dpi int) (int, int, error) {
	rect, err := f.doc.Bound(index)
	if err != nil {
		return 0, 0, err
	}
	scale := float64(dpi) / 72
	return int(float64(rect.Dx())*scale + 0.5), int(float64(rect.Dy())*scale + 0.5), nil
}

func (f *FitzPDFSource) RenderPage(index int, dpi int) (image.Image, error) {
	// Для параллельной работы открываем отдельный документ, чтобы не блокировать других
	workerDoc, err := fitz.New(f.path)
	if err != nil {
		return nil, err
	}
	defer workerDoc.Close()
	return workerDoc.ImageDPI(index, float64(dpi))
}

func (f *FitzPDFSource) Close() error {
	return f.doc.Close()
}
