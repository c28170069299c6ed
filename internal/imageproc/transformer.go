// Package imageproc provides operations for images: resizing, thumbnails, crops, filters and watermark application.
package imageproc

import (
	"fmt"
	"image"
	"os"
	"slices"
	"strings"

	"github.com/UnendingLoop/ImageServer/internal/model"
	"github.com/UnendingLoop/ImageServer/internal/registry"
	"github.com/disintegration/imaging"
	"github.com/go-playground/validator/v10"
)

const (
	defaultJPEGQuality = 90
	defaultMaxPixels   = 40_000_000 // 40 Мп - исходник и любой промежуточный буфер
)

type Options struct {
	WatermarkPath string      // PNG накладываемый операцией Watermark
	Watermark     image.Image // уже загруженный ватермарк, приоритетнее пути
	JPEGQuality   int
	MaxPixels     int64 // <= 0 - defaultMaxPixels
}

// operation is one capability: its accepted params and the function producing a new image.
type operation struct {
	params []string
	apply  func(src image.Image, params map[string]any) (image.Image, error)
}

// Transformer decodes, transforms and encodes images with imaging.
// It holds no per-job state and is safe for concurrent use.
type Transformer struct {
	ops         map[string]operation
	watermark   image.Image
	jpegQuality int
	maxPixels   int64
	validate    *validator.Validate
}

func New(opts Options) (*Transformer, error) {
	t := &Transformer{
		watermark:   opts.Watermark,
		jpegQuality: opts.JPEGQuality,
		maxPixels:   opts.MaxPixels,
		validate:    validator.New(),
	}
	if t.jpegQuality <= 0 || t.jpegQuality > 100 {
		t.jpegQuality = defaultJPEGQuality
	}
	if t.maxPixels <= 0 {
		t.maxPixels = defaultMaxPixels
	}

	if t.watermark == nil && opts.WatermarkPath != "" {
		wm, err := imaging.Open(opts.WatermarkPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load watermark %q: %w", opts.WatermarkPath, err)
		}
		t.watermark = wm
	}

	t.ops = map[string]operation{
		"Resize":    {params: []string{"width", "height", "fit"}, apply: t.resize},
		"Thumbnail": {params: []string{"width", "height"}, apply: t.thumbnail},
		"Crop":      {params: []string{"width", "height", "anchor"}, apply: t.crop},
		"Blur":      {params: []string{"sigma"}, apply: t.blur},
		"Grayscale": {params: nil, apply: t.grayscale},
	}
	// без ватермарка операция не регистрируется
	if t.watermark != nil {
		t.ops["Watermark"] = operation{params: []string{"opacity", "scale"}, apply: t.applyWatermark}
	}

	return t, nil
}

// Capabilities lists every operation this transformer can Apply.
func (t *Transformer) Capabilities() []registry.Capability {
	res := make([]registry.Capability, 0, len(t.ops))
	for name, op := range t.ops {
		res = append(res, registry.Capability{Name: name, Params: slices.Clone(op.params)})
	}
	slices.SortFunc(res, func(a, b registry.Capability) int {
		return strings.Compare(a.Name, b.Name)
	})
	return res
}

// Load decodes the file at path. The format is taken from the content, not the name.
func (t *Transformer) Load(path string) (*model.ImageHandle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %q: %v", model.ErrLoad, path, err)
	}
	defer f.Close()

	cfg, formatName, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%w: the worker was unable to generate a valid image resource to process: %v", model.ErrLoad, err)
	}
	// размер проверяется до декодирования - по заголовку
	if px := int64(cfg.Width) * int64(cfg.Height); px > t.maxPixels {
		return nil, fmt.Errorf("%w: image %dx%d exceeds the limit of %d pixels", model.ErrLoad, cfg.Width, cfg.Height, t.maxPixels)
	}
	format, err := imaging.FormatFromExtension(formatName)
	if err != nil {
		return nil, fmt.Errorf("%w: unsupported image format %q", model.ErrLoad, formatName)
	}

	if _, err := f.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrLoad, err)
	}
	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode %q: %v", model.ErrLoad, path, err)
	}

	return &model.ImageHandle{Image: img, Format: format}, nil
}

// Apply runs the named operation on h and returns a new handle; h is left untouched.
func (t *Transformer) Apply(name string, h *model.ImageHandle, params map[string]any) (*model.ImageHandle, error) {
	op, ok := t.ops[registry.Normalize(name)]
	if !ok {
		return nil, fmt.Errorf("%w: the image manipulator does not have a method %q", model.ErrUnknownTask, name)
	}
	if h == nil || h.Image == nil {
		return nil, fmt.Errorf("%w: %s: nil image provided", model.ErrTransform, name)
	}

	res, err := op.apply(h.Image, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrTransform, name, err)
	}

	return &model.ImageHandle{Image: res, Format: h.Format}, nil
}

// checkResize rejects resizing src to w x h when the result or the intermediate
// buffer (w x source height) would exceed the pixel limit.
func (t *Transformer) checkResize(src image.Image, w, h int) error {
	rows := max(h, src.Bounds().Dy())
	if int64(w)*int64(rows) > t.maxPixels {
		return fmt.Errorf("resizing to %dx%d exceeds the limit of %d pixels", w, h, t.maxPixels)
	}
	return nil
}

// Write encodes h into path keeping the source format.
func (t *Transformer) Write(h *model.ImageHandle, path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("%w: failed to open %q for writing: %v", model.ErrTransform, path, err)
	}

	if err := imaging.Encode(f, h.Image, h.Format, imaging.JPEGQuality(t.jpegQuality)); err != nil {
		f.Close()
		return fmt.Errorf("%w: failed to encode %q: %v", model.ErrTransform, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: failed to flush %q: %v", model.ErrTransform, path, err)
	}
	return nil
}
