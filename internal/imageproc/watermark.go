package imageproc

import (
	"image"

	"github.com/disintegration/imaging"
)

const (
	defaultWMScale   = 0.7
	defaultWMOpacity = 0.5
)

// applyWatermark overlays the configured watermark in the center of the image.
func (t *Transformer) applyWatermark(src image.Image, params map[string]any) (image.Image, error) {
	var p watermarkParams
	if err := t.decodeParams(params, &p); err != nil {
		return nil, err
	}

	scale, opacity := defaultWMScale, defaultWMOpacity
	if p.Scale != nil {
		scale = *p.Scale
	}
	if p.Opacity != nil {
		opacity = *p.Opacity
	}

	baseW := src.Bounds().Dx()
	baseH := src.Bounds().Dy()

	// масштабируем watermark до доли ширины основы, но не выше самой основы
	targetW := max(int(float64(baseW)*scale), 1)
	wmW, wmH := fitSize(t.watermark.Bounds().Dx(), t.watermark.Bounds().Dy(), targetW, baseH)
	if err := t.checkResize(t.watermark, wmW, wmH); err != nil {
		return nil, err
	}
	wm := imaging.Resize(t.watermark, wmW, wmH, imaging.Lanczos)

	// находим центр основного изображения
	offset := image.Pt(
		(baseW-wm.Bounds().Dx())/2,
		(baseH-wm.Bounds().Dy())/2,
	)

	// само наложение, Overlay возвращает новое изображение
	return imaging.Overlay(src, wm, offset, opacity), nil
}
