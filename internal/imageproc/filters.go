package imageproc

import (
	"image"

	"github.com/disintegration/imaging"
)

func (t *Transformer) blur(src image.Image, params map[string]any) (image.Image, error) {
	var p blurParams
	if err := t.decodeParams(params, &p); err != nil {
		return nil, err
	}
	return imaging.Blur(src, p.Sigma), nil
}

func (t *Transformer) grayscale(src image.Image, params map[string]any) (image.Image, error) {
	var p struct{}
	if err := t.decodeParams(params, &p); err != nil {
		return nil, err
	}
	return imaging.Grayscale(src), nil
}
