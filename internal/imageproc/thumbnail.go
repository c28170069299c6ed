package imageproc

import (
	"image"

	"github.com/disintegration/imaging"
)

var anchors = map[string]imaging.Anchor{
	"":            imaging.Center,
	"center":      imaging.Center,
	"topleft":     imaging.TopLeft,
	"top":         imaging.Top,
	"topright":    imaging.TopRight,
	"left":        imaging.Left,
	"right":       imaging.Right,
	"bottomleft":  imaging.BottomLeft,
	"bottom":      imaging.Bottom,
	"bottomright": imaging.BottomRight,
}

// thumbnail scales and crops the image to fill width x height.
// A missing height produces a square thumbnail.
func (t *Transformer) thumbnail(src image.Image, params map[string]any) (image.Image, error) {
	var p thumbnailParams
	if err := t.decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Height == 0 {
		p.Height = p.Width
	}

	// сначала вырезаем центр нужной пропорции, потом масштабируем - буфер не больше результата
	srcW, srcH := src.Bounds().Dx(), src.Bounds().Dy()
	cw, ch := srcW, srcH
	if int64(srcW)*int64(p.Height) > int64(srcH)*int64(p.Width) {
		cw = scaleSide(srcH, p.Width, p.Height)
	} else {
		ch = scaleSide(srcW, p.Height, p.Width)
	}
	cropped := imaging.CropCenter(src, cw, ch)

	if err := t.checkResize(cropped, p.Width, p.Height); err != nil {
		return nil, err
	}
	return imaging.Resize(cropped, p.Width, p.Height, imaging.Lanczos), nil
}

// crop cuts a width x height rectangle around the anchor without scaling.
func (t *Transformer) crop(src image.Image, params map[string]any) (image.Image, error) {
	var p cropParams
	if err := t.decodeParams(params, &p); err != nil {
		return nil, err
	}

	return imaging.CropAnchor(src, p.Width, p.Height, anchors[p.Anchor]), nil
}
