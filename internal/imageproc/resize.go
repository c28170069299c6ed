package imageproc

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// resize fits the image into width x height keeping the aspect ratio (fit, default)
// or stretches it to exactly that size. A zero side is derived from the other one.
// Fitting scales both ways: a source smaller than the box is enlarged.
func (t *Transformer) resize(src image.Image, params map[string]any) (image.Image, error) {
	var p resizeParams
	if err := t.decodeParams(params, &p); err != nil {
		return nil, err
	}

	srcW, srcH := src.Bounds().Dx(), src.Bounds().Dy()
	w, h := p.Width, p.Height
	fit := p.Fit == nil || *p.Fit
	switch {
	case fit && w > 0 && h > 0:
		w, h = fitSize(srcW, srcH, w, h)
	case w == 0:
		w = scaleSide(srcW, h, srcH)
	case h == 0:
		h = scaleSide(srcH, w, srcW)
	}

	if err := t.checkResize(src, w, h); err != nil {
		return nil, err
	}
	return imaging.Resize(src, w, h, imaging.Lanczos), nil
}

// fitSize returns the largest size with the source aspect ratio that fits into boxW x boxH.
func fitSize(srcW, srcH, boxW, boxH int) (int, int) {
	// сравниваем пропорции без деления
	if int64(srcW)*int64(boxH) >= int64(srcH)*int64(boxW) {
		return boxW, scaleSide(srcH, boxW, srcW)
	}
	return scaleSide(srcW, boxH, srcH), boxH
}

// scaleSide returns side * num / den rounded, never less than 1.
func scaleSide(side, num, den int) int {
	if den == 0 {
		return 1
	}
	return max(int(math.Round(float64(side)*float64(num)/float64(den))), 1)
}
