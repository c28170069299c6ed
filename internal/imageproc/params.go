package imageproc

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// decodeParams fills out from the size params and validates it.
// Unknown params are rejected; "100" and 100 are both accepted for numbers.
func (t *Transformer) decodeParams(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}

	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	if err := t.validate.Struct(out); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

type resizeParams struct {
	Width  int   `mapstructure:"width" validate:"gte=0,lte=10000,required_without=Height"`
	Height int   `mapstructure:"height" validate:"gte=0,lte=10000"`
	Fit    *bool `mapstructure:"fit"`
}

type thumbnailParams struct {
	Width  int `mapstructure:"width" validate:"gt=0,lte=10000"`
	Height int `mapstructure:"height" validate:"gte=0,lte=10000"`
}

type cropParams struct {
	Width  int    `mapstructure:"width" validate:"gt=0,lte=10000"`
	Height int    `mapstructure:"height" validate:"gt=0,lte=10000"`
	Anchor string `mapstructure:"anchor" validate:"omitempty,oneof=center topleft top topright left right bottomleft bottom bottomright"`
}

type blurParams struct {
	Sigma float64 `mapstructure:"sigma" validate:"gt=0,lte=100"`
}

type watermarkParams struct {
	Opacity *float64 `mapstructure:"opacity" validate:"omitempty,gte=0,lte=1"`
	Scale   *float64 `mapstructure:"scale" validate:"omitempty,gt=0,lte=1"`
}
