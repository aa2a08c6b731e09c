package classify

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultInputSize is the square edge the item model was trained on.
const DefaultInputSize = 224

// MaxPixels bounds the decoded size of a photo. Headers are checked before
// any pixel data is allocated.
const MaxPixels = 4096 * 4096

// Tensor is a height x width x RGB input scaled to [0,1].
type Tensor [][][3]float32

// Preprocess decodes a JPEG, PNG or WebP photo, resizes it to size x size and
// scales every channel to [0,1].
func Preprocess(data []byte, size int) (Tensor, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > MaxPixels/cfg.Height {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrBadImage, cfg.Width, cfg.Height, MaxPixels)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	if size <= 0 {
		size = DefaultInputSize
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := make(Tensor, size)
	for y := 0; y < size; y++ {
		row := make([][3]float32, size)
		for x := 0; x < size; x++ {
			off := dst.PixOffset(x, y)
			row[x] = [3]float32{
				float32(dst.Pix[off]) / 255,
				float32(dst.Pix[off+1]) / 255,
				float32(dst.Pix[off+2]) / 255,
			}
		}
		out[y] = row
	}
	return out, nil
}
