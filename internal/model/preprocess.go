package model

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/x448/float16"
)

// InputSize is the square edge length the classifier was trained on.
const InputSize = 224

// Preprocess resizes img to size×size and lays it out as a 1×size×size×3
// batch in RGB order, scaled to [0,1] and stored as half floats.
func Preprocess(img image.Image, size int) []float16.Float16 {
	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	data := make([]float16.Float16, 0, width*height*3)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			data = append(data,
				float16.Fromfloat32(float32(r)/65535.0),
				float16.Fromfloat32(float32(g)/65535.0),
				float16.Fromfloat32(float32(b)/65535.0),
			)
		}
	}
	return data
}
