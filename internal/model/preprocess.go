package model

import (
	"image"

	"github.com/nfnt/resize"
)

// Preprocess converts an image into the planar RGB layout the model expects:
// three size×size channels with values in [0, 1].
func Preprocess(img image.Image, size int, centerCrop bool) []float32 {
	if centerCrop {
		img = cropSquare(img)
	}

	resized := resize.Resize(uint(size), uint(size), img, resize.Lanczos3)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height

	inputData := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			pixelIndex := y*width + x
			inputData[pixelIndex] = float32(r) / 65535.0
			inputData[plane+pixelIndex] = float32(g) / 65535.0
			inputData[2*plane+pixelIndex] = float32(b) / 65535.0
		}
	}

	return inputData
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// cropSquare keeps the centred square of img. Images that cannot be sliced
// are returned unchanged.
func cropSquare(img image.Image) image.Image {
	b := img.Bounds()
	side := min(b.Dx(), b.Dy())
	if b.Dx() == b.Dy() {
		return img
	}

	si, ok := img.(subImager)
	if !ok {
		return img
	}

	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	return si.SubImage(image.Rect(x0, y0, x0+side, y0+side))
}
