package signals

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Image is a frame prepared for the detectors: a BGR matrix, its grayscale
// version and the raw grayscale bytes. It must be closed after use.
type Image struct {
	Width  int
	Height int

	bgr  gocv.Mat
	gray gocv.Mat
	// row-major grayscale, len Width*Height
	pixels []byte
}

// NewImage converts a decoded frame into an Image.
func NewImage(img image.Image) (*Image, error) {
	bgr, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	if bgr.Empty() {
		bgr.Close()
		return nil, fmt.Errorf("convert frame: empty image")
	}

	gray := gocv.NewMat()
	gocv.CvtColor(bgr, &gray, gocv.ColorBGRToGray)

	return &Image{
		Width:  bgr.Cols(),
		Height: bgr.Rows(),
		bgr:    bgr,
		gray:   gray,
		pixels: gray.ToBytes(),
	}, nil
}

// Gray returns the grayscale value at (x, y).
func (im *Image) Gray(x, y int) byte {
	return im.pixels[y*im.Width+x]
}

// Close releases the native matrices.
func (im *Image) Close() error {
	if err := im.bgr.Close(); err != nil {
		return err
	}
	return im.gray.Close()
}
