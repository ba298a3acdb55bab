// Package media decodes uploads, samples video frames and renders annotated images with OpenCV.
package media

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"peoplecounter/internal/model"
)

// Decoder turns files on disk into pixel grids.
type Decoder struct{}

// NewDecoder creates a new OpenCV backed decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// DecodeImage reads an image file.
func (d *Decoder) DecodeImage(path string) (image.Image, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("decode %s: %w", path, model.ErrUnreadableMedia)
	}
	return matToImage(mat)
}

// ExtractFirstFrame opens a video container and returns its first decodable frame.
// The container is always released before returning.
func (d *Decoder) ExtractFirstFrame(path string) (image.Image, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %v: %w", path, err, model.ErrUnreadableMedia)
	}
	defer capture.Close()

	frame := gocv.NewMat()
	defer frame.Close()

	if ok := capture.Read(&frame); !ok || frame.Empty() {
		return nil, fmt.Errorf("read first frame of %s: %w", path, model.ErrUnreadableMedia)
	}
	return matToImage(frame)
}

// EncodeJPEG encodes a pixel grid as JPEG.
func (d *Decoder) EncodeJPEG(img image.Image) ([]byte, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()

	return encodeJPEG(mat)
}

func matToImage(mat gocv.Mat) (image.Image, error) {
	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %v: %w", err, model.ErrUnreadableMedia)
	}
	return img, nil
}

func encodeJPEG(mat gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
