package media

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"peoplecounter/internal/model"
)

// Annotator draws detection boxes over an image.
type Annotator struct {
	boxColor  color.RGBA
	thickness int
}

// NewAnnotator creates an annotator drawing green boxes.
func NewAnnotator() *Annotator {
	return &Annotator{
		boxColor:  color.RGBA{R: 0, G: 255, B: 0, A: 0},
		thickness: 2,
	}
}

// Annotate renders a copy of img with a labelled box per detection and returns it as JPEG.
func (a *Annotator) Annotate(img image.Image, detections []model.Detection) ([]byte, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()

	for _, det := range detections {
		if err := gocv.Rectangle(&mat, det.Box, a.boxColor, a.thickness); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %w", err)
		}

		label := fmt.Sprintf("%s %.2f", det.Label, det.Confidence)
		pt := image.Pt(det.Box.Min.X, max(det.Box.Min.Y-5, 12))
		if err := gocv.PutText(&mat, label, pt, gocv.FontHersheySimplex, 0.5, a.boxColor, 1); err != nil {
			return nil, fmt.Errorf("failed to draw text: %w", err)
		}
	}

	return encodeJPEG(mat)
}
