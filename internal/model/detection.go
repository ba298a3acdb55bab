package model

import "image"

// PersonClassID is the class id of "person" in the COCO label set used by YOLO models.
const PersonClassID = 0

// Detection is a single raw detector output. It is never persisted.
type Detection struct {
	ClassID    int
	Label      string
	Confidence float64
	Box        image.Rectangle
}

// IsPerson reports whether the detection belongs to the person class.
func (d Detection) IsPerson() bool {
	return d.ClassID == PersonClassID
}
