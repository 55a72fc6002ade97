// Morphological "schimmer" filters
package algorithms

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Schimmer implements dilation or erosion over a constant-padded image
type Schimmer struct {
	name   string
	dilate bool
	padLo  float64
	padHi  float64
}

// NewGreenSchimmer creates the dilating schimmer
func NewGreenSchimmer() *Schimmer {
	return &Schimmer{name: "Green Schimmer", dilate: true, padLo: 0, padHi: 250}
}

// NewPinkSchimmer creates the eroding schimmer
func NewPinkSchimmer() *Schimmer {
	return &Schimmer{name: "Pink Schimmer", dilate: false, padLo: -250, padHi: 250}
}

func (s *Schimmer) Apply(input gocv.Mat, rng Rand) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), fmt.Errorf("input image is empty")
	}

	pad := clampByte(uniform(rng, s.padLo, s.padHi))

	padded := gocv.NewMat()
	defer padded.Close()
	gocv.CopyMakeBorder(input, &padded, 1, 1, 1, 1, gocv.BorderConstant,
		color.RGBA{R: pad, G: pad, B: pad, A: 0})

	// Create kernel
	kernel := gocv.GetStructuringElement(gocv.MorphCross, image.Pt(3, 3))
	defer kernel.Close()

	morphed := gocv.NewMat()
	defer morphed.Close()
	if s.dilate {
		gocv.Dilate(padded, &morphed, kernel)
	} else {
		gocv.Erode(padded, &morphed, kernel)
	}

	region := morphed.Region(image.Rect(1, 1, 1+input.Cols(), 1+input.Rows()))
	defer region.Close()
	return region.Clone(), nil
}

func (s *Schimmer) GetName() string {
	return s.name
}

func (s *Schimmer) GetDescription() string {
	if s.dilate {
		return "Morphological dilation with random constant padding"
	}
	return "Morphological erosion with random constant padding"
}
