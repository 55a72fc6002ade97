// Rotated caption near the detected face
package algorithms

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"gocv.io/x/gocv"
)

// Hershey fonts only cover ASCII
var asciiFold = strings.NewReplacer(
	"ä", "ae", "ö", "oe", "ü", "ue",
	"Ä", "Ae", "Ö", "Oe", "Ü", "Ue",
	"ß", "ss", "€", "EUR",
)

// Caption draws a random phrase below the focal point
type Caption struct {
	locator *FaceLocator
	phrases []string
}

// NewCaption creates a caption filter drawing from phrases
func NewCaption(locator *FaceLocator, phrases []string) *Caption {
	if len(phrases) == 0 {
		phrases = DefaultPhrases
	}
	folded := make([]string, len(phrases))
	for i, p := range phrases {
		folded[i] = asciiFold.Replace(p)
	}
	return &Caption{locator: locator, phrases: folded}
}

func (c *Caption) Apply(input gocv.Mat, rng Rand) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), fmt.Errorf("input image is empty")
	}

	text := c.phrases[rng.IntN(len(c.phrases))]
	fontSize := uniform(rng, 20, 32)
	ink := color.RGBA{
		R: uint8(rng.Float64() * 255),
		G: uint8(rng.Float64() * 255),
		B: uint8(rng.Float64() * 255),
	}
	angle := uniform(rng, -45, 45)

	focus := c.locator.Locate(input)
	anchor := clampPoint(image.Pt(focus.X, focus.Y+input.Rows()/10), input.Cols(), input.Rows())

	scale := fontSize / 12
	thickness := max(1, int(scale+0.5))
	size := gocv.GetTextSize(text, gocv.FontHersheyDuplex, scale, thickness)
	origin := image.Pt(anchor.X-size.X/2, anchor.Y+size.Y/2)

	layer := gocv.NewMatWithSize(input.Rows(), input.Cols(), gocv.MatTypeCV8UC3)
	defer layer.Close()
	mask := gocv.NewMatWithSize(input.Rows(), input.Cols(), gocv.MatTypeCV8UC1)
	defer mask.Close()
	layer.SetTo(gocv.NewScalar(0, 0, 0, 0))
	mask.SetTo(gocv.NewScalar(0, 0, 0, 0))

	gocv.PutTextWithParams(&layer, text, origin, gocv.FontHersheyDuplex, scale, ink, thickness, gocv.LineAA, false)
	gocv.PutTextWithParams(&mask, text, origin, gocv.FontHersheyDuplex, scale, color.RGBA{R: 255, G: 255, B: 255}, thickness, gocv.LineAA, false)

	rotation := gocv.GetRotationMatrix2D(anchor, angle, 1.0)
	defer rotation.Close()

	rotatedLayer := gocv.NewMat()
	defer rotatedLayer.Close()
	rotatedMask := gocv.NewMat()
	defer rotatedMask.Close()
	bounds := image.Pt(input.Cols(), input.Rows())
	gocv.WarpAffineWithParams(layer, &rotatedLayer, rotation, bounds, gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})
	gocv.WarpAffineWithParams(mask, &rotatedMask, rotation, bounds, gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})

	output := input.Clone()
	rotatedLayer.CopyToWithMask(&output, rotatedMask)
	return output, nil
}

func (c *Caption) GetName() string {
	return "Caption"
}

func (c *Caption) GetDescription() string {
	return "Randomly colored, sized and rotated phrase placed below the face"
}
