// Glitch shapes overlay
package algorithms

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

type shapeKind int

const (
	shapeRectangle shapeKind = iota
	shapeCircle
	shapeTriangle
	shapeEllipse
	shapeKinds
)

// GlitchShapes overlays a swirled canvas of random shapes using 8-bit
// wraparound addition
type GlitchShapes struct {
	minShapes int
	maxShapes int
	minSize   int
}

// NewGlitchShapes creates a new glitch shapes filter
func NewGlitchShapes() *GlitchShapes {
	return &GlitchShapes{minShapes: 5, maxShapes: 10, minSize: 20}
}

func (g *GlitchShapes) Apply(input gocv.Mat, rng Rand) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), fmt.Errorf("input image is empty")
	}

	canvas := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0),
		input.Rows(), input.Cols(), gocv.MatTypeCV8UC3)
	defer canvas.Close()

	count := intBetween(rng, g.minShapes, g.maxShapes)
	for i := 0; i < count; i++ {
		g.drawShape(&canvas, rng)
	}

	swirled, err := rotateSwirl(canvas, uniform(rng, -5, 5))
	if err != nil {
		return gocv.NewMat(), err
	}
	defer swirled.Close()

	output := input.Clone()
	dst, err := bytesOf(output)
	if err != nil {
		output.Close()
		return gocv.NewMat(), err
	}
	overlay, err := bytesOf(swirled)
	if err != nil {
		output.Close()
		return gocv.NewMat(), err
	}
	for i := range dst {
		dst[i] += overlay[i]
	}

	return output, nil
}

func (g *GlitchShapes) drawShape(canvas *gocv.Mat, rng Rand) {
	width, height := canvas.Cols(), canvas.Rows()
	maxSize := min(width, height) / 2
	if maxSize < g.minSize {
		maxSize = g.minSize
	}

	kind := shapeKind(rng.IntN(int(shapeKinds)))
	size := intBetween(rng, g.minSize, maxSize)
	x := rng.IntN(max(1, width-size))
	y := rng.IntN(max(1, height-size))
	fill := color.RGBA{
		R: uint8(rng.IntN(255)),
		G: uint8(rng.IntN(255)),
		B: uint8(rng.IntN(255)),
	}

	switch kind {
	case shapeRectangle:
		gocv.Rectangle(canvas, image.Rect(x, y, x+size, y+size), fill, -1)
	case shapeCircle:
		gocv.Circle(canvas, image.Pt(x+size/2, y+size/2), size/2, fill, -1)
	case shapeTriangle:
		points := gocv.NewPointsVectorFromPoints([][]image.Point{{
			image.Pt(x+size/2, y),
			image.Pt(x, y+size),
			image.Pt(x+size, y+size),
		}})
		defer points.Close()
		gocv.FillPoly(canvas, points, fill)
	case shapeEllipse:
		angle := uniform(rng, 0, 180)
		gocv.Ellipse(canvas, image.Pt(x+size/2, y+size/2), image.Pt(size/2, size/4),
			angle, 0, 360, fill, -1)
	}
}

func (g *GlitchShapes) GetName() string {
	return "Glitch Shapes"
}

func (g *GlitchShapes) GetDescription() string {
	return "Random swirled shapes added with 8-bit wraparound"
}
