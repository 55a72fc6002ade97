// Geometric warps expressed as inverse coordinate maps
package algorithms

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"
)

// inverseMap returns the source coordinate sampled for output pixel (x, y)
type inverseMap func(x, y float64) (float64, float64)

// remap samples src through fn into a width x height output
func remap(src gocv.Mat, width, height int, fn inverseMap, border gocv.BorderType, fill color.RGBA) (gocv.Mat, error) {
	mapX := gocv.NewMatWithSize(height, width, gocv.MatTypeCV32FC1)
	defer mapX.Close()
	mapY := gocv.NewMatWithSize(height, width, gocv.MatTypeCV32FC1)
	defer mapY.Close()

	xs, err := floatsOf(mapX)
	if err != nil {
		return gocv.NewMat(), err
	}
	ys, err := floatsOf(mapY)
	if err != nil {
		return gocv.NewMat(), err
	}

	for y := 0; y < height; y++ {
		row := y * width
		for x := 0; x < width; x++ {
			sx, sy := fn(float64(x), float64(y))
			xs[row+x] = float32(sx)
			ys[row+x] = float32(sy)
		}
	}

	output := gocv.NewMat()
	gocv.Remap(src, &output, &mapX, &mapY, gocv.InterpolationLinear, border, fill)
	return output, nil
}

// swirlMap reproduces the classic swirl: rotation decays exponentially
// with the distance from center.
func swirlMap(center image.Point, strength, radius, rotation float64) inverseMap {
	cx, cy := float64(center.X), float64(center.Y)
	decay := radius / 5 * math.Ln2
	return func(x, y float64) (float64, float64) {
		dx, dy := x-cx, y-cy
		rho := math.Hypot(dx, dy)
		theta := rotation + strength*math.Exp(-rho/decay) + math.Atan2(dy, dx)
		return cx + rho*math.Cos(theta), cy + rho*math.Sin(theta)
	}
}

func imageCenter(mat gocv.Mat) image.Point {
	return image.Pt(mat.Cols()/2, mat.Rows()/2)
}

var black = color.RGBA{}

// Swirl implements a face-centered swirl
type Swirl struct {
	locator *FaceLocator
}

// NewSwirl creates a swirl centered by the given face locator
func NewSwirl(locator *FaceLocator) *Swirl {
	return &Swirl{locator: locator}
}

func (s *Swirl) Apply(input gocv.Mat, rng Rand) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), fmt.Errorf("input image is empty")
	}

	center := s.locator.Locate(input)
	strength := uniform(rng, -5, 5)
	radius := uniform(rng, 1400, 1500)

	return remap(input, input.Cols(), input.Rows(),
		swirlMap(center, strength, radius, 0), gocv.BorderReflect101, black)
}

func (s *Swirl) GetName() string {
	return "Swirl"
}

func (s *Swirl) GetDescription() string {
	return "Strong wide swirl centered on the first detected face"
}

// Rotation implements a small swirl with a large random rotation
type Rotation struct{}

// NewRotation creates a new rotation swirl filter
func NewRotation() *Rotation {
	return &Rotation{}
}

func (r *Rotation) Apply(input gocv.Mat, rng Rand) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), fmt.Errorf("input image is empty")
	}

	return rotateSwirl(input, uniform(rng, -5, 5))
}

func rotateSwirl(input gocv.Mat, rotation float64) (gocv.Mat, error) {
	return remap(input, input.Cols(), input.Rows(),
		swirlMap(imageCenter(input), 1, 100, rotation), gocv.BorderReflect101, black)
}

func (r *Rotation) GetName() string {
	return "Rotation Swirl"
}

func (r *Rotation) GetDescription() string {
	return "Image rotated by up to 5 radians with a small central swirl"
}

// Affine implements a random shear and rotation
type Affine struct{}

// NewAffine creates a new affine filter
func NewAffine() *Affine {
	return &Affine{}
}

func (a *Affine) Apply(input gocv.Mat, rng Rand) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), fmt.Errorf("input image is empty")
	}

	rotation := uniform(rng, -0.1, 0.1)
	shear := uniform(rng, -0.3, 0.3)

	a00, a01 := math.Cos(rotation), -math.Sin(rotation+shear)
	a10, a11 := math.Sin(rotation), math.Cos(rotation+shear)

	return remap(input, input.Cols(), input.Rows(), func(x, y float64) (float64, float64) {
		return a00*x + a01*y, a10*x + a11*y
	}, gocv.BorderConstant, black)
}

func (a *Affine) GetName() string {
	return "Affine"
}

func (a *Affine) GetDescription() string {
	return "Random shear and slight rotation about the origin"
}

// Radial implements a polynomial lens distortion
type Radial struct{}

// NewRadial creates a new radial distortion filter
func NewRadial() *Radial {
	return &Radial{}
}

func (r *Radial) Apply(input gocv.Mat, rng Rand) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), fmt.Errorf("input image is empty")
	}

	k1 := uniform(rng, 0.7, 1.0)
	k2 := uniform(rng, 0.2, 0.4)

	cx := float64(input.Cols()-1) / 2
	cy := float64(input.Rows()-1) / 2
	if cx == 0 || cy == 0 {
		return gocv.NewMat(), fmt.Errorf("image too small for radial distortion: %dx%d", input.Cols(), input.Rows())
	}

	gray := color.RGBA{R: 128, G: 128, B: 128, A: 0}
	return remap(input, input.Cols(), input.Rows(), func(x, y float64) (float64, float64) {
		nx, ny := (x-cx)/cx, (y-cy)/cy
		radius := math.Hypot(nx, ny)
		model := (1 + k1*radius + k2*radius*radius) * k2
		return nx*model*cx + cx, ny*model*cy + cy
	}, gocv.BorderConstant, gray)
}

func (r *Radial) GetName() string {
	return "Radial"
}

func (r *Radial) GetDescription() string {
	return "Lens-style radial distortion with k1 in [0.7, 1.0] and k2 in [0.2, 0.4]"
}
