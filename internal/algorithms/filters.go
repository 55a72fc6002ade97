// Tone and detail filters
package algorithms

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"
)

// Gamma implements randomized gamma correction
type Gamma struct{}

// NewGamma creates a new gamma filter
func NewGamma() *Gamma {
	return &Gamma{}
}

func (g *Gamma) Apply(input gocv.Mat, rng Rand) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), fmt.Errorf("input image is empty")
	}

	gamma := uniform(rng, 0.1, 5)

	var table [256]uint8
	for i := range table {
		table[i] = uint8(math.Pow(float64(i)/255.0, gamma) * 255.0)
	}

	output := input.Clone()
	data, err := bytesOf(output)
	if err != nil {
		output.Close()
		return gocv.NewMat(), err
	}
	for i, v := range data {
		data[i] = table[v]
	}

	return output, nil
}

func (g *Gamma) GetName() string {
	return "Gamma"
}

func (g *Gamma) GetDescription() string {
	return "Gamma/contrast adjustment with gamma drawn from [0.1, 5]"
}

// Saturation implements HSV saturation scaling
type Saturation struct{}

// NewSaturation creates a new saturation filter
func NewSaturation() *Saturation {
	return &Saturation{}
}

func (s *Saturation) Apply(input gocv.Mat, rng Rand) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), fmt.Errorf("input image is empty")
	}

	factor := float32(uniform(rng, 0.1, 3))

	normalized := toFloat(input)
	defer normalized.Close()

	// float HSV: H in [0,360], S and V in [0,1]
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(normalized, &hsv, gocv.ColorBGRToHSV)

	data, err := floatsOf(hsv)
	if err != nil {
		return gocv.NewMat(), err
	}
	for i := 1; i < len(data); i += 3 {
		data[i] = clamp01(data[i] * factor)
	}

	output := gocv.NewMat()
	gocv.CvtColor(hsv, &output, gocv.ColorHSVToBGR)
	return output, nil
}

func (s *Saturation) GetName() string {
	return "Saturation"
}

func (s *Saturation) GetDescription() string {
	return "Saturation scaled by a factor from [0.1, 3] in HSV space"
}

// boundaryMode pairs a padding mode name with its OpenCV border
type boundaryMode struct {
	name   string
	border gocv.BorderType
}

var blurModes = []boundaryMode{
	{"reflect", gocv.BorderReflect},
	{"constant", gocv.BorderConstant},
	{"nearest", gocv.BorderReplicate},
	{"mirror", gocv.BorderReflect101},
	{"wrap", gocv.BorderWrap},
}

// Blur implements a Gaussian blur with randomized boundary handling
type Blur struct {
	sigma float64
}

// NewBlur creates a new blur filter
func NewBlur() *Blur {
	return &Blur{sigma: 1.0}
}

func (b *Blur) Apply(input gocv.Mat, rng Rand) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), fmt.Errorf("input image is empty")
	}

	mode := blurModes[rng.IntN(len(blurModes))]
	cval := clampByte(uniform(rng, -0.1, 1) * 255)
	truncate := uniform(rng, 0, 4)

	radius := int(truncate*b.sigma + 0.5)
	if radius == 0 {
		return input.Clone(), nil
	}

	// GaussianBlur has no wrap mode and no constant value, so pad first
	padded := gocv.NewMat()
	defer padded.Close()
	gocv.CopyMakeBorder(input, &padded, radius, radius, radius, radius, mode.border,
		color.RGBA{R: cval, G: cval, B: cval, A: 0})

	blurred := gocv.NewMat()
	defer blurred.Close()
	ksize := 2*radius + 1
	gocv.GaussianBlur(padded, &blurred, image.Pt(ksize, ksize), b.sigma, b.sigma, gocv.BorderReplicate)

	region := blurred.Region(image.Rect(radius, radius, radius+input.Cols(), radius+input.Rows()))
	defer region.Close()
	return region.Clone(), nil
}

func (b *Blur) GetName() string {
	return "Blur"
}

func (b *Blur) GetDescription() string {
	return "Gaussian blur with random boundary mode, padding value and truncation"
}

// Sharpen implements an unsharp mask with a low-biased radius
type Sharpen struct {
	maxRadius float64
}

// NewSharpen creates a new sharpen filter
func NewSharpen() *Sharpen {
	return &Sharpen{maxRadius: 19.0}
}

func (s *Sharpen) Apply(input gocv.Mat, rng Rand) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), fmt.Errorf("input image is empty")
	}

	radius := lowBiased(rng, s.maxRadius)
	amount := uniform(rng, -10, 10)

	// below this sigma the blur is the identity and so is the mask
	if radius < 0.05 {
		return input.Clone(), nil
	}

	normalized := toFloat(input)
	defer normalized.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(normalized, &blurred, image.Pt(0, 0), radius, radius, gocv.BorderReplicate)

	// result = image + (image - blurred) * amount; clipped on conversion
	output := gocv.NewMat()
	gocv.AddWeighted(normalized, 1+amount, blurred, -amount, 0, &output)
	return output, nil
}

func (s *Sharpen) GetName() string {
	return "Sharpen"
}

func (s *Sharpen) GetDescription() string {
	return "Unsharp mask with low-biased radius and amount from [-10, 10]"
}
