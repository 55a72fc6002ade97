// Concrete implementations of quality metrics
package metrics

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"
)

// PSNR implements Peak Signal-to-Noise Ratio metric
type PSNR struct {
	mse *MSE
}

// NewPSNR creates a new PSNR metric
func NewPSNR() *PSNR {
	return &PSNR{mse: NewMSE()}
}

func (p *PSNR) Calculate(original, processed gocv.Mat) (float64, error) {
	mse, err := p.mse.Calculate(original, processed)
	if err != nil {
		return 0, err
	}
	if mse == 0 {
		return math.Inf(1), nil // Perfect match
	}

	maxVal := 255.0
	return 20 * math.Log10(maxVal/math.Sqrt(mse)), nil
}

func (p *PSNR) GetName() string {
	return "PSNR"
}

func (p *PSNR) SameSize() bool {
	return true
}

// MSE implements mean squared error on luma
type MSE struct{}

// NewMSE creates a new MSE metric
func NewMSE() *MSE {
	return &MSE{}
}

func (m *MSE) Calculate(original, processed gocv.Mat) (float64, error) {
	if original.Empty() || processed.Empty() {
		return 0, fmt.Errorf("empty images")
	}

	// Ensure same dimensions
	if original.Rows() != processed.Rows() || original.Cols() != processed.Cols() {
		return 0, fmt.Errorf("image dimensions mismatch")
	}

	gray1 := ensureGrayscale(original)
	defer gray1.Close()
	gray2 := ensureGrayscale(processed)
	defer gray2.Close()

	a, err := gray1.DataPtrUint8()
	if err != nil {
		return 0, err
	}
	b, err := gray2.DataPtrUint8()
	if err != nil {
		return 0, err
	}

	sumSquaredDiff := 0.0
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sumSquaredDiff += diff * diff
	}

	return sumSquaredDiff / float64(len(a)), nil
}

func (m *MSE) GetName() string {
	return "MSE"
}

func (m *MSE) SameSize() bool {
	return true
}

// ContrastRatio compares the luma standard deviation of both images
type ContrastRatio struct{}

// NewContrastRatio creates a new contrast ratio metric
func NewContrastRatio() *ContrastRatio {
	return &ContrastRatio{}
}

func (c *ContrastRatio) Calculate(original, processed gocv.Mat) (float64, error) {
	if original.Empty() || processed.Empty() {
		return 0, fmt.Errorf("empty images")
	}

	origContrast := c.calculateContrast(original)
	if origContrast == 0 {
		return 1.0, nil
	}
	return c.calculateContrast(processed) / origContrast, nil
}

func (c *ContrastRatio) calculateContrast(input gocv.Mat) float64 {
	gray := ensureGrayscale(input)
	defer gray.Close()

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	gocv.MeanStdDev(gray, &mean, &stddev)

	return stddev.GetDoubleAt(0, 0)
}

func (c *ContrastRatio) GetName() string {
	return "Contrast Ratio"
}

func (c *ContrastRatio) SameSize() bool {
	return false
}

// Sharpness implements the variance-of-Laplacian ratio
type Sharpness struct{}

// NewSharpness creates a new sharpness metric
func NewSharpness() *Sharpness {
	return &Sharpness{}
}

func (s *Sharpness) Calculate(original, processed gocv.Mat) (float64, error) {
	if original.Empty() || processed.Empty() {
		return 0, fmt.Errorf("empty images")
	}

	origSharpness := s.calculateSharpness(original)
	procSharpness := s.calculateSharpness(processed)

	if origSharpness == 0 {
		return 1.0, nil
	}

	return procSharpness / origSharpness, nil
}

func (s *Sharpness) calculateSharpness(input gocv.Mat) float64 {
	gray := ensureGrayscale(input)
	defer gray.Close()

	// Apply Laplacian to detect edges
	laplacian := gocv.NewMat()
	defer laplacian.Close()
	gocv.Laplacian(gray, &laplacian, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	gocv.MeanStdDev(laplacian, &mean, &stddev)

	sd := stddev.GetDoubleAt(0, 0)
	return sd * sd
}

func (s *Sharpness) GetName() string {
	return "Sharpness"
}

func (s *Sharpness) SameSize() bool {
	return false
}

// ensureGrayscale returns a new single-channel copy of input
func ensureGrayscale(input gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	switch input.Channels() {
	case 1:
		input.CopyTo(&gray)
	case 4:
		gocv.CvtColor(input, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(input, &gray, gocv.ColorBGRToGray)
	}
	return gray
}
