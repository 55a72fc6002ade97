// Otsu binarization with a randomized histogram resolution
package algorithms

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Threshold implements Otsu thresholding on luma
type Threshold struct{}

// NewThreshold creates a new threshold filter
func NewThreshold() *Threshold {
	return &Threshold{}
}

func (t *Threshold) Apply(input gocv.Mat, rng Rand) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), fmt.Errorf("input image is empty")
	}

	nbins := intBetween(rng, 2, 20)

	output := input.Clone()
	data, err := bytesOf(output)
	if err != nil {
		output.Close()
		return gocv.NewMat(), err
	}

	gray := t.luma(data)
	threshold := t.calculateOtsuThreshold(gray, nbins)

	for i, v := range gray {
		value := uint8(0)
		if v > threshold {
			value = 255
		}
		data[3*i], data[3*i+1], data[3*i+2] = value, value, value
	}

	return output, nil
}

// luma converts interleaved BGR bytes to gray in [0,1]
func (t *Threshold) luma(bgr []uint8) []float64 {
	gray := make([]float64, len(bgr)/3)
	for i := range gray {
		b, g, r := float64(bgr[3*i]), float64(bgr[3*i+1]), float64(bgr[3*i+2])
		gray[i] = (0.2125*r + 0.7154*g + 0.0721*b) / 255.0
	}
	return gray
}

// calculateOtsuThreshold returns the center of the bin that maximizes the
// between-class variance of an nbins histogram spanning the value range.
func (t *Threshold) calculateOtsuThreshold(values []float64, nbins int) float64 {
	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		return lo
	}

	width := (hi - lo) / float64(nbins)
	hist := make([]float64, nbins)
	for _, v := range values {
		bin := int((v - lo) / width)
		if bin >= nbins {
			bin = nbins - 1
		}
		hist[bin]++
	}

	centers := make([]float64, nbins)
	for i := range centers {
		centers[i] = lo + width*(float64(i)+0.5)
	}

	// Normalize histogram
	total := float64(len(values))
	for i := range hist {
		hist[i] /= total
	}

	sum := 0.0
	for i := 0; i < nbins; i++ {
		sum += centers[i] * hist[i]
	}

	sumB := 0.0
	wB := 0.0
	maximum := 0.0
	level := 0

	for i := 0; i < nbins; i++ {
		wB += hist[i]
		if wB == 0 {
			continue
		}

		wF := 1.0 - wB
		if wF <= 0 {
			break
		}

		sumB += centers[i] * hist[i]
		mB := sumB / wB
		mF := (sum - sumB) / wF

		// Calculate between-class variance
		between := wB * wF * (mB - mF) * (mB - mF)

		if between > maximum {
			level = i
			maximum = between
		}
	}

	return centers[level]
}

func (t *Threshold) GetName() string {
	return "Threshold"
}

func (t *Threshold) GetDescription() string {
	return "Otsu binarization of luma with 2 to 20 histogram bins"
}
