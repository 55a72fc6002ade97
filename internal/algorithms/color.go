// Color remapping filters
package algorithms

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"
)

// rgbToBGR maps an RGB channel index onto the BGR memory layout
func rgbToBGR(channel int) int {
	return 2 - channel
}

// ColorMask keeps one or two random channels and zeroes the rest
type ColorMask struct{}

// NewColorMask creates a new color mask filter
func NewColorMask() *ColorMask {
	return &ColorMask{}
}

func (c *ColorMask) Apply(input gocv.Mat, rng Rand) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), fmt.Errorf("input image is empty")
	}

	// both draws may pick the same channel
	var keep [3]bool
	keep[rgbToBGR(rng.IntN(3))] = true
	keep[rgbToBGR(rng.IntN(3))] = true

	output := input.Clone()
	data, err := bytesOf(output)
	if err != nil {
		output.Close()
		return gocv.NewMat(), err
	}
	for i := range data {
		if !keep[i%3] {
			data[i] = 0
		}
	}

	return output, nil
}

func (c *ColorMask) GetName() string {
	return "Color Mask"
}

func (c *ColorMask) GetDescription() string {
	return "Binary channel mask keeping one or two color channels"
}

// ColorShift adds a random offset to every channel
type ColorShift struct{}

// NewColorShift creates a new color shift filter
func NewColorShift() *ColorShift {
	return &ColorShift{}
}

func (c *ColorShift) Apply(input gocv.Mat, rng Rand) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), fmt.Errorf("input image is empty")
	}

	var shift [3]float64
	for ch := 0; ch < 3; ch++ {
		shift[rgbToBGR(ch)] = uniform(rng, -1, 1) * 255
	}

	output := input.Clone()
	data, err := bytesOf(output)
	if err != nil {
		output.Close()
		return gocv.NewMat(), err
	}
	for i, v := range data {
		data[i] = clampByte(float64(v) + shift[i%3])
	}

	return output, nil
}

func (c *ColorShift) GetName() string {
	return "Random Color Shift"
}

func (c *ColorShift) GetDescription() string {
	return "Per-channel additive shift drawn from [-1, 1] of full range"
}

// BrokenRainbow wraps rescaled intensities around the unit circle
type BrokenRainbow struct{}

// NewBrokenRainbow creates a new broken rainbow filter
func NewBrokenRainbow() *BrokenRainbow {
	return &BrokenRainbow{}
}

func (b *BrokenRainbow) Apply(input gocv.Mat, rng Rand) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), fmt.Errorf("input image is empty")
	}

	span := uniform(rng, 0.4, 2.5) * math.Pi

	output := input.Clone()
	data, err := bytesOf(output)
	if err != nil {
		output.Close()
		return gocv.NewMat(), err
	}

	lo, hi := uint8(255), uint8(0)
	for _, v := range data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	var table [256]uint8
	if hi > lo {
		for v := int(lo); v <= int(hi); v++ {
			phase := float64(v-int(lo)) / float64(hi-lo) * span
			wrapped := math.Atan2(math.Sin(phase), math.Cos(phase))
			// 8-bit wraparound is what produces the bands
			table[v] = uint8(int64(wrapped * 255))
		}
	}
	for i, v := range data {
		data[i] = table[v]
	}

	return output, nil
}

func (b *BrokenRainbow) GetName() string {
	return "Broken Rainbow"
}

func (b *BrokenRainbow) GetDescription() string {
	return "Intensity rescaled to a random phase range and wrapped into color bands"
}

// Cursed broadcasts one HSV channel to a gray RGB image
type Cursed struct{}

// NewCursed creates a new cursed filter
func NewCursed() *Cursed {
	return &Cursed{}
}

func (c *Cursed) Apply(input gocv.Mat, rng Rand) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), fmt.Errorf("input image is empty")
	}

	// -1 selects the last channel (value), 0 hue, 1 saturation
	pick := rng.IntN(3) - 1
	channel := (pick + 3) % 3

	normalized := toFloat(input)
	defer normalized.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(normalized, &hsv, gocv.ColorBGRToHSV)

	planes := gocv.Split(hsv)
	defer func() {
		for _, p := range planes {
			p.Close()
		}
	}()

	selected := planes[channel]
	if channel == 0 {
		selected.MultiplyFloat(1.0 / 360.0)
	}

	output := gocv.NewMat()
	gocv.Merge([]gocv.Mat{selected, selected, selected}, &output)
	return output, nil
}

func (c *Cursed) GetName() string {
	return "Cursed"
}

func (c *Cursed) GetDescription() string {
	return "A single HSV channel shown as grayscale"
}
