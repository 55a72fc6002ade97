// Mat conversion helpers
package algorithms

import (
	"fmt"

	"gocv.io/x/gocv"

	errs "photobooth/internal/errors"
)

const depthMask = 7

// EnsureBGR8 returns a new 8-bit, 3-channel copy of input. Float images are
// taken to be in [0,1] and scaled to [0,255] with saturation.
func EnsureBGR8(input gocv.Mat) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), errs.ErrEmptyImage
	}

	depthed := gocv.NewMat()
	switch gocv.MatType(int(input.Type()) & depthMask) {
	case gocv.MatTypeCV8U:
		input.CopyTo(&depthed)
	case gocv.MatTypeCV32F, gocv.MatTypeCV64F:
		input.ConvertToWithParams(&depthed, gocv.MatTypeCV8U, 255, 0)
	case gocv.MatTypeCV16U:
		input.ConvertToWithParams(&depthed, gocv.MatTypeCV8U, 1.0/257.0, 0)
	default:
		input.ConvertTo(&depthed, gocv.MatTypeCV8U)
	}

	switch depthed.Channels() {
	case 3:
		return depthed, nil
	case 1:
		defer depthed.Close()
		output := gocv.NewMat()
		gocv.CvtColor(depthed, &output, gocv.ColorGrayToBGR)
		return output, nil
	case 4:
		defer depthed.Close()
		output := gocv.NewMat()
		gocv.CvtColor(depthed, &output, gocv.ColorBGRAToBGR)
		return output, nil
	default:
		channels := depthed.Channels()
		depthed.Close()
		return gocv.NewMat(), fmt.Errorf("unsupported number of channels: %d", channels)
	}
}

// toFloat returns input scaled to CV_32F in [0,1]
func toFloat(input gocv.Mat) gocv.Mat {
	output := gocv.NewMat()
	input.ConvertToWithParams(&output, gocv.MatTypeCV32F, 1.0/255.0, 0)
	return output
}

// bytesOf returns the pixel buffer of a continuous 8-bit Mat
func bytesOf(mat gocv.Mat) ([]uint8, error) {
	data, err := mat.DataPtrUint8()
	if err != nil {
		return nil, fmt.Errorf("pixel access failed: %w", err)
	}
	return data, nil
}

// floatsOf returns the pixel buffer of a continuous CV_32F Mat
func floatsOf(mat gocv.Mat) ([]float32, error) {
	data, err := mat.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("pixel access failed: %w", err)
	}
	return data, nil
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
