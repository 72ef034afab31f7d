package detector

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/ayusman/palmtrace/internal/capture"
)

// Skin thresholds in YCrCb. A pixel is skin when Y > 80, 135 < Cr < 180 and
// 85 < Cb < 135; the integer bounds below are the inclusive form.
const (
	skinYMin  = 81
	skinCrMin = 136
	skinCrMax = 179
	skinCbMin = 86
	skinCbMax = 134
)

var (
	skinLower = gocv.NewScalar(skinYMin, skinCrMin, skinCbMin, 0)
	skinUpper = gocv.NewScalar(255, skinCrMax, skinCbMax, 0)
)

// SkinMask returns a single-channel mask, the size of the frame, with 255 on
// skin-colored pixels and 0 elsewhere. The caller owns the returned Mat.
func SkinMask(frame *capture.Frame) (gocv.Mat, error) {
	if frame == nil {
		return gocv.NewMat(), fmt.Errorf("%w: nil frame", capture.ErrDimensionMismatch)
	}
	if err := frame.Validate(); err != nil {
		return gocv.NewMat(), err
	}

	ycrcb := gocv.NewMat()
	defer ycrcb.Close()

	var err error
	switch frame.Order {
	case capture.OrderRGB:
		err = gocv.CvtColor(frame.Mat, &ycrcb, gocv.ColorRGBToYCrCb)
	case capture.OrderBGR:
		err = gocv.CvtColor(frame.Mat, &ycrcb, gocv.ColorBGRToYCrCb)
	default:
		bgr := frame.BGR()
		err = gocv.CvtColor(bgr, &ycrcb, gocv.ColorBGRToYCrCb)
		bgr.Close()
	}
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("convert %s frame to YCrCb: %w", frame.Order, err)
	}

	return skinMaskYCrCb(ycrcb)
}

// skinMaskYCrCb thresholds a 3-channel YCrCb image against the skin bounds.
func skinMaskYCrCb(ycrcb gocv.Mat) (gocv.Mat, error) {
	mask := gocv.NewMat()
	if err := gocv.InRangeWithScalar(ycrcb, skinLower, skinUpper, &mask); err != nil {
		mask.Close()
		return gocv.NewMat(), fmt.Errorf("threshold skin range: %w", err)
	}
	return mask, nil
}
