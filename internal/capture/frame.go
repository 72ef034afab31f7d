package capture

import (
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// ErrDimensionMismatch is returned when a frame's pixel buffer disagrees with
// its declared size or channel order.
var ErrDimensionMismatch = errors.New("frame dimensions do not match pixel buffer")

// ChannelOrder describes the byte order of a frame's color channels.
type ChannelOrder int

const (
	// OrderBGR is OpenCV's native 3-channel order and the default for captured frames.
	OrderBGR ChannelOrder = iota
	OrderRGB
	OrderBGRA
	OrderRGBA
)

// Channels returns the number of channels for the order.
func (o ChannelOrder) Channels() int {
	switch o {
	case OrderBGRA, OrderRGBA:
		return 4
	default:
		return 3
	}
}

// SwapRB reports whether red and blue must be swapped to obtain RGB input.
func (o ChannelOrder) SwapRB() bool {
	return o == OrderBGR || o == OrderBGRA
}

func (o ChannelOrder) String() string {
	switch o {
	case OrderBGR:
		return "bgr"
	case OrderRGB:
		return "rgb"
	case OrderBGRA:
		return "bgra"
	case OrderRGBA:
		return "rgba"
	default:
		return fmt.Sprintf("order(%d)", int(o))
	}
}

// Frame is one captured video frame. The Mat is owned by the frame; the
// consumer that receives it from a Camera is responsible for calling Close.
type Frame struct {
	Mat       gocv.Mat
	Width     int
	Height    int
	Order     ChannelOrder
	Seq       uint64
	Timestamp time.Time
}

// NewFrame wraps a Mat, taking its size from the Mat itself.
func NewFrame(mat gocv.Mat, order ChannelOrder) *Frame {
	return &Frame{
		Mat:       mat,
		Width:     mat.Cols(),
		Height:    mat.Rows(),
		Order:     order,
		Timestamp: time.Now(),
	}
}

// Empty reports whether the frame carries no pixels.
func (f *Frame) Empty() bool {
	return f == nil || f.Mat.Empty() || f.Width <= 0 || f.Height <= 0
}

// Validate checks that the pixel buffer agrees with the declared size and order.
func (f *Frame) Validate() error {
	if f.Empty() {
		return fmt.Errorf("%w: empty frame", ErrDimensionMismatch)
	}
	if f.Mat.Cols() != f.Width || f.Mat.Rows() != f.Height {
		return fmt.Errorf("%w: declared %dx%d, buffer %dx%d",
			ErrDimensionMismatch, f.Width, f.Height, f.Mat.Cols(), f.Mat.Rows())
	}
	if f.Mat.Channels() != f.Order.Channels() {
		return fmt.Errorf("%w: order %s wants %d channels, buffer has %d",
			ErrDimensionMismatch, f.Order, f.Order.Channels(), f.Mat.Channels())
	}
	return nil
}

// BGR returns a 3-channel BGR copy of the pixels. The caller owns the result.
func (f *Frame) BGR() gocv.Mat {
	out := gocv.NewMat()
	switch f.Order {
	case OrderRGB:
		gocv.CvtColor(f.Mat, &out, gocv.ColorRGBToBGR)
	case OrderBGRA:
		gocv.CvtColor(f.Mat, &out, gocv.ColorBGRAToBGR)
	case OrderRGBA:
		gocv.CvtColor(f.Mat, &out, gocv.ColorRGBAToBGR)
	default:
		f.Mat.CopyTo(&out)
	}
	return out
}

// Close releases the frame's pixel buffer.
func (f *Frame) Close() error {
	if f == nil {
		return nil
	}
	return f.Mat.Close()
}
