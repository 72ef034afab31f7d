// Package testdata renders synthetic frames for detector and pipeline tests.
package testdata

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Frame size used by the synthetic fixtures.
const (
	Width  = 640
	Height = 480
)

// SkinColor is a light skin tone that falls inside the YCrCb skin range
// (Y≈184, Cr≈157, Cb≈103).
var SkinColor = color.RGBA{R: 224, G: 172, B: 140, A: 255}

// Hand geometry, in pixels.
const (
	palmLeft    = 220
	palmTop     = 260
	palmBottom  = 420
	fingerWidth = 24
	fingerGap   = 20
	fingerTop   = 110
)

// ValleyRegion contains the valleys between the fingers of a five-finger
// SyntheticHand; a contour-based detection should be centered inside it.
var ValleyRegion = image.Rect(240, 240, 400, 280)

// BlankFrame returns a black BGR frame.
func BlankFrame() *gocv.Mat {
	mat := gocv.NewMatWithSize(Height, Width, gocv.MatTypeCV8UC3)
	mat.SetTo(gocv.NewScalar(0, 0, 0, 0))
	return &mat
}

// SyntheticHand returns a BGR frame with a skin-colored palm and the given
// number of raised fingers on a black background. Fingertips follow an arc so
// every gap between neighbouring fingers forms a separate convexity defect.
func SyntheticHand(fingers int) *gocv.Mat {
	mat := BlankFrame()

	palmWidth := fingerWidth
	if fingers > 0 {
		palmWidth = fingers*fingerWidth + (fingers-1)*fingerGap
	}
	gocv.Rectangle(mat, image.Rect(palmLeft, palmTop, palmLeft+palmWidth, palmBottom+1), SkinColor, -1)

	for i := 0; i < fingers; i++ {
		x := palmLeft + i*(fingerWidth+fingerGap)
		off := 2*i - fingers + 1
		top := fingerTop + 2*off*off
		gocv.Rectangle(mat, image.Rect(x, top, x+fingerWidth, palmTop+1), SkinColor, -1)
	}

	return mat
}

// HandSequence renders one SyntheticHand per entry, using the entry as the
// finger count. A negative entry renders a blank frame.
func HandSequence(fingers ...int) []*gocv.Mat {
	frames := make([]*gocv.Mat, 0, len(fingers))
	for _, n := range fingers {
		if n < 0 {
			frames = append(frames, BlankFrame())
			continue
		}
		frames = append(frames, SyntheticHand(n))
	}
	return frames
}

// CloseAll releases every frame in frames.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		if f != nil {
			f.Close()
		}
	}
}
