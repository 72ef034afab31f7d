package detector

import (
	"image"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// ContourOptions tunes FindFeaturePoint.
type ContourOptions struct {
	// MinDefects and MaxDefects bound the number of finger valleys accepted.
	MinDefects int
	MaxDefects int

	// MinArea is the area a contour must exceed to be considered a hand.
	MinArea float64

	// MaxAngle is the widest valley angle, in degrees.
	MaxAngle float64

	// DepthDivisor sets the minimum valley depth as mask height / DepthDivisor.
	DepthDivisor float64

	// KernelSize is the side of the elliptical closing kernel.
	KernelSize int
}

// DefaultContourOptions returns the thresholds tuned for an open hand at
// webcam distance.
func DefaultContourOptions() ContourOptions {
	return ContourOptions{
		MinDefects:   1,
		MaxDefects:   4,
		MinArea:      2000,
		MaxAngle:     80,
		DepthDivisor: 8,
		KernelSize:   3,
	}
}

// FindFeaturePoint locates the palm center in a binary skin mask from the
// valleys between extended fingers. The mask itself is left untouched.
func FindFeaturePoint(mask gocv.Mat, opts ContourOptions) (image.Point, bool) {
	if mask.Empty() || opts.DepthDivisor <= 0 {
		return image.Point{}, false
	}

	size := opts.KernelSize
	if size <= 0 {
		size = 3
	}
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(size, size))
	defer kernel.Close()

	closed := gocv.NewMat()
	defer closed.Close()
	if err := gocv.Dilate(mask, &closed, kernel); err != nil {
		log.WithError(err).Debug("Skin mask dilate failed")
		return image.Point{}, false
	}
	if err := gocv.Erode(closed, &closed, kernel); err != nil {
		log.WithError(err).Debug("Skin mask erode failed")
		return image.Point{}, false
	}

	contours := gocv.FindContours(closed, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	idx := largestContour(contours, opts.MinArea)
	if idx < 0 {
		return image.Point{}, false
	}

	defects := contourDefects(contours.At(idx))
	valleys := valleyPoints(defects, closed.Rows(), opts)
	return featurePoint(valleys, opts)
}

// largestContour returns the index of the largest contour whose area exceeds
// minArea, or -1.
func largestContour(contours gocv.PointsVector, minArea float64) int {
	idx := -1
	best := minArea
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area > best {
			best = area
			idx = i
		}
	}
	return idx
}

// contourDefects computes the convexity defects of a contour.
func contourDefects(contour gocv.PointVector) []Defect {
	if contour.Size() < 3 {
		return nil
	}

	hull := gocv.NewMat()
	defer hull.Close()
	if err := gocv.ConvexHull(contour, &hull, false, false); err != nil {
		log.WithError(err).Debug("Convex hull failed")
		return nil
	}
	if hull.Empty() || hull.Rows() < 3 {
		return nil
	}

	raw := gocv.NewMat()
	defer raw.Close()
	if err := gocv.ConvexityDefects(contour, hull, &raw); err != nil {
		// Self-intersecting contours yield non-monotonous hull indices
		log.WithError(err).Debug("Convexity defects failed")
		return nil
	}
	if raw.Empty() {
		return nil
	}

	pts := contour.ToPoints()
	defects := make([]Defect, 0, raw.Rows())
	for i := 0; i < raw.Rows(); i++ {
		v := raw.GetVeciAt(i, 0)
		s, e, f := int(v[0]), int(v[1]), int(v[2])
		if s >= len(pts) || e >= len(pts) || f >= len(pts) {
			continue
		}
		defects = append(defects, NewDefect(pts[s], pts[e], pts[f]))
	}
	return defects
}
