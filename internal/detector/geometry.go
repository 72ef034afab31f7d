package detector

import (
	"image"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Defect is a convexity defect of a contour: the hull edge Start-End and the
// contour point Far that lies deepest below it.
type Defect struct {
	Start image.Point
	End   image.Point
	Far   image.Point

	// Depth is the distance in pixels from Far to the line through Start and End.
	Depth float64
}

// NewDefect builds a Defect and measures its depth.
func NewDefect(start, end, far image.Point) Defect {
	return Defect{
		Start: start,
		End:   end,
		Far:   far,
		Depth: lineDistance(start, end, far),
	}
}

// Angle returns the angle at Far, in degrees, of the triangle Start-Far-End.
// Degenerate triangles yield NaN.
func (d Defect) Angle() float64 {
	a := r2.Norm(r2.Sub(vec(d.Start), vec(d.End)))
	b := r2.Norm(r2.Sub(vec(d.Far), vec(d.Start)))
	c := r2.Norm(r2.Sub(vec(d.Far), vec(d.End)))
	if b == 0 || c == 0 {
		return math.NaN()
	}

	cos := (b*b + c*c - a*a) / (2 * b * c)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

func vec(p image.Point) r2.Vec {
	return r2.Vec{X: float64(p.X), Y: float64(p.Y)}
}

// lineDistance is the perpendicular distance from p to the line through a and b.
func lineDistance(a, b, p image.Point) float64 {
	base := r2.Sub(vec(b), vec(a))
	n := r2.Norm(base)
	if n == 0 {
		return r2.Norm(r2.Sub(vec(p), vec(a)))
	}
	return math.Abs(r2.Cross(base, r2.Sub(vec(p), vec(a)))) / n
}

// valleyPoints returns the far points of the defects that look like the gap
// between two fingers: a sharp angle and a depth greater than
// height/opts.DepthDivisor.
func valleyPoints(defects []Defect, height int, opts ContourOptions) []image.Point {
	minDepth := float64(height) / opts.DepthDivisor

	var valleys []image.Point
	for _, d := range defects {
		angle := d.Angle()
		if math.IsNaN(angle) {
			continue
		}
		if angle < opts.MaxAngle && d.Depth > minDepth {
			valleys = append(valleys, d.Far)
		}
	}
	return valleys
}

// featurePoint returns the center of the bounding rectangle of the valleys,
// provided their count lies within [opts.MinDefects, opts.MaxDefects].
func featurePoint(valleys []image.Point, opts ContourOptions) (image.Point, bool) {
	if len(valleys) == 0 || len(valleys) < opts.MinDefects || len(valleys) > opts.MaxDefects {
		return image.Point{}, false
	}

	minP, maxP := valleys[0], valleys[0]
	for _, p := range valleys[1:] {
		minP.X = min(minP.X, p.X)
		minP.Y = min(minP.Y, p.Y)
		maxP.X = max(maxP.X, p.X)
		maxP.Y = max(maxP.Y, p.Y)
	}

	// Same rounding as cv::boundingRect: width and height count both edges.
	w := maxP.X - minP.X + 1
	h := maxP.Y - minP.Y + 1
	return image.Pt(minP.X+w/2, minP.Y+h/2), true
}
