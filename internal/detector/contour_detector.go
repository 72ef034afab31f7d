package detector

import (
	"github.com/ayusman/palmtrace/internal/capture"
)

// ContourDetector finds an open hand from skin color and the valleys between
// its fingers. It needs no model files.
type ContourDetector struct {
	config Config
}

// NewContourDetector creates a skin-contour detector.
func NewContourDetector(config Config) *ContourDetector {
	if config.BoxHalfSize <= 0 {
		config.BoxHalfSize = 15
	}
	if config.Contour == (ContourOptions{}) {
		config.Contour = DefaultContourOptions()
	}
	return &ContourDetector{config: config}
}

func (d *ContourDetector) Method() Method { return MethodContour }

// Load is a no-op; the strategy has no resources.
func (d *ContourDetector) Load() error { return nil }

// Detect returns a square box around the palm feature point.
func (d *ContourDetector) Detect(frame *capture.Frame) (BoundingBox, bool) {
	if !usable(frame) {
		return BoundingBox{}, false
	}

	mask, err := SkinMask(frame)
	if err != nil {
		return BoundingBox{}, false
	}
	defer mask.Close()

	center, ok := FindFeaturePoint(mask, d.config.Contour)
	if !ok {
		return BoundingBox{}, false
	}

	half := d.config.BoxHalfSize
	box := BoundingBox{
		XMin: center.X - half,
		XMax: center.X + half,
		YMin: center.Y - half,
		YMax: center.Y + half,
	}
	return box.Clamp(frame.Width, frame.Height), true
}

func (d *ContourDetector) Close() error { return nil }
