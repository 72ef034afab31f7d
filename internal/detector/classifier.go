package detector

import (
	"fmt"
	"image"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/palmtrace/internal/capture"
)

// Cascade search flags, as defined by OpenCV's objdetect module.
const (
	cascadeDoCannyPruning    = 1
	cascadeScaleImage        = 2
	cascadeFindBiggestObject = 4
)

// ClassifierDetector finds hands with a pre-trained cascade classifier.
type ClassifierDetector struct {
	config     Config
	classifier gocv.CascadeClassifier
	loaded     bool
}

// NewClassifierDetector creates a cascade-based detector. The cascade file is
// read by Load.
func NewClassifierDetector(config Config) *ClassifierDetector {
	return &ClassifierDetector{config: config}
}

func (d *ClassifierDetector) Method() Method { return MethodClassifier }

// Load reads the cascade file named by Config.CascadePath.
func (d *ClassifierDetector) Load() error {
	if d.loaded {
		return nil
	}
	if err := checkResource("cascade", d.config.CascadePath); err != nil {
		return err
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(d.config.CascadePath) {
		classifier.Close()
		return fmt.Errorf("%w: cascade %s", ErrResourceLoad, d.config.CascadePath)
	}

	d.classifier = classifier
	d.loaded = true
	return nil
}

// Detect equalizes the grayscale frame and returns the biggest cascade hit.
func (d *ClassifierDetector) Detect(frame *capture.Frame) (BoundingBox, bool) {
	if !d.loaded || !usable(frame) {
		return BoundingBox{}, false
	}

	gray, err := grayscale(frame)
	defer gray.Close()
	if err != nil {
		log.WithError(err).Debug("Grayscale conversion failed")
		return BoundingBox{}, false
	}
	if err := gocv.EqualizeHist(gray, &gray); err != nil {
		log.WithError(err).Debug("Histogram equalization failed")
		return BoundingBox{}, false
	}

	hands := d.classifier.DetectMultiScaleWithParams(
		gray,
		1.1,
		2,
		cascadeDoCannyPruning|cascadeScaleImage|cascadeFindBiggestObject,
		image.Pt(10, 10),
		image.Pt(0, 0),
	)

	rect, ok := biggestRect(hands)
	if !ok {
		return BoundingBox{}, false
	}

	box := BoundingBox{
		XMin: rect.Min.X,
		XMax: rect.Max.X,
		YMin: rect.Min.Y,
		YMax: rect.Max.Y,
	}
	return box.Clamp(frame.Width, frame.Height), true
}

// Close releases the cascade.
func (d *ClassifierDetector) Close() error {
	if !d.loaded {
		return nil
	}
	d.loaded = false
	return d.classifier.Close()
}

// biggestRect returns the rectangle with the largest area.
func biggestRect(rects []image.Rectangle) (image.Rectangle, bool) {
	if len(rects) == 0 {
		return image.Rectangle{}, false
	}
	best := rects[0]
	for _, r := range rects[1:] {
		if r.Dx()*r.Dy() > best.Dx()*best.Dy() {
			best = r
		}
	}
	return best, true
}

// grayscale converts a frame to a single-channel Mat owned by the caller,
// even when the conversion fails.
func grayscale(frame *capture.Frame) (gocv.Mat, error) {
	code := gocv.ColorBGRToGray
	switch frame.Order {
	case capture.OrderRGB:
		code = gocv.ColorRGBToGray
	case capture.OrderBGRA:
		code = gocv.ColorBGRAToGray
	case capture.OrderRGBA:
		code = gocv.ColorRGBAToGray
	}

	gray := gocv.NewMat()
	if err := gocv.CvtColor(frame.Mat, &gray, code); err != nil {
		return gray, fmt.Errorf("convert %s frame to gray: %w", frame.Order, err)
	}
	return gray, nil
}
