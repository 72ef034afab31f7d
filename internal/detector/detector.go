// Package detector locates a hand or palm in a video frame. Several strategies
// sit behind the Detector interface so the active one can be chosen by
// configuration without touching the capture loop.
package detector

import (
	"errors"
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/ayusman/palmtrace/internal/capture"
)

var (
	// ErrResourceMissing is returned by Load when a model or cascade file does not exist.
	ErrResourceMissing = errors.New("detector resource missing")

	// ErrResourceLoad is returned by Load when a resource exists but cannot be parsed.
	ErrResourceLoad = errors.New("detector resource failed to load")

	// ErrUnknownMethod is returned by New and ParseMethod for unsupported methods.
	ErrUnknownMethod = errors.New("unknown detection method")
)

// Method names a detection strategy.
type Method int

const (
	MethodClassifier Method = iota
	MethodNeuralNet
	MethodContour
)

func (m Method) String() string {
	switch m {
	case MethodClassifier:
		return "classifier"
	case MethodNeuralNet:
		return "neuralnet"
	case MethodContour:
		return "contour"
	default:
		return fmt.Sprintf("method(%d)", int(m))
	}
}

// ParseMethod converts a configuration string into a Method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "classifier", "cascade":
		return MethodClassifier, nil
	case "neuralnet", "dnn", "nn":
		return MethodNeuralNet, nil
	case "contour", "skin":
		return MethodContour, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

// BoundingBox is an axis-aligned box in pixel coordinates. Both bounds are inclusive.
type BoundingBox struct {
	XMin int `json:"xmin"`
	XMax int `json:"xmax"`
	YMin int `json:"ymin"`
	YMax int `json:"ymax"`
}

// Clamp orders the bounds and limits them to a width x height frame.
func (b BoundingBox) Clamp(width, height int) BoundingBox {
	if b.XMin > b.XMax {
		b.XMin, b.XMax = b.XMax, b.XMin
	}
	if b.YMin > b.YMax {
		b.YMin, b.YMax = b.YMax, b.YMin
	}
	b.XMin = clampInt(b.XMin, 0, width-1)
	b.XMax = clampInt(b.XMax, 0, width-1)
	b.YMin = clampInt(b.YMin, 0, height-1)
	b.YMax = clampInt(b.YMax, 0, height-1)
	return b
}

// Rect converts the box to an image.Rectangle, whose maximum is exclusive.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.XMin, b.YMin, b.XMax+1, b.YMax+1)
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() image.Point {
	return image.Pt((b.XMin+b.XMax)/2, (b.YMin+b.YMax)/2)
}

// Within reports whether the box is ordered and lies inside a width x height frame.
func (b BoundingBox) Within(width, height int) bool {
	return b.XMin >= 0 && b.YMin >= 0 &&
		b.XMin <= b.XMax && b.YMin <= b.YMax &&
		b.XMax < width && b.YMax < height
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Detector defines the interface for hand detection strategies.
type Detector interface {
	// Method identifies the strategy.
	Method() Method

	// Load acquires model resources. It is called once before the first Detect.
	Load() error

	// Detect analyzes a frame and returns the hand region, if any.
	// Nil, empty, and malformed frames yield no detection.
	Detect(frame *capture.Frame) (BoundingBox, bool)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for hand detection.
type Config struct {
	// Method selects the strategy.
	Method Method

	// CascadePath is the Haar/LBP cascade XML used by the classifier strategy.
	CascadePath string

	// ModelPath and ModelConfigPath locate the SSD network used by the
	// neural-net strategy (frozen graph and text graph).
	ModelPath       string
	ModelConfigPath string

	// MinConfidence is the score a network detection must exceed (0.0-1.0).
	MinConfidence float64

	// InputSize is the square network input size in pixels.
	InputSize int

	// BoxHalfSize is the half side of the box placed around a contour feature point.
	BoxHalfSize int

	// Contour tunes the convexity-defect analysis.
	Contour ContourOptions
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Method:          MethodContour,
		CascadePath:     "models/hand_cascade.xml",
		ModelPath:       "models/frozen_inference_graph.pb",
		ModelConfigPath: "models/graph.pbtxt",
		MinConfidence:   0.7,
		InputSize:       300,
		BoxHalfSize:     15,
		Contour:         DefaultContourOptions(),
	}
}

// New creates the detector selected by cfg.Method. Resources are not touched
// until Load.
func New(cfg Config) (Detector, error) {
	switch cfg.Method {
	case MethodClassifier:
		return NewClassifierDetector(cfg), nil
	case MethodNeuralNet:
		return NewNeuralNetDetector(cfg), nil
	case MethodContour:
		return NewContourDetector(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, cfg.Method)
	}
}

// checkResource verifies that a resource file exists before it is handed to OpenCV.
func checkResource(kind, path string) error {
	if path == "" {
		return fmt.Errorf("%w: %s path is empty", ErrResourceMissing, kind)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrResourceMissing, kind, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s %s is a directory", ErrResourceMissing, kind, path)
	}
	return nil
}

// usable reports whether a frame can be handed to OpenCV.
func usable(frame *capture.Frame) bool {
	return frame != nil && frame.Validate() == nil
}
