package detector

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/ayusman/palmtrace/internal/capture"
)

// ssdRowLen is the number of values per detection in an SSD output:
// image id, class id, confidence, left, top, right, bottom.
const ssdRowLen = 7

// NeuralNetDetector finds hands with an SSD object-detection network.
type NeuralNetDetector struct {
	config Config
	net    gocv.Net
	loaded bool
}

// NewNeuralNetDetector creates a network-based detector. The model files are
// read by Load.
func NewNeuralNetDetector(config Config) *NeuralNetDetector {
	if config.InputSize <= 0 {
		config.InputSize = 300
	}
	return &NeuralNetDetector{config: config}
}

func (d *NeuralNetDetector) Method() Method { return MethodNeuralNet }

// Load reads the network named by Config.ModelPath and Config.ModelConfigPath.
func (d *NeuralNetDetector) Load() error {
	if d.loaded {
		return nil
	}
	if err := checkResource("model", d.config.ModelPath); err != nil {
		return err
	}
	if err := checkResource("model config", d.config.ModelConfigPath); err != nil {
		return err
	}

	net := gocv.ReadNet(d.config.ModelPath, d.config.ModelConfigPath)
	if net.Empty() {
		net.Close()
		return fmt.Errorf("%w: model %s", ErrResourceLoad, d.config.ModelPath)
	}

	d.net = net
	d.loaded = true
	return nil
}

// Detect runs one forward pass and keeps the most confident detection.
func (d *NeuralNetDetector) Detect(frame *capture.Frame) (BoundingBox, bool) {
	if !d.loaded || !usable(frame) {
		return BoundingBox{}, false
	}

	input, swapRB := frame.Mat, frame.Order.SwapRB()
	if frame.Order.Channels() == 4 {
		input, swapRB = frame.BGR(), true
		defer input.Close()
	}

	size := d.config.InputSize
	blob := gocv.BlobFromImage(input, 1.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), swapRB, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	prob := d.net.Forward("")
	defer prob.Close()

	values, err := prob.DataPtrFloat32()
	if err != nil {
		return BoundingBox{}, false
	}
	return selectDetection(values, frame.Width, frame.Height, d.config.MinConfidence)
}

// Close releases the network.
func (d *NeuralNetDetector) Close() error {
	if !d.loaded {
		return nil
	}
	d.loaded = false
	return d.net.Close()
}

// selectDetection picks the highest-confidence row of a flattened SSD output
// and scales it to a width x height frame. Rows at or below minConfidence are
// rejected.
func selectDetection(values []float32, width, height int, minConfidence float64) (BoundingBox, bool) {
	best := -1
	bestScore := float32(0)
	for i := 0; i+ssdRowLen <= len(values); i += ssdRowLen {
		if score := values[i+2]; score > bestScore {
			bestScore = score
			best = i
		}
	}
	if best < 0 || float64(bestScore) <= minConfidence {
		return BoundingBox{}, false
	}

	row := values[best : best+ssdRowLen]
	box := BoundingBox{
		XMin: scaleCoord(row[3], width),
		YMin: scaleCoord(row[4], height),
		XMax: scaleCoord(row[5], width),
		YMax: scaleCoord(row[6], height),
	}
	return box.Clamp(width, height), true
}

// scaleCoord converts a normalized coordinate to pixels, truncating toward zero.
func scaleCoord(v float32, dim int) int {
	f := float64(v) * float64(dim)
	if math.IsNaN(f) {
		return 0
	}
	f = math.Max(0, math.Min(f, float64(dim-1)))
	return int(f)
}
