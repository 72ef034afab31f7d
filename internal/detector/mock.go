package detector

import (
	"sync"

	"github.com/ayusman/palmtrace/internal/capture"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu      sync.Mutex
	box     BoundingBox
	found   bool
	loadErr error
	loaded  bool
	closed  bool
	calls   int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetResult sets the box returned by Detect. found=false makes Detect report no hand.
func (m *MockDetector) SetResult(box BoundingBox, found bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.box = box
	m.found = found
}

// SetLoadError sets the error that will be returned by Load.
func (m *MockDetector) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

func (m *MockDetector) Method() Method { return MethodContour }

// Load returns the pre-configured error, if any.
func (m *MockDetector) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return m.loadErr
	}
	m.loaded = true
	return nil
}

// Detect returns the pre-configured result.
func (m *MockDetector) Detect(frame *capture.Frame) (BoundingBox, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if !m.found {
		return BoundingBox{}, false
	}
	return m.box, true
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls returns how many times Detect was invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Loaded reports whether Load succeeded.
func (m *MockDetector) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
