// Package app runs the detection loop: it pulls frames from a source, runs
// the configured detector once per frame and hands the outcome to a sink.
package app

import (
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/palmtrace/internal/capture"
	"github.com/ayusman/palmtrace/internal/detector"
)

var (
	// ErrInitialization is returned by Warmup when the detector cannot load its resources.
	ErrInitialization = errors.New("detector initialization failed")

	// ErrNotWarmedUp is returned by Tick before Warmup succeeded.
	ErrNotWarmedUp = errors.New("controller not warmed up")

	// ErrNoFrame is returned by Tick when the source had no frame; the tick is skipped.
	ErrNoFrame = errors.New("no frame available")

	// ErrMalformedFrame is returned by Tick when a frame disagrees with its
	// declared or configured dimensions.
	ErrMalformedFrame = errors.New("malformed frame")
)

// Config holds configuration options for the controller.
type Config struct {
	// Detector selects and tunes the detection strategy.
	Detector detector.Config

	// Width and Height are the frame size the source is expected to produce.
	// Zero disables the check.
	Width  int
	Height int

	// FPS is the tick rate of Run.
	FPS int
}

// Controller owns one detector and drives it from a frame source.
type Controller struct {
	config   Config
	source   capture.Camera
	sink     Sink
	detector detector.Detector
	warm     bool
	enabled  bool
	mu       sync.RWMutex
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a Controller. The detection method is fixed here; resources are
// loaded by Warmup.
func New(config Config, source capture.Camera, sink Sink) (*Controller, error) {
	if config.FPS <= 0 {
		config.FPS = capture.DefaultFPS
	}

	d, err := detector.New(config.Detector)
	if err != nil {
		return nil, fmt.Errorf("create detector: %w", err)
	}

	return &Controller{
		config:   config,
		source:   source,
		sink:     sink,
		detector: d,
		enabled:  true,
	}, nil
}

// SetDetector replaces the detector. It must be called before Warmup.
func (c *Controller) SetDetector(d detector.Detector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detector = d
	c.warm = false
}

// Detector returns the active detector.
func (c *Controller) Detector() detector.Detector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.detector
}

// Warmup loads the detector's resources. A failure here is fatal for the
// controller: Tick keeps returning ErrNotWarmedUp.
func (c *Controller) Warmup() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.warm {
		return nil
	}
	if err := c.detector.Load(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInitialization, c.detector.Method(), err)
	}

	c.warm = true
	log.WithField("method", c.detector.Method()).Info("Detector ready")
	return nil
}

// Warm reports whether Warmup has succeeded.
func (c *Controller) Warm() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.warm
}

// SetEnabled enables or disables detection. Disabled ticks read no frames.
func (c *Controller) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

// IsEnabled returns whether detection is currently enabled.
func (c *Controller) IsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// Source returns the frame source.
func (c *Controller) Source() capture.Camera {
	return c.source
}

// Config returns the controller configuration.
func (c *Controller) Config() Config {
	return c.config
}

// Start opens the source and runs the detection loop in the background.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Don't start if already running
	if c.stopCh != nil {
		return nil
	}

	if err := c.source.Open(); err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	c.source.SetFPS(c.config.FPS)

	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		c.loop(stop)
	}(c.stopCh, c.doneCh)

	log.Println("Detection pipeline started")
	return nil
}

// Stop halts the detection loop and releases the source and detector.
func (c *Controller) Stop() {
	c.mu.Lock()
	stop, done := c.stopCh, c.doneCh
	c.stopCh, c.doneCh = nil, nil
	c.mu.Unlock()

	// Signal the pipeline to stop and wait for the in-flight tick
	if stop != nil {
		close(stop)
		<-done
	}

	if err := c.source.Close(); err != nil {
		log.Printf("Error closing source: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.detector.Close(); err != nil {
		log.Printf("Error closing detector: %v", err)
	}
	c.warm = false

	log.Println("Detection pipeline stopped")
}
