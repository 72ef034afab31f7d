package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Tick processes one frame: read, validate, detect once, deliver.
//
// It returns ErrNotWarmedUp before Warmup, ErrNoFrame when the source has
// nothing to offer and ErrMalformedFrame when the frame is unusable. None of
// these affect the next tick.
func (c *Controller) Tick() (Result, error) {
	if !c.Warm() {
		return Result{}, ErrNotWarmedUp
	}

	frame, err := c.source.ReadFrame()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrNoFrame, err)
	}
	if frame == nil {
		return Result{}, ErrNoFrame
	}
	defer frame.Close()

	if err := frame.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	if c.config.Width > 0 && c.config.Height > 0 &&
		(frame.Width != c.config.Width || frame.Height != c.config.Height) {
		return Result{}, fmt.Errorf("%w: got %dx%d, want %dx%d",
			ErrMalformedFrame, frame.Width, frame.Height, c.config.Width, c.config.Height)
	}

	d := c.Detector()
	start := time.Now()
	box, found := d.Detect(frame)

	result := Result{
		Seq:       frame.Seq,
		Method:    d.Method().String(),
		Found:     found,
		Box:       box,
		Width:     frame.Width,
		Height:    frame.Height,
		Elapsed:   time.Since(start),
		Timestamp: frame.Timestamp,
	}

	if c.sink != nil {
		if err := c.sink.Deliver(frame, result); err != nil {
			return result, fmt.Errorf("deliver frame %d: %w", frame.Seq, err)
		}
	}
	return result, nil
}

// Run warms up the controller and ticks at the configured rate until ctx is
// cancelled. The source must already be open. Per-tick failures are logged
// and the loop continues; only a warmup failure ends Run early.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Warmup(); err != nil {
		return err
	}

	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()

	c.loop(stop)
	return nil
}

// loop is the ticker-driven main loop shared by Run and Start.
func (c *Controller) loop(stop <-chan struct{}) {
	if err := c.Warmup(); err != nil {
		log.WithError(err).Error("Detection pipeline not started")
		return
	}

	frameInterval := time.Second / time.Duration(c.config.FPS)
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	var detections, misses uint64
	for {
		select {
		case <-stop:
			log.WithFields(log.Fields{
				"found":  detections,
				"missed": misses,
			}).Info("Detection loop finished")
			return
		case <-ticker.C:
			// Skip processing if detection is disabled
			if !c.IsEnabled() {
				continue
			}

			result, err := c.Tick()
			switch {
			case errors.Is(err, ErrNoFrame):
				log.Debugf("Skipping tick: %v", err)
				continue
			case errors.Is(err, ErrMalformedFrame):
				log.Warnf("Dropping frame: %v", err)
				continue
			case err != nil:
				log.Printf("Error processing frame: %v", err)
			}

			if result.Found {
				detections++
				log.WithFields(log.Fields{
					"seq": result.Seq,
					"box": result.Box,
				}).Debug("Hand detected")
			} else {
				misses++
			}
		}
	}
}
