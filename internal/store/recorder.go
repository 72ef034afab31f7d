package store

import (
	"fmt"
	"time"

	"github.com/ayusman/palmtrace/internal/app"
	"github.com/ayusman/palmtrace/internal/capture"
)

// Recorder is an app.Sink that writes every tick result to a run.
type Recorder struct {
	store *Store
	run   *Run
}

// NewRecorder starts a new run and returns a sink recording into it.
func NewRecorder(s *Store, method, source string, width, height int) (*Recorder, error) {
	run := &Run{
		Method: method,
		Source: source,
		Width:  width,
		Height: height,
	}
	if err := s.Runs().Create(run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return &Recorder{store: s, run: run}, nil
}

// Run returns the run being recorded.
func (r *Recorder) Run() *Run {
	return r.run
}

// Deliver stores one result.
func (r *Recorder) Deliver(_ *capture.Frame, result app.Result) error {
	d := &Detection{
		RunID:     r.run.ID,
		Seq:       result.Seq,
		Found:     result.Found,
		Elapsed:   result.Elapsed,
		CreatedAt: result.Timestamp,
	}
	if result.Found {
		d.XMin, d.XMax = result.Box.XMin, result.Box.XMax
		d.YMin, d.YMax = result.Box.YMin, result.Box.YMax
	}

	if err := r.store.Detections().Add(d); err != nil {
		return fmt.Errorf("record frame %d: %w", result.Seq, err)
	}
	return nil
}

// Close marks the run finished.
func (r *Recorder) Close() error {
	now := time.Now()
	if err := r.store.Runs().Finish(r.run.ID, now); err != nil {
		return err
	}
	r.run.FinishedAt = &now
	return nil
}
