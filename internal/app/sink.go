package app

import (
	"errors"
	"time"

	"github.com/ayusman/palmtrace/internal/capture"
	"github.com/ayusman/palmtrace/internal/detector"
)

// Result is the outcome of one tick.
type Result struct {
	Seq       uint64               `json:"seq"`
	Method    string               `json:"method"`
	Found     bool                 `json:"found"`
	Box       detector.BoundingBox `json:"box"`
	Width     int                  `json:"width"`
	Height    int                  `json:"height"`
	Elapsed   time.Duration        `json:"elapsed"`
	Timestamp time.Time            `json:"timestamp"`
}

// Sink receives every processed frame together with its result. The frame is
// only valid for the duration of the call.
type Sink interface {
	Deliver(frame *capture.Frame, result Result) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(frame *capture.Frame, result Result) error

func (f SinkFunc) Deliver(frame *capture.Frame, result Result) error {
	return f(frame, result)
}

// MultiSink fans a result out to several sinks. Every sink is called even if
// an earlier one fails; the errors are joined.
type MultiSink []Sink

func (m MultiSink) Deliver(frame *capture.Frame, result Result) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Deliver(frame, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
