package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/palmtrace/internal/capture"
	"github.com/ayusman/palmtrace/internal/detector"
	"github.com/ayusman/palmtrace/testdata"
)

// recordingSink collects delivered results.
type recordingSink struct {
	mu      sync.Mutex
	results []Result
	err     error
}

func (s *recordingSink) Deliver(frame *capture.Frame, result Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return s.err
}

func (s *recordingSink) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Result(nil), s.results...)
}

func newTestController(t *testing.T, frames []*gocv.Mat, sink Sink) (*Controller, *capture.MockCamera, *detector.MockDetector) {
	t.Helper()

	cam := capture.NewMockCamera(frames, false)
	require.NoError(t, cam.Open())

	c, err := New(Config{
		Detector: detector.DefaultConfig(),
		Width:    testdata.Width,
		Height:   testdata.Height,
		FPS:      100,
	}, cam, sink)
	require.NoError(t, err)

	mock := detector.NewMockDetector()
	c.SetDetector(mock)
	return c, cam, mock
}

func TestNew_UnknownMethod(t *testing.T) {
	cfg := Config{Detector: detector.DefaultConfig()}
	cfg.Detector.Method = detector.Method(99)

	_, err := New(cfg, capture.NewMockCamera(nil, false), nil)
	assert.ErrorIs(t, err, detector.ErrUnknownMethod)
}

func TestController_TickBeforeWarmup(t *testing.T) {
	frames := testdata.HandSequence(5)
	defer testdata.CloseAll(frames)

	c, _, mock := newTestController(t, frames, nil)

	_, err := c.Tick()
	assert.ErrorIs(t, err, ErrNotWarmedUp)
	assert.Zero(t, mock.Calls(), "detector must not run before warmup")
}

func TestController_WarmupFailure(t *testing.T) {
	c, _, mock := newTestController(t, nil, nil)
	mock.SetLoadError(detector.ErrResourceMissing)

	err := c.Warmup()
	assert.ErrorIs(t, err, ErrInitialization)
	assert.ErrorIs(t, err, detector.ErrResourceMissing)
	assert.False(t, c.Warm())

	_, err = c.Tick()
	assert.ErrorIs(t, err, ErrNotWarmedUp)
}

func TestController_WarmupMissingModel(t *testing.T) {
	cfg := Config{Detector: detector.DefaultConfig()}
	cfg.Detector.Method = detector.MethodNeuralNet
	cfg.Detector.ModelPath = t.TempDir() + "/absent.pb"

	c, err := New(cfg, capture.NewMockCamera(nil, false), nil)
	require.NoError(t, err)

	err = c.Warmup()
	assert.ErrorIs(t, err, ErrInitialization)
	assert.ErrorIs(t, err, detector.ErrResourceMissing)
}

func TestController_TickDeliversResult(t *testing.T) {
	frames := testdata.HandSequence(5, 5)
	defer testdata.CloseAll(frames)

	sink := &recordingSink{}
	c, _, mock := newTestController(t, frames, sink)
	require.NoError(t, c.Warmup())

	box := detector.BoundingBox{XMin: 300, XMax: 330, YMin: 245, YMax: 275}
	mock.SetResult(box, true)

	res, err := c.Tick()
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, box, res.Box)
	assert.Equal(t, uint64(1), res.Seq)
	assert.Equal(t, testdata.Width, res.Width)

	mock.SetResult(detector.BoundingBox{}, false)
	res, err = c.Tick()
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, uint64(2), res.Seq)

	got := sink.Results()
	require.Len(t, got, 2)
	assert.True(t, got[0].Found)
	assert.False(t, got[1].Found)
	assert.Equal(t, 2, mock.Calls(), "exactly one detection per tick")
}

func TestController_TickNoFrame(t *testing.T) {
	frames := testdata.HandSequence(5)
	defer testdata.CloseAll(frames)

	sink := &recordingSink{}
	c, _, mock := newTestController(t, frames, sink)
	require.NoError(t, c.Warmup())

	_, err := c.Tick()
	require.NoError(t, err)

	_, err = c.Tick()
	assert.ErrorIs(t, err, ErrNoFrame)
	assert.ErrorIs(t, err, capture.ErrFrameNotReady)
	assert.Len(t, sink.Results(), 1, "skipped tick delivers nothing")
	assert.Equal(t, 1, mock.Calls())
}

func TestController_TickMalformedFrameIsRecoverable(t *testing.T) {
	small := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer small.Close()
	good := testdata.SyntheticHand(5)
	defer good.Close()

	sink := &recordingSink{}
	c, _, mock := newTestController(t, []*gocv.Mat{&small, good}, sink)
	require.NoError(t, c.Warmup())
	mock.SetResult(detector.BoundingBox{XMin: 1, XMax: 2, YMin: 3, YMax: 4}, true)

	_, err := c.Tick()
	assert.ErrorIs(t, err, ErrMalformedFrame)

	res, err := c.Tick()
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, 1, mock.Calls())
	assert.Len(t, sink.Results(), 1)
}

func TestController_TickChannelMismatch(t *testing.T) {
	frames := testdata.HandSequence(5)
	defer testdata.CloseAll(frames)

	c, cam, _ := newTestController(t, frames, nil)
	cam.SetOrder(capture.OrderBGRA)
	require.NoError(t, c.Warmup())

	_, err := c.Tick()
	assert.ErrorIs(t, err, ErrMalformedFrame)
	assert.ErrorIs(t, err, capture.ErrDimensionMismatch)
}

func TestController_SinkError(t *testing.T) {
	frames := testdata.HandSequence(5)
	defer testdata.CloseAll(frames)

	sinkErr := errors.New("disk full")
	c, _, _ := newTestController(t, frames, &recordingSink{err: sinkErr})
	require.NoError(t, c.Warmup())

	_, err := c.Tick()
	assert.ErrorIs(t, err, sinkErr)
}

func TestController_Enabled(t *testing.T) {
	c, _, _ := newTestController(t, nil, nil)

	assert.True(t, c.IsEnabled(), "controllers start enabled")
	c.SetEnabled(false)
	assert.False(t, c.IsEnabled())
	c.SetEnabled(true)
	assert.True(t, c.IsEnabled())
}

func TestController_RunUntilCancelled(t *testing.T) {
	frames := testdata.HandSequence(5, 5, 5)
	defer testdata.CloseAll(frames)

	sink := &recordingSink{}
	c, _, mock := newTestController(t, frames, sink)
	mock.SetResult(detector.BoundingBox{XMin: 1, XMax: 2, YMin: 3, YMax: 4}, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(sink.Results()) == len(frames)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// The source is exhausted; later ticks were skipped, not delivered.
	assert.Len(t, sink.Results(), len(frames))
}

func TestController_RunWarmupFailure(t *testing.T) {
	c, _, mock := newTestController(t, nil, nil)
	mock.SetLoadError(detector.ErrResourceLoad)

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrInitialization)
}

func TestController_StartStop(t *testing.T) {
	frames := testdata.HandSequence(5)
	defer testdata.CloseAll(frames)

	sink := &recordingSink{}
	c, cam, mock := newTestController(t, frames, sink)
	require.NoError(t, cam.Close())

	require.NoError(t, c.Start())
	assert.True(t, cam.IsOpen())

	require.Eventually(t, func() bool {
		return len(sink.Results()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	c.Stop()
	assert.False(t, cam.IsOpen())
	assert.True(t, mock.Closed())
}

func TestMultiSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{err: errors.New("b failed")}
	multi := MultiSink{a, nil, b}

	err := multi.Deliver(nil, Result{Seq: 7})
	assert.Error(t, err)
	assert.Len(t, a.Results(), 1)
	assert.Len(t, b.Results(), 1)

	var called bool
	fn := SinkFunc(func(frame *capture.Frame, result Result) error {
		called = result.Seq == 7
		return nil
	})
	require.NoError(t, MultiSink{fn}.Deliver(nil, Result{Seq: 7}))
	assert.True(t, called)
}
