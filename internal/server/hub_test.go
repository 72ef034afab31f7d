package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/palmtrace/internal/app"
	"github.com/ayusman/palmtrace/internal/capture"
	"github.com/ayusman/palmtrace/internal/detector"
	"github.com/ayusman/palmtrace/testdata"
)

func TestHub_DeliverKeepsLatest(t *testing.T) {
	h := NewHub()
	assert.Nil(t, h.Latest())

	require.NoError(t, h.Deliver(nil, app.Result{Seq: 1}))
	require.NoError(t, h.Deliver(nil, app.Result{Seq: 2, Found: true}))

	snap := h.Latest()
	require.NotNil(t, snap)
	assert.Equal(t, uint64(2), snap.Seq)
	assert.True(t, snap.Result.Found)
	assert.Empty(t, snap.JPEG, "no frame, no image")
}

func TestHub_DeliverAnnotatesFrame(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	hand := testdata.SyntheticHand(5)
	defer hand.Close()
	frame := capture.NewFrame(*hand, capture.OrderBGR)

	h := NewHub()
	result := app.Result{
		Seq:   1,
		Found: true,
		Box:   detector.BoundingBox{XMin: 300, XMax: 330, YMin: 245, YMax: 275},
	}
	require.NoError(t, h.Deliver(frame, result))

	snap := h.Latest()
	require.NotNil(t, snap)
	// JPEG SOI marker
	assert.True(t, bytes.HasPrefix(snap.JPEG, []byte{0xFF, 0xD8}), "expected JPEG data")
}

func TestHub_WebsocketBroadcast(t *testing.T) {
	h := NewHub()
	ts := httptest.NewServer(h)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 10*time.Millisecond)

	box := detector.BoundingBox{XMin: 1, XMax: 31, YMin: 2, YMax: 32}
	require.NoError(t, h.Deliver(nil, app.Result{Seq: 9, Found: true, Box: box, Method: "contour"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got app.Result
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, uint64(9), got.Seq)
	assert.Equal(t, box, got.Box)
	assert.Equal(t, "contour", got.Method)

	conn.Close()
	require.Eventually(t, func() bool { return h.Clients() == 0 }, time.Second, 10*time.Millisecond)
}

func TestStreamHandler_WritesParts(t *testing.T) {
	h := NewHub()
	h.mu.Lock()
	h.latest = &Snapshot{Seq: 1, JPEG: []byte{0xFF, 0xD8, 0xFF, 0xD9}}
	h.mu.Unlock()

	srv := New(Config{Hub: h})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	require.NoError(t, err)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "--frame\r\n", line)

	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "Content-Type: image/jpeg\r\n", line)

	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "Content-Length: 4\r\n", line)
}
