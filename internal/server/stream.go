package server

import (
	"fmt"
	"net/http"
)

// StreamHandler serves the hub's annotated frames as MJPEG.
type StreamHandler struct {
	hub *Hub
}

// NewStreamHandler creates a new StreamHandler reading from hub.
func NewStreamHandler(hub *Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var lastSeq uint64
	sent := false
	for {
		next := h.hub.wait()

		if snap := h.hub.Latest(); snap != nil && len(snap.JPEG) > 0 && (!sent || snap.Seq != lastSeq) {
			if err := writePart(w, snap.JPEG); err != nil {
				return
			}
			lastSeq, sent = snap.Seq, true
		}

		select {
		case <-r.Context().Done():
			return
		case <-next:
		}
	}
}

// writePart writes one MJPEG part and flushes it.
func writePart(w http.ResponseWriter, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
		return err
	}

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
