package server

import (
	"encoding/json"
	"fmt"
	"image/color"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/palmtrace/internal/app"
	"github.com/ayusman/palmtrace/internal/capture"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// boxColor is the outline drawn around a detected hand.
var boxColor = color.RGBA{R: 255, G: 0, B: 0, A: 0}

// writeWait bounds how long a slow websocket client can hold up a broadcast.
const writeWait = time.Second

// Snapshot is the latest annotated frame kept by the Hub.
type Snapshot struct {
	Seq    uint64
	JPEG   []byte
	Result app.Result
}

// Hub is an app.Sink that keeps the latest annotated frame for the MJPEG
// stream and pushes every result to websocket clients.
type Hub struct {
	clients map[*websocket.Conn]bool
	latest  *Snapshot
	updated chan struct{}
	mu      sync.RWMutex
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		updated: make(chan struct{}),
	}
}

// Deliver annotates and encodes the frame, then broadcasts the result.
func (h *Hub) Deliver(frame *capture.Frame, result app.Result) error {
	var jpeg []byte
	if frame != nil && !frame.Empty() {
		data, err := annotate(frame, result)
		if err != nil {
			return err
		}
		jpeg = data
	}

	h.mu.Lock()
	h.latest = &Snapshot{Seq: result.Seq, JPEG: jpeg, Result: result}
	close(h.updated)
	h.updated = make(chan struct{})
	h.mu.Unlock()

	h.broadcast(result)
	return nil
}

// Latest returns the most recent snapshot, or nil before the first delivery.
func (h *Hub) Latest() *Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

// wait returns a channel that is closed on the next delivery.
func (h *Hub) wait() <-chan struct{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.updated
}

// Clients returns the number of connected websocket clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP handles WebSocket upgrade requests for the detection feed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// broadcast sends a result to all connected clients.
func (h *Hub) broadcast(result app.Result) {
	msg, err := json.Marshal(result)
	if err != nil {
		log.Printf("encode result: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Debugf("websocket write: %v", err)
		}
	}
}

// annotate draws the detection box on a BGR copy of the frame and encodes it as JPEG.
func annotate(frame *capture.Frame, result app.Result) ([]byte, error) {
	img := frame.BGR()
	defer img.Close()

	if result.Found {
		gocv.Rectangle(&img, result.Box.Rect(), boxColor, 2)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", result.Seq, err)
	}
	defer buf.Close()

	// The native buffer is released on return.
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}
