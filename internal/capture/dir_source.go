package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

// DirSource replays the image files of a directory as frames, in name order.
// Every image is resized to the configured frame size so downstream
// dimension checks see a steady stream.
type DirSource struct {
	dir     string
	width   int
	height  int
	loop    bool
	files   []string
	index   int
	seq     uint64
	fps     int
	running bool
	mu      sync.Mutex
}

// NewDirSource creates a source over the images in dir.
func NewDirSource(dir string, width, height int, loop bool) *DirSource {
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	return &DirSource{
		dir:    dir,
		width:  width,
		height: height,
		loop:   loop,
		fps:    DefaultFPS,
	}
}

// Open lists the directory. A directory without images is an error.
func (s *DirSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read frame directory: %w", err)
	}

	s.files = s.files[:0]
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			s.files = append(s.files, filepath.Join(s.dir, entry.Name()))
		}
	}
	if len(s.files) == 0 {
		return fmt.Errorf("no images in %s", s.dir)
	}
	sort.Strings(s.files)
	log.WithFields(log.Fields{
		"dir":    s.dir,
		"images": len(s.files),
		"loop":   s.loop,
	}).Info("Frame directory opened")

	s.index = 0
	s.running = true
	return nil
}

func (s *DirSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

// ReadFrame decodes the next image. Undecodable files are reported and skipped
// on the following call.
func (s *DirSource) ReadFrame() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, ErrCameraNotOpen
	}
	if s.index >= len(s.files) {
		if !s.loop {
			return nil, fmt.Errorf("%w: no more images", ErrFrameNotReady)
		}
		s.index = 0
	}

	path := s.files[s.index]
	s.index++

	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	if b := img.Bounds(); b.Dx() != s.width || b.Dy() != s.height {
		img = imaging.Resize(img, s.width, s.height, imaging.Linear)
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", filepath.Base(path), err)
	}

	s.seq++
	frame := NewFrame(mat, OrderBGR)
	frame.Seq = s.seq
	return frame, nil
}

func (s *DirSource) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fps = fps
}

func (s *DirSource) FPS() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fps
}

func (s *DirSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
