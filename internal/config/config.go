// Package config loads and validates the application configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/palmtrace/internal/app"
	"github.com/ayusman/palmtrace/internal/capture"
	"github.com/ayusman/palmtrace/internal/detector"
)

// ErrInvalid is returned when a configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Source kinds.
const (
	SourceCamera = "camera"
	SourceDir    = "dir"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the complete application configuration.
type Config struct {
	// Method is the detection strategy: classifier, neuralnet or contour.
	Method string `json:"method" validate:"required,oneof=classifier neuralnet contour"`

	CascadePath     string  `json:"cascade_path" validate:"required_if=Method classifier"`
	ModelPath       string  `json:"model_path" validate:"required_if=Method neuralnet"`
	ModelConfigPath string  `json:"model_config_path" validate:"required_if=Method neuralnet"`
	MinConfidence   float64 `json:"min_confidence" validate:"gt=0,lt=1"`
	InputSize       int     `json:"input_size" validate:"gte=32,lte=1024"`
	BoxHalfSize     int     `json:"box_half_size" validate:"gt=0"`

	Contour ContourConfig `json:"contour"`
	Source  SourceConfig  `json:"source"`
	Server  ServerConfig  `json:"server"`

	DBPath   string `json:"db_path"`
	LogLevel string `json:"log_level" validate:"oneof=trace debug info warn error"`
	Tray     bool   `json:"tray"`
}

// ContourConfig tunes the skin-contour strategy.
type ContourConfig struct {
	MinDefects   int     `json:"min_defects" validate:"gte=0"`
	MaxDefects   int     `json:"max_defects" validate:"gtefield=MinDefects"`
	MinArea      float64 `json:"min_area" validate:"gte=0"`
	MaxAngle     float64 `json:"max_angle" validate:"gt=0,lte=180"`
	DepthDivisor float64 `json:"depth_divisor" validate:"gt=0"`
	KernelSize   int     `json:"kernel_size" validate:"gt=0"`
}

// SourceConfig selects where frames come from.
type SourceConfig struct {
	Kind     string `json:"kind" validate:"oneof=camera dir"`
	DeviceID int    `json:"device_id" validate:"gte=0"`
	Dir      string `json:"dir" validate:"required_if=Kind dir"`
	Loop     bool   `json:"loop"`
	Width    int    `json:"width" validate:"gt=0"`
	Height   int    `json:"height" validate:"gt=0"`
	FPS      int    `json:"fps" validate:"gt=0,lte=120"`
}

// ServerConfig configures the HTTP server. An empty Addr disables it.
type ServerConfig struct {
	Addr      string `json:"addr" validate:"omitempty,hostname_port"`
	StaticDir string `json:"static_dir" validate:"omitempty,dir"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	d := detector.DefaultConfig()
	return &Config{
		Method:          d.Method.String(),
		CascadePath:     d.CascadePath,
		ModelPath:       d.ModelPath,
		ModelConfigPath: d.ModelConfigPath,
		MinConfidence:   d.MinConfidence,
		InputSize:       d.InputSize,
		BoxHalfSize:     d.BoxHalfSize,
		Contour: ContourConfig{
			MinDefects:   d.Contour.MinDefects,
			MaxDefects:   d.Contour.MaxDefects,
			MinArea:      d.Contour.MinArea,
			MaxAngle:     d.Contour.MaxAngle,
			DepthDivisor: d.Contour.DepthDivisor,
			KernelSize:   d.Contour.KernelSize,
		},
		Source: SourceConfig{
			Kind:   SourceCamera,
			Width:  capture.DefaultWidth,
			Height: capture.DefaultHeight,
			FPS:    capture.DefaultFPS,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8765",
		},
		DBPath:   "palmtrace.db",
		LogLevel: "info",
	}
}

// Load reads a JSON configuration file. Fields omitted from the file keep
// their default values, so partial configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Report json names in errors
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
	})
	return validate
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

// Detector converts the configuration into detector settings.
func (c *Config) Detector() (detector.Config, error) {
	method, err := detector.ParseMethod(c.Method)
	if err != nil {
		return detector.Config{}, err
	}

	return detector.Config{
		Method:          method,
		CascadePath:     c.CascadePath,
		ModelPath:       c.ModelPath,
		ModelConfigPath: c.ModelConfigPath,
		MinConfidence:   c.MinConfidence,
		InputSize:       c.InputSize,
		BoxHalfSize:     c.BoxHalfSize,
		Contour: detector.ContourOptions{
			MinDefects:   c.Contour.MinDefects,
			MaxDefects:   c.Contour.MaxDefects,
			MinArea:      c.Contour.MinArea,
			MaxAngle:     c.Contour.MaxAngle,
			DepthDivisor: c.Contour.DepthDivisor,
			KernelSize:   c.Contour.KernelSize,
		},
	}, nil
}

// App converts the configuration into controller settings.
func (c *Config) App() (app.Config, error) {
	d, err := c.Detector()
	if err != nil {
		return app.Config{}, err
	}
	return app.Config{
		Detector: d,
		Width:    c.Source.Width,
		Height:   c.Source.Height,
		FPS:      c.Source.FPS,
	}, nil
}

// NewSource creates the frame source described by the configuration.
func (c *Config) NewSource() capture.Camera {
	if c.Source.Kind == SourceDir {
		return capture.NewDirSource(c.Source.Dir, c.Source.Width, c.Source.Height, c.Source.Loop)
	}
	return capture.NewCamera(c.Source.DeviceID, c.Source.Width, c.Source.Height)
}

// ApplyLogLevel sets the global logger level.
func (c *Config) ApplyLogLevel() error {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	log.SetLevel(level)
	return nil
}
