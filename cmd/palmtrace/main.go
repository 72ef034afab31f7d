package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/palmtrace/internal/app"
	"github.com/ayusman/palmtrace/internal/config"
	"github.com/ayusman/palmtrace/internal/detector"
	"github.com/ayusman/palmtrace/internal/server"
	"github.com/ayusman/palmtrace/internal/store"
	"github.com/ayusman/palmtrace/internal/tray"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to a JSON config file")
		method     = flag.String("method", "", "Detection method: classifier, neuralnet or contour")
		source     = flag.String("source", "", "Camera index or a directory of images")
		loop       = flag.Bool("loop", false, "Replay a directory source forever")
		addr       = flag.String("addr", "", "HTTP listen address (empty keeps the config value)")
		dbPath     = flag.String("db", "", "SQLite database path")
		withTray   = flag.Bool("tray", false, "Show the system tray menu")
		logLevel   = flag.String("log-level", "", "Log level: trace, debug, info, warn, error")
	)
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override file values
	if *method != "" {
		m, err := detector.ParseMethod(*method)
		if err != nil {
			log.Fatalf("Invalid -method: %v", err)
		}
		cfg.Method = m.String()
	}
	if *source != "" {
		if id, err := strconv.Atoi(*source); err == nil {
			cfg.Source.Kind = config.SourceCamera
			cfg.Source.DeviceID = id
		} else {
			cfg.Source.Kind = config.SourceDir
			cfg.Source.Dir = *source
		}
	}
	if *loop {
		cfg.Source.Loop = true
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *withTray {
		cfg.Tray = true
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if cfg.Server.StaticDir == "" {
		cfg.Server.StaticDir = findWebDir()
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := cfg.ApplyLogLevel(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.WithFields(log.Fields{
		"method": cfg.Method,
		"source": sourceLabel(cfg),
	}).Info("Palmtrace - Hand Detection")

	// run returns only after its deferred cleanup has closed the run and the store
	if err := run(cfg); err != nil {
		if errors.Is(err, app.ErrInitialization) {
			log.WithError(err).Fatal("Detector could not be initialized")
		}
		log.Fatal(err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func run(cfg *config.Config) error {
	// Initialize the store
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}
	st, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	settings := st.Settings()
	enabled, err := settings.GetBool(store.SettingEnabled, true)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	if err := settings.Set(store.SettingMethod, cfg.Method); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	appCfg, err := cfg.App()
	if err != nil {
		return err
	}

	rec, err := store.NewRecorder(st, cfg.Method, sourceLabel(cfg), cfg.Source.Width, cfg.Source.Height)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	defer rec.Close()

	hub := server.NewHub()
	sinks := app.MultiSink{hub, rec}

	var tr *tray.Tray
	if cfg.Tray {
		tr = tray.New(cfg.Method)
		tr.SetEnabled(enabled)
		sinks = append(sinks, tr)
	}

	ctrl, err := app.New(appCfg, cfg.NewSource(), sinks)
	if err != nil {
		return err
	}
	if err := ctrl.Warmup(); err != nil {
		return err
	}

	toggle := &persistedToggle{ctrl: ctrl, settings: settings, tray: tr}
	toggle.SetEnabled(enabled)

	if cfg.Server.Addr != "" {
		srv := server.New(server.Config{
			StaticDir: cfg.Server.StaticDir,
			Store:     st,
			Hub:       hub,
			Toggle:    toggle,
			Method:    cfg.Method,
		})
		go func() {
			log.Infof("Starting server on %s", cfg.Server.Addr)
			if err := srv.ListenAndServe(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Server failed")
			}
		}()
	}

	if err := ctrl.Start(); err != nil {
		return err
	}
	defer ctrl.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if tr == nil {
		<-ctx.Done()
		log.Info("Shutting down")
		return nil
	}

	// The tray owns the main goroutine until it quits
	tr.OnToggle(func(on bool) { toggle.SetEnabled(on) })
	tr.OnSettings(func() {
		log.Infof("Viewer available at http://%s/", cfg.Server.Addr)
	})
	tr.OnQuit(stop)
	go func() {
		<-ctx.Done()
		tr.Quit()
	}()
	tr.Run()

	log.Info("Shutting down")
	return nil
}

// persistedToggle switches the controller and remembers the choice.
type persistedToggle struct {
	ctrl     *app.Controller
	settings *store.SettingsRepository
	tray     *tray.Tray
}

func (t *persistedToggle) IsEnabled() bool {
	return t.ctrl.IsEnabled()
}

func (t *persistedToggle) SetEnabled(enabled bool) {
	t.ctrl.SetEnabled(enabled)
	if t.tray != nil {
		t.tray.SetEnabled(enabled)
	}
	if err := t.settings.SetBool(store.SettingEnabled, enabled); err != nil {
		log.WithError(err).Warn("Failed to persist detection state")
	}
	log.WithField("enabled", enabled).Info("Detection toggled")
}

func sourceLabel(cfg *config.Config) string {
	if cfg.Source.Kind == config.SourceDir {
		return "dir:" + cfg.Source.Dir
	}
	return "camera:" + strconv.Itoa(cfg.Source.DeviceID)
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.palmtrace/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".palmtrace", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
