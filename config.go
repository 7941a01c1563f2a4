package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ========================================
// Configuration
// Flags for one-shot settings, optional JSON file for everything else.
// The file is watched so log level changes apply without a restart.
// ========================================

// Config holds agent settings.
type Config struct {
	Port        int    `json:"port"`
	DeviceID    string `json:"device_id"`
	AdbPath     string `json:"adb_path"`
	LogLevel    string `json:"log_level"`
	LogFile     string `json:"log_file"`
	JournalPath string `json:"journal_path"`
	StayAwake   bool   `json:"stay_awake"`

	path string // config file location, empty when flags-only
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		Port:      8080,
		AdbPath:   "adb",
		LogLevel:  "info",
		StayAwake: true,
	}
}

// LoadConfig merges defaults, the optional JSON config file, and flags, in
// that order (flags win).
func LoadConfig(args []string) (Config, error) {
	cfg := DefaultConfig()

	fs := flag.NewFlagSet("marionette", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to JSON config file")
	port := fs.Int("port", 0, "listening port (1024-65535)")
	deviceID := fs.String("device", "", "adb device serial (default: the only connected device)")
	adbPath := fs.String("adb", "", "path to the adb binary")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	logFile := fs.String("log-file", "", "log file path (empty: console only)")
	journalPath := fs.String("journal", "", "action journal database path (empty: journal disabled)")
	noStayAwake := fs.Bool("no-stay-awake", false, "do not keep the device awake while running")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if *configPath != "" {
		if err := cfg.loadFile(*configPath); err != nil {
			return cfg, err
		}
		cfg.path = *configPath
	}

	if *port != 0 {
		cfg.Port = *port
	}
	if *deviceID != "" {
		cfg.DeviceID = *deviceID
	}
	if *adbPath != "" {
		cfg.AdbPath = *adbPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}
	if *journalPath != "" {
		cfg.JournalPath = *journalPath
	}
	if *noStayAwake {
		cfg.StayAwake = false
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ========================================
// ConfigWatcher - hot reload
// ========================================

// ConfigWatcher re-reads the config file on change and applies the log
// level live. Other settings require a restart.
type ConfigWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	mu      sync.Mutex
}

// NewConfigWatcher returns a watcher for the given config file, or nil when
// the agent runs flags-only.
func NewConfigWatcher(cfg Config) *ConfigWatcher {
	if cfg.path == "" {
		return nil
	}
	return &ConfigWatcher{
		path:   cfg.path,
		stopCh: make(chan struct{}),
	}
}

// Start begins watching the config file's directory (editors often replace
// the file, so watching the file itself misses rewrites).
func (w *ConfigWatcher) Start() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return err
	}

	LogInfo("config").Str("path", w.path).Msg("Started watching config file")

	go w.watch()
	return nil
}

// Stop stops watching.
func (w *ConfigWatcher) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		close(w.stopCh)
		w.watcher.Close()
		w.watcher = nil
	}
}

func (w *ConfigWatcher) watch() {
	// Debounce: editors fire several events per save
	var debounceTimer *time.Timer
	debounceDelay := 300 * time.Millisecond

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			LogWarn("config").Err(err).Msg("Config watcher error")
		}
	}
}

func (w *ConfigWatcher) reload() {
	var cfg Config
	if err := cfg.loadFile(w.path); err != nil {
		LogWarn("config").Err(err).Msg("Ignoring unreadable config change")
		return
	}
	if cfg.LogLevel != "" {
		SetLogLevel(cfg.LogLevel)
		LogInfo("config").Str("level", cfg.LogLevel).Msg("Applied log level from config change")
	}
}
