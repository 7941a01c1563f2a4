package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const version = "1.2.0"

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logCfg := DefaultLogConfig()
	logCfg.Level = cfg.LogLevel
	if cfg.LogFile != "" {
		logCfg.File = true
		logCfg.FilePath = cfg.LogFile
	}
	if err := InitLogger(logCfg); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer CloseLogger()

	driver, err := NewAdbDriver(cfg.AdbPath, cfg.DeviceID)
	if err != nil {
		LogError("main").Err(err).Msg("Invalid device configuration")
		os.Exit(1)
	}

	var journal *ActionJournal
	if cfg.JournalPath != "" {
		journal, err = OpenActionJournal(cfg.JournalPath)
		if err != nil {
			LogError("main").Err(err).Msg("Failed to open action journal")
			os.Exit(1)
		}
		defer journal.Close()
	}

	automator := NewAutomator(driver, journal)
	handler := NewHandler(automator, version)
	controller := NewSessionController(handler, driver, cfg.StayAwake)

	watcher := NewConfigWatcher(cfg)
	if err := watcher.Start(); err != nil {
		LogWarn("main").Err(err).Msg("Config watcher unavailable")
	}
	defer watcher.Stop()

	url, err := controller.Start(cfg.Port)
	if err != nil {
		LogError("main").Err(err).Msg("Failed to start session")
		os.Exit(1)
	}
	LogInfo("main").Str("url", url).Str("version", version).Msg("Marionette ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	LogInfo("main").Msg("Shutting down")
	if err := controller.Stop(); err != nil {
		LogWarn("main").Err(err).Msg("Session stop reported error")
	}
}
