// Command rtl_daq runs one coherent multichannel RTL2832U/R820T
// acquisition unit: it opens every configured tuner, streams framed IQ
// blocks to stdout, and accepts runtime control over a named FIFO.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/petotamas/heimdall-daq-go/internal/acquisition"
	"github.com/petotamas/heimdall-daq-go/internal/daqcfg"
	"github.com/petotamas/heimdall-daq-go/internal/discovery"
	"github.com/petotamas/heimdall-daq-go/internal/rtlsdr"
	"github.com/petotamas/heimdall-daq-go/internal/siteloc"
	"github.com/spf13/pflag"
)

func main() {
	var (
		configPath    = pflag.StringP("config-file", "c", "daq_chain_config.ini", "DAQ chain configuration file.")
		serialMapPath = pflag.StringP("serial-map", "s", "serial_map.yaml", "Optional serial-to-index override map.")
		logLevel      = pflag.StringP("log-level", "l", "", "Override the config file's log_level (debug|info|warn|error).")
		help          = pflag.BoolP("help", "h", false, "Display help text.")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: rtl_daq [flags]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		return
	}

	if err := run(*configPath, *serialMapPath, *logLevel); err != nil {
		log.New(os.Stderr).Fatal("rtl_daq exiting", "err", err)
	}
}

func run(configPath, serialMapPath, logLevelOverride string) error {
	cfg, err := daqcfg.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.LogLevel
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	logger := log.New(os.Stderr)
	logger.SetLevel(parseLogLevel(level))

	serialOverrides, err := daqcfg.LoadSerialMap(serialMapPath)
	if err != nil {
		return fmt.Errorf("load serial map: %w", err)
	}

	engine, err := acquisition.Start(cfg, serialOverrides, openRealDevice, os.Stdout, logger)
	if err != nil {
		return fmt.Errorf("start acquisition: %w", err)
	}

	if cfg.HasSite {
		siteloc.LogSiteLocation(logger, cfg.Lat, cfg.Lon)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Advertise {
		discovery.Announce(ctx, logger, cfg.UnitID, cfg.UnitID, 0)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, requesting graceful shutdown", "signal", sig)
		engine.Coordinator.RequestExit()
	}()

	logger.Info("acquisition unit starting",
		"name", cfg.Name, "unit_id", cfg.UnitID, "channels", cfg.NumCh,
		"config", filepath.Clean(configPath))

	return engine.Run()
}

// openRealDevice is the production acquisition.OpenFunc: open the
// tuner at its resolved driver index against the real cgo binding.
func openRealDevice(index int, logger *log.Logger) (rtlsdr.Device, error) {
	return rtlsdr.Open(index, logger)
}

func parseLogLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
