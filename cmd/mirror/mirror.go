package main

import (
	"flag"
	"time"

	"ledger-mirror/internal/mirror"
	"ledger-mirror/internal/pkg/config"
	"ledger-mirror/internal/pkg/log"
	"ledger-mirror/internal/pkg/util"
)

const (
	waitTimeout = time.Second * 10
)

type flags struct {
	logLevel   string
	configFile string
	envFile    string
}

// Setup flags
func getFlags() (f flags) {
	flag.StringVar(&f.logLevel, "log", "info", "log level [debug|info|warn|error|fatal]")
	flag.StringVar(&f.configFile, "config", "config.yml", "path to yaml config")
	flag.StringVar(&f.envFile, "envFile", "", "path to .env file")
	flag.Parse()

	return
}

func main() {
	f := getFlags()
	err := log.Setup(f.logLevel)
	if err != nil {
		log.Logger.Mirror.Fatalf("Log setup: %s", err)
	}

	cfg, err := config.LoadFile(f.configFile, f.envFile)
	if err != nil {
		log.Logger.Mirror.Fatalf("Config: %s", err)
	}

	app, err := mirror.NewMirror(cfg)
	if err != nil {
		log.Logger.Mirror.Fatalf("NewMirror: %s", err)
	}

	// API and sync
	go func() {
		if err := app.Run(); err != nil {
			log.Logger.Mirror.Fatalf("Mirror: %s", err)
		}
	}()
	// Metrics
	go func() {
		if err := app.RunMetrics(); err != nil {
			log.Logger.Mirror.Fatalf("Metrics: %s", err)
		}
	}()

	// Termination handler.
	util.GracefulStop(app.WaitGroup(), waitTimeout, func() {
		err = app.Stop()
		if err != nil {
			log.Logger.Mirror.Errorf(err.Error())
		}
	})
}
