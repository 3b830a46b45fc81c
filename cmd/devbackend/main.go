// Command devbackend serves the stand-in analysis endpoint for local work.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dharsanguruparan/lunashield/internal/config"
	"github.com/dharsanguruparan/lunashield/internal/devbackend"
	"github.com/dharsanguruparan/lunashield/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		os.Stderr.WriteString("init logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	srv, err := devbackend.New(devbackend.Options{
		Address:     cfg.BackendAddress,
		Frames:      cfg.Frames,
		MaxBytes:    cfg.MaxUploadBytes,
		Unavailable: cfg.BackendUnavailable,
		Log:         log,
	})
	if err != nil {
		log.WithError(err).Fatal("init dev backend")
	}
	if cfg.BackendUnavailable {
		log.Warn("model marked unavailable; /analyze will answer 503")
	}
	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Error("dev backend stopped")
		os.Exit(1)
	}
}
