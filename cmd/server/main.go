// Command server runs the Luna Shield web front end. With --with-backend it
// also starts the local stand-in analysis service in the same process.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/lunashield/internal/admission"
	"github.com/dharsanguruparan/lunashield/internal/analysis"
	"github.com/dharsanguruparan/lunashield/internal/config"
	"github.com/dharsanguruparan/lunashield/internal/devbackend"
	"github.com/dharsanguruparan/lunashield/internal/logging"
	"github.com/dharsanguruparan/lunashield/internal/web"
)

func main() {
	withBackend := pflag.Bool("with-backend", false, "Also serve the stand-in analysis backend on LUNASHIELD_BACKEND_ADDRESS")
	pflag.Parse()

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

	client := analysis.NewClient(cfg.Endpoint, analysis.WithFieldName(cfg.FieldName), analysis.WithLogger(log))
	front, err := web.New(web.Options{
		Address:  cfg.Address,
		Policy:   admission.Policy{AllowedTypes: cfg.AllowedTypes, MaxBytes: cfg.MaxUploadBytes},
		Analyzer: client,
		Log:      log,
	})
	if err != nil {
		log.WithError(err).Fatal("init web front end")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return front.Run(ctx) })
	if *withBackend {
		backend, err := devbackend.New(devbackend.Options{
			Address:     cfg.BackendAddress,
			Frames:      cfg.Frames,
			MaxBytes:    cfg.MaxUploadBytes,
			Unavailable: cfg.BackendUnavailable,
			Log:         log.WithField("component", "devbackend"),
		})
		if err != nil {
			log.WithError(err).Fatal("init dev backend")
		}
		g.Go(func() error { return backend.Run(ctx) })
	}
	log.WithField("endpoint", client.Endpoint()).Info("analysis endpoint")

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}
