package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mastercactapus/grblwheel/hardware"
	"github.com/mastercactapus/grblwheel/store"
)

func doServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	files, err := store.Open(cfg.Paths.UploadDir)
	if err != nil {
		return err
	}
	link := newLink()
	if cfg.Serial.Port != "" {
		err = link.Connect(cfg.Serial.Port, cfg.Serial.Baud)
		if err != nil {
			log.WithError(err).Warn("connect on startup")
		}
	}
	a := newAPI(cfg, link, files)
	defer a.Close()

	hw := hardware.New(cfg)
	d := &hardware.Dispatcher{
		Link:     link,
		Jobs:     a.runner,
		Macros:   a.macros,
		JogSteps: cfg.Hardware.JogSteps,
	}
	d.Attach(hw)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           a,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", srv.Addr).Info("listening")
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return pollStatus(ctx, link, cfg.Serial.StatusInterval, a.publishState)
	})
	g.Go(func() error {
		err := hw.Start()
		if err != nil {
			return err
		}
		<-ctx.Done()
		return hw.Stop()
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		a.runner.Stop()
		a.runner.Resume()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		link.Disconnect()
		return err
	})

	return g.Wait()
}
