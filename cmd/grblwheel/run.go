package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mastercactapus/grblwheel/machine"
	"github.com/mastercactapus/grblwheel/machine/grbl"
	"github.com/mastercactapus/grblwheel/store"
)

func grblPorts() []grbl.PortInfo {
	return newLink().ListPorts()
}

func newLink() *grbl.Link {
	return grbl.NewLink(grbl.Options{
		Open:         grbl.SerialOpener(cfg.Serial.ReadTimeout),
		ReplyTimeout: cfg.Serial.ReplyTimeout,
	})
}

// Opening the port resets most boards; Grbl needs a moment to boot.
const bannerTimeout = 2500 * time.Millisecond

// waitBanner reads from link until Grbl announces itself or timeout
// passes. It reports whether the banner was seen.
func waitBanner(link *grbl.Link, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for line := range link.ReadAvailableLines() {
			log.WithField("line", line).Debug("controller")
			if grbl.IsBanner(line) {
				return true
			}
		}
	}
	return false
}

func doRun(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetString("port")
	baud, _ := cmd.Flags().GetInt("baud")
	startLine, _ := cmd.Flags().GetInt("start-line")
	if port == "" {
		port = cfg.Serial.Port
	}
	if port == "" {
		return errors.New("no serial port, use --port or set serial.port")
	}
	if baud <= 0 {
		baud = cfg.Serial.Baud
	}

	dir, err := store.Open(filepath.Dir(args[0]))
	if err != nil {
		return err
	}
	name := filepath.Base(args[0])

	link := newLink()
	err = link.Connect(port, baud)
	if err != nil {
		return err
	}
	defer link.Disconnect()

	r := machine.NewRunner(link, dir)
	out := cmd.OutOrStdout()
	r.SetProgressCallback(func(p machine.Progress) {
		if p.State == machine.StateRunning {
			fmt.Fprintf(out, "\r%s: %d/%d", p.Filename, p.CurrentLine, p.TotalLines)
		}
	})

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		r.Stop()
	}()

	if !waitBanner(link, bannerTimeout) {
		log.WithField("port", port).Debug("no Grbl banner, sending anyway")
	}

	r.Run(name, startLine)
	fmt.Fprintln(out)

	p := r.Progress()
	switch {
	case p.State == machine.StateError:
		return fmt.Errorf("line %d: %s", p.CurrentLine+1, p.ErrorMessage)
	case errors.Is(ctx.Err(), context.Canceled) && p.CurrentLine < p.TotalLines:
		log.WithField("line", p.CurrentLine).Warn("stopped")
	default:
		log.WithField("lines", p.TotalLines).Info("done")
	}
	return nil
}
