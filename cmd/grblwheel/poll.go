package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mastercactapus/grblwheel/machine/grbl"
)

const realtimeStatus = '?'

// pollStatus requests a status report every interval and publishes the
// resulting link state. It returns when ctx is done.
func pollStatus(ctx context.Context, link *grbl.Link, interval time.Duration, publish func(grbl.State)) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		if !link.Connected() {
			continue
		}
		err := link.WriteRealtime(realtimeStatus)
		if err != nil {
			log.WithError(err).Debug("request status")
			continue
		}
		for line := range link.ReadAvailableLines() {
			log.WithField("line", line).Debug("controller")
		}
		publish(link.State())
	}
}
