package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// WatchSignals cancels the given context on SIGTERM or SIGINT. The returned
// func stops watching.
func WatchSignals(cancel context.CancelFunc) (stop func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig, ok := <-sigChan
		if ok {
			log.WithField("signal", sig.String()).Info("shutting down")
			cancel()
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(sigChan)
	}
}
