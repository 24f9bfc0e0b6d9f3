package util

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ledger-mirror/internal/pkg/log"
)

// GracefulStop blocks until SIGINT or SIGTERM, runs stopFunc and waits up to
// waitTimeout for waitGroup to drain.
func GracefulStop(waitGroup *sync.WaitGroup, waitTimeout time.Duration, stopFunc func()) {
	var gracefulStop = make(chan os.Signal, 1)
	signal.Notify(gracefulStop, syscall.SIGTERM, syscall.SIGINT)
	sig := <-gracefulStop

	log.Logger.Mirror.Infof("Received %s, stopping services", sig)
	stopFunc()

	if waitGroup == nil {
		return
	}

	if WaitTimeout(waitGroup, waitTimeout) {
		log.Logger.Mirror.Info("Service stopped")
	} else {
		log.Logger.Mirror.Warnf("Service stopped after timeout")
	}
}

// WaitTimeout waits for wg and reports whether it drained within timeout.
func WaitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	closeChan := make(chan struct{})
	go func() {
		defer close(closeChan)
		wg.Wait()
	}()

	select {
	case <-closeChan:
		return true
	case <-time.After(timeout):
		return false
	}
}
