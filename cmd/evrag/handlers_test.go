package main

import (
	"os"
	"testing"
	"time"
)

func TestCancelOnSignalFiresOnSignal(t *testing.T) {
	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})
	cancelled := make(chan struct{})

	go cancelOnSignal(sigCh, done, func() { close(cancelled) })

	sigCh <- os.Interrupt
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("cancel not invoked after signal")
	}
}

func TestCancelOnSignalIgnoresTeardown(t *testing.T) {
	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})
	cancelled := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		cancelOnSignal(sigCh, done, func() { close(cancelled) })
		close(exited)
	}()

	// Normal completion closes done before any signal arrives; the
	// watcher must exit without cancelling.
	close(done)
	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("watcher did not exit on teardown")
	}
	select {
	case <-cancelled:
		t.Fatal("cancel invoked without a signal")
	default:
	}
}
