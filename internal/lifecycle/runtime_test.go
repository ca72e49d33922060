package lifecycle

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRuntime_Run_ShutsDownCleanlyOnContextCancel(t *testing.T) {
	st := newTestStore(t)

	rt := &Runtime{
		Addr:    "127.0.0.1:0",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
		Store:   st,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not shut down within timeout")
	}
}

func TestRuntime_Run_WithWatchLoopJoinsBeforeReturning(t *testing.T) {
	st := newTestStore(t)
	u := &fakeUpdater{}
	loop := NewWatchLoop([]SourceUpdater{u}, st, time.Hour)

	rt := &Runtime{
		Addr:      "127.0.0.1:0",
		Handler:   http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
		Store:     st,
		Watch:     true,
		WatchLoop: loop,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not shut down within timeout")
	}
}
