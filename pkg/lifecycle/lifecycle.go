// Package lifecycle coordinates startup, long-running workers, and graceful
// shutdown across subsystems.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ReadinessChecker reports whether a subsystem is ready to serve traffic.
type ReadinessChecker interface {
	Ready() bool
}

// Coordinator manages startup hooks, background workers, and shutdown hooks.
// Workers receive the coordinator's context and are expected to return once
// it is cancelled; Shutdown waits for them within a grace period so an
// in-flight pass can finish.
type Coordinator struct {
	ctx        context.Context
	cancel     context.CancelFunc
	startupWg  sync.WaitGroup
	workerWg   sync.WaitGroup
	shutdownWg sync.WaitGroup
	ready      bool
	readyMu    sync.RWMutex
}

// New creates a Coordinator with a cancellable context.
func New() *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context returns the coordinator's context, cancelled on shutdown.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// OnStartup registers a function to run concurrently during startup.
func (c *Coordinator) OnStartup(fn func()) {
	c.startupWg.Go(fn)
}

// OnShutdown registers a function to run concurrently during shutdown.
// Shutdown hooks should block on <-c.Context().Done() before executing cleanup.
func (c *Coordinator) OnShutdown(fn func()) {
	c.shutdownWg.Go(fn)
}

// Go starts a long-running worker bound to the coordinator's context.
// The worker must return when the context is cancelled.
func (c *Coordinator) Go(fn func(ctx context.Context)) {
	c.workerWg.Go(func() {
		fn(c.ctx)
	})
}

// Ready returns true after all startup hooks have completed.
func (c *Coordinator) Ready() bool {
	c.readyMu.RLock()
	defer c.readyMu.RUnlock()
	return c.ready
}

// WaitForStartup blocks until all startup hooks have completed and sets the ready flag.
func (c *Coordinator) WaitForStartup() {
	c.startupWg.Wait()
	c.readyMu.Lock()
	c.ready = true
	c.readyMu.Unlock()
}

// Shutdown cancels the context and waits for workers and shutdown hooks
// to complete within the given grace period.
func (c *Coordinator) Shutdown(grace time.Duration) error {
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.workerWg.Wait()
		c.shutdownWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(grace):
		return fmt.Errorf("shutdown incomplete after %v", grace)
	}
}
