// Package runner owns process lifecycle: banner, start/stop hooks, and a
// bounded drain on shutdown.
package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/dimiro1/banner"
)

type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Drainer finishes in-flight work before the process exits. The HTTP
// server's graceful Shutdown is the usual implementation.
type Drainer interface {
	Drain() error
}

// Hooks run at the edges of the lifecycle, typically for log lines.
type Hooks struct {
	OnStart func()
	OnStop  func()
}

// LifecycleRunner blocks in Run until its context is canceled, then drains
// with a deadline. Stop is safe to call from any goroutine and is idempotent.
type LifecycleRunner struct {
	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	drainer Drainer
	hooks   Hooks
	timeout time.Duration
	stopped chan struct{}
	stopErr error
}

func NewLifecycleRunner(drainer Drainer, hooks Hooks, timeout time.Duration) *LifecycleRunner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LifecycleRunner{
		state:   StateNew,
		drainer: drainer,
		hooks:   hooks,
		timeout: timeout,
		stopped: make(chan struct{}),
	}
}

func (r *LifecycleRunner) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateNew {
		r.mu.Unlock()
		return errors.New("runner already started")
	}
	r.state = StateStarting
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	PrintBanner()
	if r.hooks.OnStart != nil {
		r.hooks.OnStart()
	}
	r.setState(StateRunning)

	<-ctx.Done()
	return r.shutdown()
}

// Stop cancels the run loop and waits for the drain to finish.
func (r *LifecycleRunner) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return r.shutdown()
}

func (r *LifecycleRunner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *LifecycleRunner) shutdown() error {
	r.mu.Lock()
	if r.state == StateDraining || r.state == StateStopped {
		r.mu.Unlock()
		<-r.stopped
		return r.stopErr
	}
	r.state = StateDraining
	r.mu.Unlock()

	if r.drainer != nil {
		done := make(chan error, 1)
		go func() { done <- r.drainer.Drain() }()
		select {
		case err := <-done:
			r.stopErr = err
		case <-time.After(r.timeout):
			r.stopErr = errors.New("drain timed out")
		}
	}
	if r.hooks.OnStop != nil {
		r.hooks.OnStop()
	}
	r.setState(StateStopped)
	close(r.stopped)
	return r.stopErr
}

func (r *LifecycleRunner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

const EngineVersion = "dev"

func PrintBanner() {
	tpl := "{{ .Title \"CONVOY\" \"\" 0 }}\nVersion: " + EngineVersion + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}
