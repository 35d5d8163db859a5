// Package startup brings process components up in dependency order and
// tears them down in reverse.
package startup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
)

// Component is one piece of the process with a start and a stop.
type Component interface {
	Name() string
	Requires() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type State int

const (
	StatePending State = iota
	StateRunning
	StateStopped
	StateFailed
)

var errCycle = errors.New("dependency cycle")

// Runner starts registered components. A failed pass is retried with
// fibonacci backoff; components already running are not restarted.
type Runner struct {
	logger      ectologger.Logger
	attempts    int
	backoffUnit time.Duration

	names   []string
	byName  map[string]Component
	states  map[string]State
	running []string
}

func NewRunner(logger ectologger.Logger, attempts int) *Runner {
	return &Runner{
		logger:      logger,
		attempts:    max(attempts, 1),
		backoffUnit: time.Second,
		byName:      map[string]Component{},
		states:      map[string]State{},
	}
}

// Add registers c. Registration order breaks ties between independent
// components.
func (r *Runner) Add(c Component) {
	if _, dup := r.byName[c.Name()]; !dup {
		r.names = append(r.names, c.Name())
	}
	r.byName[c.Name()] = c
}

func (r *Runner) State(name string) State { return r.states[name] }

func (r *Runner) Start(ctx context.Context) error {
	prev, wait := time.Duration(0), r.backoffUnit
	var err error
	for attempt := 1; ; attempt++ {
		if err = r.startAll(ctx); err == nil {
			return nil
		}
		r.logger.WithError(err).WithField("attempt", attempt).Error("startup pass failed")
		if attempt >= r.attempts {
			return fmt.Errorf("startup failed after %d attempts: %w", r.attempts, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		prev, wait = wait, prev+wait
	}
}

func (r *Runner) startAll(ctx context.Context) error {
	for _, name := range r.names {
		if err := r.start(ctx, name, map[string]bool{}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) start(ctx context.Context, name string, path map[string]bool) error {
	if r.states[name] == StateRunning {
		return nil
	}
	c, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("unknown component %q", name)
	}
	if path[name] {
		return fmt.Errorf("%w at %q", errCycle, name)
	}
	path[name] = true

	for _, dep := range c.Requires() {
		if err := r.start(ctx, dep, path); err != nil {
			return err
		}
	}

	r.logger.WithField("component", name).Info("starting")
	if err := c.Start(ctx); err != nil {
		r.states[name] = StateFailed
		return fmt.Errorf("%s: %w", name, err)
	}
	r.states[name] = StateRunning
	r.running = append(r.running, name)
	return nil
}

// Stop stops running components in reverse start order and returns the
// first error.
func (r *Runner) Stop(ctx context.Context) error {
	var first error
	for i := len(r.running) - 1; i >= 0; i-- {
		name := r.running[i]
		if r.states[name] != StateRunning {
			continue
		}
		log := r.logger.WithField("component", name)
		if err := r.byName[name].Stop(ctx); err != nil {
			log.WithError(err).Error("stop failed")
			first = keepFirst(first, err)
			continue
		}
		log.Info("stopped")
		r.states[name] = StateStopped
	}
	return first
}

func keepFirst(first, err error) error {
	if first != nil {
		return first
	}
	return err
}

// Step is a Component built from plain functions.
type Step struct {
	ID        string
	DependsOn []string
	OnStart   func(ctx context.Context) error
	OnStop    func(ctx context.Context) error
}

func (s *Step) Name() string { return s.ID }

func (s *Step) Requires() []string { return s.DependsOn }

func (s *Step) Start(ctx context.Context) error {
	if s.OnStart == nil {
		return nil
	}
	return s.OnStart(ctx)
}

func (s *Step) Stop(ctx context.Context) error {
	if s.OnStop == nil {
		return nil
	}
	return s.OnStop(ctx)
}
