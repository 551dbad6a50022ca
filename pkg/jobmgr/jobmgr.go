// Package jobmgr runs named background jobs at most once at a time.
//
//	jm := jobmgr.NewManager(ctx, nil)
//	err := jm.StartAsync("register:123", func(ctx context.Context) error {
//	    return register(ctx, "123")
//	})
//
// Starting a name that is still running fails with ErrRunning. Jobs share
// the manager's context; Wait blocks until every job has returned.
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrRunning    = errors.New("job is already running")
	ErrNotRunning = errors.New("job is not running")
)

// StatusReporter receives lifecycle events: "running:<name>",
// "error:<name>:<err>" and "done:<name>".
type StatusReporter func(string)

// Manager tracks running jobs. It is safe for concurrent use.
type Manager struct {
	ctx      context.Context
	reporter StatusReporter

	mu   sync.Mutex
	jobs map[string]context.CancelFunc
	wg   sync.WaitGroup
}

// NewManager creates a manager whose jobs are cancelled with ctx. The
// reporter may be nil.
func NewManager(ctx context.Context, reporter StatusReporter) *Manager {
	return &Manager{
		ctx:      ctx,
		reporter: reporter,
		jobs:     make(map[string]context.CancelFunc),
	}
}

// StartAsync runs runner in its own goroutine under name.
func (m *Manager) StartAsync(name string, runner func(ctx context.Context) error) error {
	m.mu.Lock()
	if _, exists := m.jobs[name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRunning, name)
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.jobs[name] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer m.finish(name)

		m.report("running:" + name)
		if err := runner(ctx); err != nil {
			m.report("error:" + name + ":" + err.Error())
			return
		}
		m.report("done:" + name)
	}()
	return nil
}

// Stop cancels a running job. The job is forgotten once its runner returns.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cancel, ok := m.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	cancel()
	return nil
}

// List returns the names of running jobs, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Wait blocks until all started jobs have returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) finish(name string) {
	m.mu.Lock()
	if cancel, ok := m.jobs[name]; ok {
		cancel()
		delete(m.jobs, name)
	}
	m.mu.Unlock()
}

func (m *Manager) report(s string) {
	if m.reporter != nil {
		m.reporter(s)
	}
}
