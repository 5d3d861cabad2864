// Package pairsync debounces data entry and mirrors pair-shared phases into
// the partner's workflow.
package pairsync

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Scheduler runs keyed actions after a delay. Scheduling under a key that
// already has a pending action replaces it; the replaced action never runs.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	tasks   map[string]*task
	gen     uint64
	running sync.WaitGroup
	stopped bool
}

type task struct {
	gen    uint64
	timer  *time.Timer
	action func(ctx context.Context)
}

func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{ctx: ctx, cancel: cancel, tasks: make(map[string]*task)}
}

// Schedule arranges for action to run after delay under key.
func (s *Scheduler) Schedule(key string, delay time.Duration, action func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if prev, ok := s.tasks[key]; ok {
		prev.timer.Stop()
	}
	s.gen++
	t := &task{gen: s.gen, action: action}
	s.tasks[key] = t
	t.timer = time.AfterFunc(delay, func() { s.fire(key, t.gen) })
}

func (s *Scheduler) fire(key string, gen uint64) {
	s.mu.Lock()
	current, ok := s.tasks[key]
	if !ok || current.gen != gen || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.tasks, key)
	s.running.Add(1)
	s.mu.Unlock()

	defer s.running.Done()
	current.action(s.ctx)
}

// Cancel drops the pending action under key and reports whether there was one.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[key]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(s.tasks, key)
	return true
}

// CancelPrefix drops every pending action whose key starts with prefix.
func (s *Scheduler) CancelPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, t := range s.tasks {
		if strings.HasPrefix(key, prefix) {
			t.timer.Stop()
			delete(s.tasks, key)
			n++
		}
	}
	return n
}

// Pending returns the number of actions waiting to fire.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Flush runs pending actions immediately, including any they schedule in
// turn, and waits for them.
func (s *Scheduler) Flush() {
	for round := 0; round < 8; round++ {
		s.mu.Lock()
		due := make([]func(context.Context), 0, len(s.tasks))
		for key, t := range s.tasks {
			t.timer.Stop()
			due = append(due, t.action)
			delete(s.tasks, key)
		}
		s.mu.Unlock()
		if len(due) == 0 {
			break
		}
		for _, action := range due {
			action(s.ctx)
		}
	}
	s.running.Wait()
}

// Stop cancels every pending action and the context of running ones, then
// waits for running actions to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for key, t := range s.tasks {
		t.timer.Stop()
		delete(s.tasks, key)
	}
	s.mu.Unlock()
	s.cancel()
	s.running.Wait()
}
