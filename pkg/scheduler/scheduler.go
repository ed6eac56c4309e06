// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iot-dsa/dslink-go/internal/pipe"
)

const (
	// DefaultWorkers of a Scheduler's pool.
	DefaultWorkers = 4

	// Resolution of periodic jobs. Shorter intervals are rejected.
	Resolution = 100 * time.Millisecond
)

type job struct {
	task      func()
	interval  time.Duration
	nextEvent time.Time
}

// Scheduler runs tasks on a worker pool, either immediately, after a delay
// or periodically.
type Scheduler struct {
	queue *pipe.Pipe[func()]
	wg    sync.WaitGroup

	mutex   sync.Mutex
	jobs    map[string]*job
	timers  map[*time.Timer]struct{}
	stopped bool

	stopSyn chan struct{}
	stopAck chan struct{}
}

// New creates and starts a Scheduler with a number of workers, at least one.
func New(workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}

	s := &Scheduler{
		queue:   pipe.New[func()](),
		jobs:    make(map[string]*job),
		timers:  make(map[*time.Timer]struct{}),
		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}

	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	go s.loop()

	return s
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for task := range s.queue.C() {
		run(task)
	}
}

func run(task func()) {
	defer func() {
		if p := recover(); p != nil {
			log.WithFields(log.Fields{
				"panic": p,
				"stack": string(debug.Stack()),
			}).Warn("Scheduled task panicked")
		}
	}()

	task()
}

// Submit a task for execution on the worker pool. Tasks submitted after Stop
// are dropped.
func (s *Scheduler) Submit(task func()) {
	if !s.queue.Push(task) {
		log.Debug("Dropping task of stopped scheduler")
	}
}

// After submits a task after a delay. The returned function cancels it.
func (s *Scheduler) After(delay time.Duration, task func()) (cancel func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.stopped {
		return func() {}
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mutex.Lock()
		delete(s.timers, timer)
		s.mutex.Unlock()

		s.Submit(task)
	})
	s.timers[timer] = struct{}{}

	return func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		timer.Stop()
		delete(s.timers, timer)
	}
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(Resolution)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopSyn:
			close(s.stopAck)
			return

		case t := <-ticker.C:
			s.fire(t)
		}
	}
}

func (s *Scheduler) fire(t time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for name, job := range s.jobs {
		if job.nextEvent.After(t) {
			continue
		}

		job.nextEvent = job.nextEvent.Add(job.interval)
		if job.nextEvent.Before(t) {
			job.nextEvent = t.Add(job.interval)
		}
		s.Submit(job.task)

		log.WithFields(log.Fields{
			"job":        name,
			"interval":   job.interval,
			"next_event": job.nextEvent,
		}).Trace("Scheduler executed job")
	}
}

// Register a periodic job by its name, function and interval. The first
// execution happens after one interval. The interval must be at least the
// Resolution.
func (s *Scheduler) Register(name string, task func(), interval time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler was stopped")
	}

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("a job named %s is already registered", name)
	}

	if interval < Resolution {
		return fmt.Errorf("given interval %v is shorter than %v", interval, Resolution)
	}

	s.jobs[name] = &job{
		task:      task,
		interval:  interval,
		nextEvent: time.Now().Add(interval),
	}
	return nil
}

// Unregister a job by its name.
func (s *Scheduler) Unregister(name string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.jobs, name)
}

// Registered checks if a job is registered.
func (s *Scheduler) Registered(name string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, exists := s.jobs[name]
	return exists
}

// Stop this Scheduler. Pending timers are cancelled, queued tasks are still
// executed. Stop waits until the workers have finished.
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	if s.stopped {
		s.mutex.Unlock()
		return
	}
	s.stopped = true
	for timer := range s.timers {
		timer.Stop()
	}
	s.timers = nil
	s.jobs = make(map[string]*job)
	s.mutex.Unlock()

	close(s.stopSyn)
	<-s.stopAck

	s.queue.Close()
	s.wg.Wait()
}
