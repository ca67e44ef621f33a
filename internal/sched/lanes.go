// Package sched provides the host's three execution lanes: partition-pinned
// workers, a single global coordinator, and a background pool for blocking
// I/O. State owned by a lane is mutated only by closures submitted to that
// lane; there is no shared-mutex locking across lanes.
package sched

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// lane is a serial task queue: one goroutine, FIFO execution.
type lane struct {
	tasks chan func()
	quit  chan struct{}
}

func newLane(queue int) *lane {
	l := &lane{
		tasks: make(chan func(), queue),
		quit:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *lane) run() {
	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-l.quit:
			// Drain whatever was already queued so shutdown never loses an
			// accepted task.
			for {
				select {
				case fn := <-l.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

func (l *lane) submit(fn func()) {
	select {
	case l.tasks <- fn:
	case <-l.quit:
	}
}

// Lanes owns every lane of one host process.
type Lanes struct {
	log   *zap.Logger
	queue int

	global *lane

	mu      sync.Mutex
	regions map[string]*lane // partition storage name → worker
	users   map[string]*lane // user id → worker

	bg   chan func()
	quit chan struct{}
	wg   sync.WaitGroup
}

// New creates the lane set. queue bounds each serial lane's backlog;
// background is the blocking-I/O pool size.
func New(queue, background int, log *zap.Logger) *Lanes {
	if queue <= 0 {
		queue = 128
	}
	if background <= 0 {
		background = 4
	}
	s := &Lanes{
		log:     log,
		queue:   queue,
		global:  newLane(queue),
		regions: make(map[string]*lane),
		users:   make(map[string]*lane),
		bg:      make(chan func(), queue),
		quit:    make(chan struct{}),
	}
	for i := 0; i < background; i++ {
		s.wg.Add(1)
		go s.backgroundWorker()
	}
	return s
}

func (s *Lanes) backgroundWorker() {
	defer s.wg.Done()
	for {
		select {
		case fn := <-s.bg:
			fn()
		case <-s.quit:
			for {
				select {
				case fn := <-s.bg:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Global submits to the single coordinator lane. Structural operations that
// touch partition existence or span multiple partitions run here.
func (s *Lanes) Global(fn func()) {
	s.global.submit(fn)
}

// Region submits to the worker pinned to one partition. The worker is
// created lazily on first use and lives for the process lifetime.
func (s *Lanes) Region(partition string, fn func()) {
	s.laneFor(s.regions, partition).submit(fn)
}

// User submits to the worker that owns one occupant's state. Completion
// callbacks that mutate user state must re-dispatch here.
func (s *Lanes) User(userID string, fn func()) {
	s.laneFor(s.users, userID).submit(fn)
}

func (s *Lanes) laneFor(m map[string]*lane, key string) *lane {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := m[key]
	if !ok {
		l = newLane(s.queue)
		m[key] = l
	}
	return l
}

// Background submits blocking I/O to the unordered pool. Never runs on a
// pinned worker or the coordinator.
func (s *Lanes) Background(fn func()) {
	select {
	case s.bg <- fn:
	case <-s.quit:
	}
}

// Delayed is a cancellable scheduled re-entry. A Cancel that loses the race
// with the timer firing is fine as long as the task re-validates state.
type Delayed struct {
	timer *time.Timer
}

// Cancel stops the delayed task if it has not fired. Reports whether the
// task was prevented from running.
func (d *Delayed) Cancel() bool {
	if d == nil {
		return false
	}
	return d.timer.Stop()
}

// GlobalAfter schedules fn onto the coordinator lane after d. The engine
// never sleeps on a lane; delays are always expressed this way.
func (s *Lanes) GlobalAfter(d time.Duration, fn func()) *Delayed {
	return &Delayed{timer: time.AfterFunc(d, func() {
		s.Global(fn)
	})}
}

// BackgroundAfter schedules fn onto the background pool after d.
func (s *Lanes) BackgroundAfter(d time.Duration, fn func()) *Delayed {
	return &Delayed{timer: time.AfterFunc(d, func() {
		s.Background(fn)
	})}
}

// Close stops the background pool after draining accepted work. Serial
// lanes drain and exit; submissions after Close are dropped.
func (s *Lanes) Close() {
	close(s.quit)
	s.wg.Wait()
	close(s.global.quit)
	s.mu.Lock()
	for _, l := range s.regions {
		close(l.quit)
	}
	for _, l := range s.users {
		close(l.quit)
	}
	s.mu.Unlock()
}
