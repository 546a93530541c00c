// Package pool implements WorkerPool: a per-protocol cache of idle Workers,
// shared by every Scheduler in the process. Pool owns Worker creation,
// acquisition, release, idle eviction, and death reaping.
package pool

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tjper/workerfabric/internal/log"
	"github.com/tjper/workerfabric/internal/worker"
)

var logger = log.New(io.Discard, "pool")

// SetLogOutput redirects package logging.
func SetLogOutput(w io.Writer) { logger = log.New(w, "pool") }

// DefaultMaxIdle is how long an idle Worker may sit in the pool before
// EvictIdle terminates it, and the default tick interval EvictIdle is
// scheduled on.
const DefaultMaxIdle = 60 * time.Second

// PluginPath resolves the sidecar plugin path a ProcessWorker should load
// for a given protocol. ThreadWorkers instead look up a Plugin registered
// under the protocol name directly (see internal/plugin).
type PluginPath func(protocol string) (path string, err error)

// New constructs a Pool. resolve is consulted whenever a protocol has no
// idle Worker and a ProcessWorker must be spawned.
func New(resolve PluginPath) *Pool {
	p := &Pool{
		resolve:  resolve,
		idle:     make(map[string][]worker.Worker),
		busy:     make(map[uuid.UUID]worker.Worker),
		lastIdle: make(map[uuid.UUID]time.Time),
		watchers: make(map[uuid.UUID]map[uuid.UUID]chan worker.Event),
		stop:     make(chan struct{}),
	}
	go p.evictLoop(DefaultMaxIdle)
	return p
}

// Pool caches idle Workers by protocol and tracks Workers currently bound
// to a Job. One mutex guards idle, busy, and lastIdle; died handlers run
// outside the mutex and re-acquire it to remove their Worker, tolerating a
// died signal arriving concurrently with Release.
type Pool struct {
	resolve PluginPath

	mu       sync.Mutex
	idle     map[string][]worker.Worker
	busy     map[uuid.UUID]worker.Worker
	lastIdle map[uuid.UUID]time.Time
	watchers map[uuid.UUID]map[uuid.UUID]chan worker.Event

	stopOnce sync.Once
	stop     chan struct{}
}

// Acquire returns a Worker for protocol, reusing the most-recently-released
// idle Worker for that protocol if one exists, else creating a new one:
// a ThreadWorker for protocol "file", a ProcessWorker otherwise. Creation
// failures are non-fatal to the Pool; they are returned to the caller as an
// error.
func (p *Pool) Acquire(protocol, url string) (worker.Worker, error) {
	p.mu.Lock()
	if stack := p.idle[protocol]; len(stack) > 0 {
		w := stack[len(stack)-1]
		p.idle[protocol] = stack[:len(stack)-1]
		delete(p.lastIdle, w.ID())
		p.busy[w.ID()] = w
		p.mu.Unlock()

		w.SetState(worker.Busy)
		return w, nil
	}
	p.mu.Unlock()

	w, err := p.create(protocol)
	if err != nil {
		return nil, fmt.Errorf("pool: acquire %s: %w", protocol, err)
	}

	p.mu.Lock()
	p.busy[w.ID()] = w
	p.mu.Unlock()

	go p.reap(w)

	return w, nil
}

func (p *Pool) create(protocol string) (worker.Worker, error) {
	if protocol == "file" {
		return worker.NewThreadWorker(protocol, protocol)
	}

	path, err := p.resolve(protocol)
	if err != nil {
		return nil, fmt.Errorf("resolve plugin for %s: %w", protocol, err)
	}
	return worker.NewProcessWorker(protocol, path)
}

// Release returns w to the idle pool for its protocol, most-recently-used
// end, unless it is no longer alive, in which case it is terminated and
// dropped instead.
func (p *Pool) Release(w worker.Worker) {
	if !w.Alive() {
		w.Terminate()
		p.drop(w)
		return
	}

	p.mu.Lock()
	if _, stillBusy := p.busy[w.ID()]; !stillBusy {
		// Already reaped by a concurrent died handler.
		p.mu.Unlock()
		return
	}
	delete(p.busy, w.ID())
	p.idle[w.Protocol()] = append(p.idle[w.Protocol()], w)
	p.lastIdle[w.ID()] = time.Now()
	p.mu.Unlock()

	w.SetState(worker.Idle)
}

// EvictIdle terminates every idle Worker that has sat longer than maxAge,
// removing it from the Pool.
func (p *Pool) EvictIdle(maxAge time.Duration) {
	now := time.Now()

	var evict []worker.Worker
	p.mu.Lock()
	for protocol, stack := range p.idle {
		var kept []worker.Worker
		for _, w := range stack {
			if now.Sub(p.lastIdle[w.ID()]) > maxAge {
				evict = append(evict, w)
				delete(p.lastIdle, w.ID())
				continue
			}
			kept = append(kept, w)
		}
		p.idle[protocol] = kept
	}
	p.mu.Unlock()

	for _, w := range evict {
		w.Terminate()
	}
}

// TerminateAll sends Terminate to every Worker the Pool knows about,
// idle or busy, and clears both sets.
func (p *Pool) TerminateAll() {
	p.stopOnce.Do(func() { close(p.stop) })

	p.mu.Lock()
	var all []worker.Worker
	for _, stack := range p.idle {
		all = append(all, stack...)
	}
	for _, w := range p.busy {
		all = append(all, w)
	}
	p.idle = make(map[string][]worker.Worker)
	p.busy = make(map[uuid.UUID]worker.Worker)
	p.lastIdle = make(map[uuid.UUID]time.Time)
	p.mu.Unlock()

	for _, w := range all {
		w.Terminate()
	}
}

// drop removes w from whichever set it currently occupies, tolerating a
// Worker already removed by a concurrent died handler.
func (p *Pool) drop(w worker.Worker) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.busy, w.ID())
	delete(p.lastIdle, w.ID())

	stack := p.idle[w.Protocol()]
	for i, candidate := range stack {
		if candidate.ID() == w.ID() {
			p.idle[w.Protocol()] = append(stack[:i], stack[i+1:]...)
			break
		}
	}
}

// Watch returns a channel delivering a copy of every Event w reports, until
// the returned cancel func is called. Worker.Events() delivers each value
// to exactly one receiver, and the Pool is already that receiver (reap, to
// detect and drop dead idle Workers), so any other observer of a bound
// Worker's events, such as the Scheduler watching a running Job, must
// subscribe through the Pool instead of calling w.Events() itself, or the
// two consumers would split the stream between them non-deterministically.
func (p *Pool) Watch(w worker.Worker) (<-chan worker.Event, func()) {
	id := uuid.New()
	ch := make(chan worker.Event, 8)

	p.mu.Lock()
	if p.watchers[w.ID()] == nil {
		p.watchers[w.ID()] = make(map[uuid.UUID]chan worker.Event)
	}
	p.watchers[w.ID()][id] = ch
	p.mu.Unlock()

	return ch, func() {
		p.mu.Lock()
		delete(p.watchers[w.ID()], id)
		if len(p.watchers[w.ID()]) == 0 {
			delete(p.watchers, w.ID())
		}
		p.mu.Unlock()
	}
}

// reap is the Pool's sole reader of w.Events(), fanning each Event out to
// every channel registered via Watch and dropping w from the Pool once it
// reports Died, running outside the pool mutex so it tolerates arriving
// concurrently with Release.
func (p *Pool) reap(w worker.Worker) {
	for ev := range w.Events() {
		p.broadcast(w, ev)

		if ev.Kind == worker.Died {
			logger.Warnf("worker died; id: %s, protocol: %s, reason: %s", w.ID(), w.Protocol(), ev.Reason)
			p.drop(w)
			return
		}
	}
}

func (p *Pool) broadcast(w worker.Worker, ev worker.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ch := range p.watchers[w.ID()] {
		select {
		case ch <- ev:
		default:
			logger.Warnf("worker %s: watcher channel full, dropping event", w.ID())
		}
	}
}

func (p *Pool) evictLoop(maxAge time.Duration) {
	ticker := time.NewTicker(maxAge)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.EvictIdle(maxAge)
		case <-p.stop:
			return
		}
	}
}
