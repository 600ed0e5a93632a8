// Package scheduler implements the Scheduler (C3): a 5-second
// diff-and-reconcile control loop over the Item Cache, one monitor loop
// goroutine per enabled item, driving the Probe Library (C1) and the
// Notification Dispatchers (C5) on state transitions (SPEC_FULL §4.3).
// Grounded on infra-core/pkg/probe/probe.go's `monitoringLoop`/
// `executeProbes`/`shouldRunProbe` ticker-based dispatch, generalized
// from "tick every 10s and run everything" to strict per-item due-time
// tracking and tracked-field restart semantics — the teacher's
// `shouldRunProbe` is a stub that always returns true; this package
// replaces that stub with the real thing.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/dungla2011/monitor-2025-sub000/internal/alertmanager"
	"github.com/dungla2011/monitor-2025-sub000/internal/cache"
	"github.com/dungla2011/monitor-2025-sub000/internal/model"
	"github.com/dungla2011/monitor-2025-sub000/internal/notify"
	"github.com/dungla2011/monitor-2025-sub000/internal/probe"
	"github.com/dungla2011/monitor-2025-sub000/internal/supervisor"
)

// ControlInterval is the control loop's diff-and-reconcile cadence (§4.3).
const ControlInterval = 5 * time.Second

// waitQuantum bounds how long a monitor loop sleeps before re-checking
// its stop flag and the shutdown signal (§4.3 "quantum <= 3s").
const waitQuantum = 3 * time.Second

// ItemStore is the persistence surface a monitor loop needs (§4.7).
type ItemStore interface {
	UpdateProbeResult(ctx context.Context, id int64, status int, errorMsg, validMsg string) error
	ClearForceRestart(ctx context.Context, id int64) error
}

// ChunkFilter reports whether id belongs to this process's chunk (§4.8).
// A nil filter accepts every id.
type ChunkFilter func(id int64) bool

type runningLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler owns the set of running monitor loops.
type Scheduler struct {
	cache      *cache.Cache
	store      ItemStore
	manager    *alertmanager.Manager
	dispatcher *notify.Dispatcher
	chunk      ChunkFilter

	mu      sync.Mutex
	running map[int64]*runningLoop

	stop chan struct{}
	done chan struct{}
}

// New creates a Scheduler. chunk may be nil to accept every item.
func New(c *cache.Cache, store ItemStore, manager *alertmanager.Manager, dispatcher *notify.Dispatcher, chunk ChunkFilter) *Scheduler {
	return &Scheduler{
		cache:      c,
		store:      store,
		manager:    manager,
		dispatcher: dispatcher,
		chunk:      chunk,
		running:    make(map[int64]*runningLoop),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins the control loop. It returns immediately; call Stop to
// shut down every monitor loop and wait for them to finish.
func (s *Scheduler) Start(ctx context.Context) {
	go s.controlLoop(ctx)
}

// Stop signals every monitor loop and the control loop to exit, then
// waits for the loops for at most supervisor.GracePeriod; loops still
// running after that are abandoned.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done

	s.mu.Lock()
	loops := make([]*runningLoop, 0, len(s.running))
	for _, l := range s.running {
		loops = append(loops, l)
	}
	s.mu.Unlock()

	deadline := time.After(supervisor.GracePeriod)
	for _, l := range loops {
		l.cancel()
	}
	for _, l := range loops {
		select {
		case <-l.done:
		case <-deadline:
			log.Printf("scheduler: grace period elapsed, abandoning remaining monitor loops")
			return
		}
	}
}

func (s *Scheduler) controlLoop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(ControlInterval)
	defer ticker.Stop()

	s.reconcile(ctx)
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reconcile(ctx)
		}
	}
}

func (s *Scheduler) eligible(item *model.MonitorItem, now time.Time) bool {
	if !item.Enable || item.IsPaused(now) {
		return false
	}
	if s.chunk != nil && !s.chunk(item.ID) {
		return false
	}
	return true
}

// reconcile implements §4.3 steps 1-5: diff the eligible set against the
// running set, start new loops, stop loops no longer eligible.
func (s *Scheduler) reconcile(ctx context.Context) {
	now := time.Now()
	items := s.cache.All()

	wanted := make(map[int64]*model.MonitorItem, len(items))
	for id, item := range items {
		if s.eligible(item, now) {
			wanted[id] = item
		}
	}

	s.mu.Lock()
	var toStart []*model.MonitorItem
	for id, item := range wanted {
		if _, ok := s.running[id]; !ok {
			toStart = append(toStart, item)
		}
	}
	var toStop []int64
	for id := range s.running {
		if _, ok := wanted[id]; !ok {
			toStop = append(toStop, id)
		}
	}
	s.mu.Unlock()

	for _, id := range toStop {
		s.stopLoop(id)
	}
	for _, item := range toStart {
		s.startLoop(ctx, item)
	}
}

func (s *Scheduler) startLoop(ctx context.Context, item *model.MonitorItem) {
	loopCtx, cancel := context.WithCancel(ctx)
	loop := &runningLoop{cancel: cancel, done: make(chan struct{})}

	// forceRestart is a consumed pulse: clear it up front so the snapshot
	// taken for this run doesn't immediately look stale against the next
	// cache refresh (§4.3 "forceRestart ... scheduler-consumed pulse").
	if item.ForceRestart {
		if err := s.store.ClearForceRestart(ctx, item.ID); err != nil {
			log.Printf("scheduler: failed to clear force_restart for item %d: %v", item.ID, err)
		}
		item.ForceRestart = false
	}

	s.mu.Lock()
	s.running[item.ID] = loop
	s.mu.Unlock()

	s.manager.ResetOnLoopStart(item.ID)

	go func() {
		defer close(loop.done)
		defer s.finishLoop(item.ID)
		s.monitorLoop(loopCtx, item)
	}()
}

// RunningCount reports how many monitor loops are currently active
// (adminapi.RunningLoopCounter, §6 "running loops" in /api/status).
func (s *Scheduler) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

func (s *Scheduler) stopLoop(id int64) {
	s.mu.Lock()
	loop, ok := s.running[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	loop.cancel()
}

// finishLoop removes a terminated loop from the running set and disposes
// of its AlertManagerState (§4.3 "on loop termination").
func (s *Scheduler) finishLoop(id int64) {
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
	s.manager.Forget(id)
}

// monitorLoop is the single-threaded per-item loop body (§4.3 "Monitor
// loop"). It snapshots the tracked config fields at entry and keeps
// running until the item is disabled/removed/changed or shutdown fires.
func (s *Scheduler) monitorLoop(ctx context.Context, item *model.MonitorItem) {
	logger := log.New(os.Stdout, fmt.Sprintf("[item %d] ", item.ID), log.LstdFlags)
	tracked := item.Snapshot()

	interval := time.Duration(item.EffectiveIntervalSeconds()) * time.Second
	dueAt := time.Now()

	for {
		if !s.waitUntil(ctx, dueAt) {
			return
		}

		current, ok := s.cache.Get(ctx, item.ID)
		if !ok || current == nil {
			return
		}
		if !current.Snapshot().Equal(tracked) {
			logger.Printf("tracked fields changed, restarting loop")
			return
		}
		item = current

		now := time.Now()
		if item.IsPaused(now) {
			dueAt = now.Add(interval)
			continue
		}

		s.runProbeCycle(ctx, item, logger)

		interval = time.Duration(item.EffectiveIntervalSeconds()) * time.Second
		dueAt = time.Now().Add(interval)
	}
}

// waitUntil sleeps in bounded quanta until due, returning false if the
// loop should terminate (shutdown or cancellation observed first).
func (s *Scheduler) waitUntil(ctx context.Context, due time.Time) bool {
	for {
		remaining := time.Until(due)
		if remaining <= 0 {
			return true
		}
		wait := remaining
		if wait > waitQuantum {
			wait = waitQuantum
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}

// runProbeCycle invokes the probe, persists the result, and fires
// notifications on state transitions per §4.3's table.
func (s *Scheduler) runProbeCycle(ctx context.Context, item *model.MonitorItem, logger *log.Logger) {
	previousStatus := item.LastCheckStatus

	result := probe.Run(ctx, item)
	status := -1
	errorMsg, validMsg := result.Message, ""
	if result.Success {
		status = 1
		errorMsg, validMsg = "", result.Message
	}

	if err := s.store.UpdateProbeResult(ctx, item.ID, status, errorMsg, validMsg); err != nil {
		logger.Printf("failed to persist probe result: %v", err)
		return
	}

	wasFailing := previousStatus != nil && *previousStatus == -1

	switch {
	case !wasFailing && !result.Success:
		logger.Printf("error: %s", result.Message)
		s.dispatcher.DispatchError(ctx, item, result.Message)
	case wasFailing && result.Success:
		logger.Printf("recovered: %s", result.Message)
		s.dispatcher.DispatchRecovery(ctx, item, result.ResponseTimeMs)
	case wasFailing && !result.Success:
		logger.Printf("still failing: %s", result.Message)
		s.dispatcher.DispatchError(ctx, item, result.Message)
	}
}
