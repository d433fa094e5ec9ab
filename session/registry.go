package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"scribecore/eventbus"
)

// entry is the registry's bookkeeping record for one active session.
type entry struct {
	id       string
	meta     Meta
	cfg      Config
	handle   StoreHandle
	loop     *Loop
	cancel   context.CancelFunc
	priority int
}

// Registry owns the lifecycle state machine for every session in the
// process and arbitrates exclusive microphone access across them (§5
// "Shared-resource policy"). A higher-priority acquirer preempts the
// current microphone holder.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	micOwner string

	bus   *eventbus.Bus
	store Store
}

// NewRegistry returns an empty registry publishing lifecycle events on bus
// and persisting through store.
func NewRegistry(bus *eventbus.Bus, store Store) *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		bus:      bus,
		store:    store,
	}
}

// Start creates a new session, transitions it Created -> Recording, and
// runs its Loop on a dedicated goroutine. If cfg requests the
// microphone and another session currently holds it with equal or
// higher priority, Start fails with ErrAlreadyActive; a lower-priority
// holder is preempted instead (§5).
func (r *Registry) Start(cfg Config, buildLoop func(StoreHandle) (*Loop, error)) (string, error) {
	r.mu.Lock()

	if cfg.UseMicrophone && r.micOwner != "" {
		holder := r.sessions[r.micOwner]
		if holder != nil && holder.priority >= cfg.Priority {
			r.mu.Unlock()
			return "", fmt.Errorf("session: microphone held by %s: %w", r.micOwner, ErrAlreadyActive)
		}
	}

	id := uuid.New().String()
	meta := Meta{
		ID:        id,
		Status:    StatusCreated,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	var handle StoreHandle
	if r.store != nil {
		h, err := r.store.CreateSession(meta)
		if err != nil {
			r.mu.Unlock()
			return "", fmt.Errorf("session: create session: %w", err)
		}
		handle = h
	}

	loop, err := buildLoop(handle)
	if err != nil {
		r.mu.Unlock()
		return "", err
	}

	e := &entry{id: id, meta: meta, cfg: cfg, handle: handle, loop: loop, priority: cfg.Priority}
	r.sessions[id] = e

	var preempted *entry
	if cfg.UseMicrophone {
		if r.micOwner != "" && r.micOwner != id {
			preempted = r.sessions[r.micOwner]
		}
		r.micOwner = id
	}
	r.mu.Unlock()

	if preempted != nil {
		r.preempt(preempted, id)
	}

	return id, r.transitionTo(id, StatusRecording, nil, func() {
		ctx, cancel := context.WithCancel(context.Background())
		r.mu.Lock()
		e.cancel = cancel
		r.mu.Unlock()
		go r.run(id, loop, ctx)
		if r.bus != nil {
			r.bus.Publish(eventbus.SessionStarted(id))
		}
	})
}

// preempt asks a lower-priority microphone holder to release by
// publishing microphone:preempted, pausing its loop and moving it to
// Paused through transitionTo.
func (r *Registry) preempt(e *entry, newHolder string) {
	if r.bus != nil {
		r.bus.Publish(eventbus.MicrophonePreempted(e.id, newHolder))
	}
	e.loop.Pause()
	_ = r.transitionTo(e.id, StatusPaused, nil, nil)
}

func (r *Registry) run(id string, loop *Loop, ctx context.Context) {
	if err := loop.Run(ctx); err != nil {
		r.Fail(id, err.Error())
		return
	}
}

// Pause transitions a recording session to Paused.
func (r *Registry) Pause(id string) error {
	e, ok := r.get(id)
	if !ok {
		return ErrNotFound
	}
	e.loop.Pause()
	return r.transitionTo(id, StatusPaused, nil, func() {
		if r.bus != nil {
			r.bus.Publish(eventbus.SessionPaused(id))
		}
	})
}

// Resume transitions a paused session back to Recording. If the session
// wants the microphone and another session now holds it, Resume fails.
func (r *Registry) Resume(id string) error {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if e.cfg.UseMicrophone {
		r.mu.Lock()
		if r.micOwner != "" && r.micOwner != id {
			r.mu.Unlock()
			return fmt.Errorf("session: microphone held by %s: %w", r.micOwner, ErrAlreadyActive)
		}
		r.micOwner = id
		r.mu.Unlock()
	}
	e.loop.Resume()
	return r.transitionTo(id, StatusRecording, nil, func() {
		if r.bus != nil {
			r.bus.Publish(eventbus.SessionResumed(id))
		}
	})
}

// Stop transitions a session to Completed, stopping its loop and
// releasing the microphone if it held it.
func (r *Registry) Stop(id string) error {
	e, ok := r.get(id)
	if !ok {
		return ErrNotFound
	}
	e.loop.Stop()
	if e.cancel != nil {
		e.cancel()
	}
	r.releaseMic(id)
	now := time.Now()
	return r.transitionTo(id, StatusCompleted, &now, func() {
		if r.bus != nil {
			r.bus.Publish(eventbus.SessionCompleted(id))
		}
	})
}

// Fail transitions a session to Error{message} from any non-terminal
// state and releases the microphone if it held it.
func (r *Registry) Fail(id, message string) error {
	r.releaseMic(id)
	return r.transitionTo(id, StatusError, nil, func() {
		r.mu.Lock()
		if e, ok := r.sessions[id]; ok {
			e.meta.ErrorMsg = message
		}
		r.mu.Unlock()
		if r.bus != nil {
			r.bus.Publish(eventbus.SessionError(id, message))
		}
	})
}

func (r *Registry) releaseMic(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.micOwner == id {
		r.micOwner = ""
	}
}

func (r *Registry) get(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	return e, ok
}

// Meta returns a snapshot of a session's metadata.
func (r *Registry) Meta(id string) (Meta, bool) {
	e, ok := r.get(id)
	if !ok {
		return Meta{}, false
	}
	return e.meta, true
}

// transitionTo validates and applies a state change, persists it, and
// runs onApplied (if non-nil) after the metadata is updated but before
// returning, so callers can publish events with up-to-date state.
func (r *Registry) transitionTo(id string, to Status, completedAt *time.Time, onApplied func()) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	from := e.meta.Status
	if !CanTransition(from, to) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	e.meta.Status = to
	e.meta.UpdatedAt = time.Now()
	if completedAt != nil {
		e.meta.CompletedAt = completedAt
	}
	meta := e.meta
	handle := e.handle
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.UpdateMeta(handle, meta); err != nil {
			return fmt.Errorf("session: persist meta: %w", err)
		}
	}
	if onApplied != nil {
		onApplied()
	}
	return nil
}
