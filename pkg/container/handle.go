package container

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// HandleStatus is the Container handle's own view of lifecycle state,
// distinct from the raw runtime Status: it adds the Pending/Creating phases
// that precede any runtime call, and collapses runtime failures into
// Failed{msg}/Timeout.
type HandleStatus int

const (
	HandlePending HandleStatus = iota
	HandleCreating
	HandleRunning
	HandleCompleted
	HandleFailed
	HandleTimeout
)

func (s HandleStatus) String() string {
	switch s {
	case HandlePending:
		return "Pending"
	case HandleCreating:
		return "Creating"
	case HandleRunning:
		return "Running"
	case HandleCompleted:
		return "Completed"
	case HandleFailed:
		return "Failed"
	case HandleTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

func (s HandleStatus) isTerminal() bool {
	return s == HandleCompleted || s == HandleFailed || s == HandleTimeout
}

// ErrIllegalTransition is returned when an operation is attempted from a
// handle state that does not permit it.
type ErrIllegalTransition struct {
	Operation string
	From      HandleStatus
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("container: illegal %s from state %s", e.Operation, e.From)
}

// Handle wraps a runtime container id with the local state machine the Task
// Runner drives. It is owned exclusively by one runner for the duration of
// a task; cleanup is safe to call from any state and at most once takes
// effect.
type Handle struct {
	runtime Runtime
	id      string
	config  Config
	createdAt time.Time

	mu          sync.Mutex
	status      HandleStatus
	failMsg     string
	cleanedUp   bool
}

// Create builds a container via runtime.CreateContainer and returns a
// handle in the Creating state (Failed if creation fails). The caller must
// call Start before any exec.
func Create(ctx context.Context, runtime Runtime, cfg Config) (*Handle, error) {
	h := &Handle{
		runtime:   runtime,
		config:    cfg,
		status:    HandlePending,
		createdAt: time.Now(),
	}
	h.status = HandleCreating
	id, err := runtime.CreateContainer(ctx, cfg)
	if err != nil {
		h.mu.Lock()
		h.status = HandleFailed
		h.failMsg = err.Error()
		h.mu.Unlock()
		return h, err
	}
	h.id = id
	return h, nil
}

// ID returns the runtime-assigned container id.
func (h *Handle) ID() string { return h.id }

// Status returns the handle's current local state.
func (h *Handle) Status() HandleStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// IsTerminal reports whether the handle has reached Completed/Failed/Timeout.
func (h *Handle) IsTerminal() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status.isTerminal()
}

// Start transitions Pending/Creating → Running. Only legal from those states.
func (h *Handle) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.status != HandlePending && h.status != HandleCreating {
		from := h.status
		h.mu.Unlock()
		return &ErrIllegalTransition{Operation: "start", From: from}
	}
	h.mu.Unlock()

	if err := h.runtime.Start(ctx, h.id); err != nil {
		h.mu.Lock()
		h.status = HandleFailed
		h.failMsg = err.Error()
		h.mu.Unlock()
		return err
	}

	h.mu.Lock()
	h.status = HandleRunning
	h.mu.Unlock()
	return nil
}

// Exec runs argv inside the container. Only legal while Running.
func (h *Handle) Exec(ctx context.Context, argv []string) (ExecResult, error) {
	h.mu.Lock()
	if h.status != HandleRunning {
		from := h.status
		h.mu.Unlock()
		return ExecResult{}, &ErrIllegalTransition{Operation: "exec", From: from}
	}
	h.mu.Unlock()

	return h.runtime.Exec(ctx, h.id, argv)
}

// MarkTimeout records a Timeout outcome without touching the runtime.
func (h *Handle) MarkTimeout() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.status.isTerminal() {
		h.status = HandleTimeout
	}
}

// MarkFailed records a Failed{msg} outcome without touching the runtime.
func (h *Handle) MarkFailed(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.status.isTerminal() {
		h.status = HandleFailed
		h.failMsg = msg
	}
}

// MarkCompleted records a Completed outcome.
func (h *Handle) MarkCompleted() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.status.isTerminal() {
		h.status = HandleCompleted
	}
}

// SyncStatus re-reads the runtime's view of the container and reconciles
// the local state machine with it.
func (h *Handle) SyncStatus(ctx context.Context) (RuntimeState, error) {
	state, err := h.runtime.InspectStatus(ctx, h.id)
	if err != nil {
		return state, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	switch state.Status {
	case StatusExited:
		if state.ExitCode != nil && *state.ExitCode == 0 {
			h.status = HandleCompleted
		} else {
			h.status = HandleFailed
			h.failMsg = fmt.Sprintf("container exited with non-zero code")
		}
	case StatusDead:
		h.status = HandleFailed
		h.failMsg = "container reported dead"
	case StatusRunning:
		h.status = HandleRunning
	}
	return state, nil
}

// Cleanup pulls logs, then stops and force-removes the container. It is
// idempotent: calling it more than once or from any state is safe and the
// second call is a no-op. Stop failures are logged but do not prevent
// removal.
func (h *Handle) Cleanup(ctx context.Context) (logs string, err error) {
	h.mu.Lock()
	if h.cleanedUp {
		h.mu.Unlock()
		return "", nil
	}
	h.cleanedUp = true
	id := h.id
	h.mu.Unlock()

	if id == "" {
		return "", nil
	}

	logs, logErr := h.runtime.Logs(ctx, id)
	if logErr != nil {
		slog.Warn("container cleanup: failed to pull logs", "container_id", id, "error", logErr)
		logs = "<log unavailable>"
	}

	if stopErr := h.runtime.Stop(ctx, id); stopErr != nil {
		slog.Warn("container cleanup: stop failed, proceeding to force remove", "container_id", id, "error", stopErr)
	}

	if rmErr := h.runtime.Remove(ctx, id, true); rmErr != nil {
		slog.Error("container cleanup: force remove failed", "container_id", id, "error", rmErr)
		err = rmErr
	}

	return logs, err
}
