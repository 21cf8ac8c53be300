// Package container mediates all interaction with a Docker-compatible
// container runtime behind a narrow interface, and implements the Container
// handle state machine that the task runner drives.
package container

import (
	"errors"
	"fmt"
	"time"
)

// Status is the runtime-reported lifecycle state of a container.
type Status int

const (
	StatusCreated Status = iota
	StatusRunning
	StatusPaused
	StatusRestarting
	StatusExited
	StatusRemoving
	StatusDead
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "Created"
	case StatusRunning:
		return "Running"
	case StatusPaused:
		return "Paused"
	case StatusRestarting:
		return "Restarting"
	case StatusExited:
		return "Exited"
	case StatusRemoving:
		return "Removing"
	case StatusDead:
		return "Dead"
	default:
		return "Unknown"
	}
}

// RuntimeState is the translated status plus an exit code when Exited.
type RuntimeState struct {
	Status   Status
	ExitCode *int
	Raw      string // original runtime string, populated for Unknown
}

// ErrorKind classifies failures surfaced from the container runtime.
type ErrorKind int

const (
	DaemonUnavailable ErrorKind = iota
	ContainerNotFound
	BuildFailed
	RunFailed
)

// DockerError is the single sum type every runtime failure is wrapped into.
type DockerError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *DockerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.kindLabel(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.kindLabel(), e.Message)
}

func (e *DockerError) Unwrap() error { return e.Err }

func (e *DockerError) kindLabel() string {
	switch e.Kind {
	case DaemonUnavailable:
		return "daemon_unavailable"
	case ContainerNotFound:
		return "container_not_found"
	case BuildFailed:
		return "build_failed"
	case RunFailed:
		return "run_failed"
	default:
		return "unknown"
	}
}

func newErr(kind ErrorKind, msg string, err error) *DockerError {
	return &DockerError{Kind: kind, Message: msg, Err: err}
}

// IsNotFound reports whether err is (or wraps) a ContainerNotFound DockerError.
func IsNotFound(err error) bool {
	var de *DockerError
	if errors.As(err, &de) {
		return de.Kind == ContainerNotFound
	}
	return false
}

// ExecResult is the outcome of a one-shot command execution inside a running container.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Combined returns stdout, and stdout+"\n"+stderr when stderr is non-empty —
// the observation text shape the task runner uses for bash actions.
func (r ExecResult) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	return r.Stdout + "\n" + r.Stderr
}

// ExecutionLimits bounds resource usage for one container.
type ExecutionLimits struct {
	MemoryMB     uint64
	CPUCores     float64
	DiskGB       uint64
	MaxProcesses uint64
	TimeoutSecs  uint64
}

// difficultyTable is the fixed mapping from difficulty string to limits.
// Unknown difficulties fall back to "medium".
var difficultyTable = map[string]ExecutionLimits{
	"easy":      {MemoryMB: 512, CPUCores: 0.5, DiskGB: 2, MaxProcesses: 50, TimeoutSecs: 600},
	"medium":    {MemoryMB: 1024, CPUCores: 1.0, DiskGB: 5, MaxProcesses: 100, TimeoutSecs: 1200},
	"hard":      {MemoryMB: 2048, CPUCores: 2.0, DiskGB: 10, MaxProcesses: 200, TimeoutSecs: 2400},
	"expert":    {MemoryMB: 4096, CPUCores: 4.0, DiskGB: 20, MaxProcesses: 500, TimeoutSecs: 4800},
	"nightmare": {MemoryMB: 8192, CPUCores: 8.0, DiskGB: 50, MaxProcesses: 1000, TimeoutSecs: 9000},
}

// LimitsForDifficulty resolves the resource limits for a difficulty label,
// defaulting to medium for anything unrecognized.
func LimitsForDifficulty(difficulty string) ExecutionLimits {
	if limits, ok := difficultyTable[difficulty]; ok {
		return limits
	}
	return difficultyTable["medium"]
}

// NetworkMode mirrors the runtime's network attachment modes.
type NetworkMode string

const (
	NetworkBridge NetworkMode = "bridge"
	NetworkNone   NetworkMode = "none"
	NetworkHost   NetworkMode = "host"
)

// Mount is a host bind mount into the container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Config describes a container to be created.
type Config struct {
	Image       string
	Limits      ExecutionLimits
	Mounts      []Mount
	NetworkMode NetworkMode
	WorkingDir  string
	Env         []string
}

// ContainerConfig is an alias kept for readability at call sites that build
// one from a task's difficulty (Runner algorithm step 1).
type ContainerConfig = Config

const (
	cpuPeriodMicros = 100_000
	bytesPerMB      = 1_048_576
)

// MemoryBytes converts ExecutionLimits.MemoryMB to the byte count the
// runtime's host config expects.
func (l ExecutionLimits) MemoryBytes() int64 { return int64(l.MemoryMB) * bytesPerMB }

// CPUPeriodQuota returns the period (always 100ms) and quota in
// microseconds implementing l.CPUCores worth of CPU time.
func (l ExecutionLimits) CPUPeriodQuota() (period, quota int64) {
	return cpuPeriodMicros, int64(cpuPeriodMicros * l.CPUCores)
}

const defaultStopGrace = 10 * time.Second
