// Package quality implements the multi-signal deterministic Quality Filter:
// three independent checks (correctness, coherence, completeness) combined
// into an overall score and a pass/fail verdict with diagnostic issues.
package quality

import (
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/trajectory"
)

// IssueKind enumerates the diagnostic categories a check can emit.
type IssueKind string

const (
	EmptyTrajectory  IssueKind = "EmptyTrajectory"
	Timeout          IssueKind = "Timeout"
	IncorrectOutput  IssueKind = "IncorrectOutput"
	FailedTest       IssueKind = "FailedTest"
	RedundantStep    IssueKind = "RedundantStep"
	IncoherentAction IssueKind = "IncoherentAction"
	MissingStep      IssueKind = "MissingStep"
)

// Severity ranks how much an issue should weigh on the final verdict.
// Critical issues force passed_filter=false regardless of the numeric score.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
	SeverityWarning  Severity = "warning"
)

// Issue is one diagnostic produced by a check.
type Issue struct {
	Kind     IssueKind
	Severity Severity
	Detail   string
}

// CheckResult is the (score, issues) pair every independent check returns.
type CheckResult struct {
	Score  float64
	Issues []Issue
}

// Weights configures the relative contribution of each check to Overall,
// and the minimum score required to pass.
type Weights struct {
	Correctness    float64
	Coherence      float64
	Completeness   float64
	MinOverallScore float64
	Strict         bool
}

// DefaultWeights matches the reference 0.5/0.3/0.2 split with a 0.7 bar.
func DefaultWeights() Weights {
	return Weights{Correctness: 0.5, Coherence: 0.3, Completeness: 0.2, MinOverallScore: 0.7}
}

// normalize rescales weights to sum to 1 (used when a caller overrides them).
func (w Weights) normalize() Weights {
	sum := w.Correctness + w.Coherence + w.Completeness
	if sum <= 0 {
		return DefaultWeights()
	}
	w.Correctness /= sum
	w.Coherence /= sum
	w.Completeness /= sum
	return w
}

// Report is the full output of Evaluate: component scores, the combined
// overall score, pass/fail, and every issue collected along the way.
type Report struct {
	Correctness  float64
	Coherence    float64
	Completeness float64
	Overall      float64
	Passed       bool
	Issues       []Issue
}

// hasCritical reports whether any issue in issues is Critical severity.
func hasCritical(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// Evaluate runs the basic gate, then (if it passes) the three independent
// checks, and combines them into a Report.
func Evaluate(t *trajectory.Trajectory, weights Weights) Report {
	weights = weights.normalize()

	if gate, ok := basicGate(t); !ok {
		return Report{Overall: 0, Passed: false, Issues: gate.Issues}
	}

	correctness := evaluateCorrectness(t, weights.Strict)
	coherence := evaluateCoherence(t)
	completeness := evaluateCompleteness(t)

	overall := weights.Correctness*correctness.Score +
		weights.Coherence*coherence.Score +
		weights.Completeness*completeness.Score

	issues := append(append(append([]Issue{}, correctness.Issues...), coherence.Issues...), completeness.Issues...)
	passed := !hasCritical(issues) && overall >= weights.MinOverallScore

	return Report{
		Correctness:  correctness.Score,
		Coherence:    coherence.Score,
		Completeness: completeness.Score,
		Overall:      overall,
		Passed:       passed,
		Issues:       issues,
	}
}

// basicGate fails closed on empty trajectories, timeouts, and errors: any
// of these short-circuits the rest of the filter with overall score 0.
func basicGate(t *trajectory.Trajectory) (CheckResult, bool) {
	if len(t.Steps) == 0 {
		return CheckResult{Score: 0, Issues: []Issue{{Kind: EmptyTrajectory, Severity: SeverityCritical, Detail: "trajectory has no steps"}}}, false
	}
	switch t.FinalResult.Kind {
	case trajectory.ResultTimeout:
		return CheckResult{Score: 0, Issues: []Issue{{Kind: Timeout, Severity: SeverityCritical, Detail: "task timed out"}}}, false
	case trajectory.ResultError:
		return CheckResult{Score: 0, Issues: []Issue{{Kind: IncorrectOutput, Severity: SeverityCritical, Detail: t.FinalResult.Message}}}, false
	}
	return CheckResult{}, true
}
