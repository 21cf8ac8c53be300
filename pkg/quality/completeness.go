package quality

import (
	"fmt"
	"strings"

	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/trajectory"
)

const (
	minSteps = 2
	maxSteps = 40
)

var mutatingVerbs = []string{"write", "edit", "create", "delete", "move", "copy", "mkdir"}

// evaluateCompleteness combines step-count, state-change, observation, and
// termination sub-scores (weights 0.3/0.2/0.35/0.15).
func evaluateCompleteness(t *trajectory.Trajectory) CheckResult {
	stepScore, stepIssues := stepCountScoreFor(len(t.Steps))
	stateScore := stateChangeScoreFor(t.Steps)
	obsScore := observationCompleteScoreFor(t.Steps)
	termScore, termIssues := terminationScoreFor(t)

	score := 0.3*stepScore + 0.2*stateScore + 0.35*obsScore + 0.15*termScore

	issues := append(stepIssues, termIssues...)
	if hasUnrealizedEdit(t.Steps) {
		issues = append(issues, Issue{
			Kind:     MissingStep,
			Severity: SeverityWarning,
			Detail:   "edit-type action present with no recorded FileModified/FileCreated state change",
		})
	}

	return CheckResult{Score: score, Issues: issues}
}

func stepCountScoreFor(n int) (float64, []Issue) {
	switch {
	case n == 0:
		return 0, []Issue{{Kind: EmptyTrajectory, Severity: SeverityCritical, Detail: "no steps recorded"}}
	case n < minSteps:
		return float64(n) / float64(minSteps), []Issue{{Kind: MissingStep, Severity: SeverityMinor, Detail: fmt.Sprintf("only %d steps, expected at least %d", n, minSteps)}}
	case n > maxSteps:
		excess := n - maxSteps
		score := 1 - float64(excess)/float64(maxSteps)
		if score < 0.5 {
			score = 0.5
		}
		sev := SeverityMinor
		if excess > maxSteps {
			sev = SeverityMajor
		}
		return score, []Issue{{Kind: RedundantStep, Severity: sev, Detail: fmt.Sprintf("%d steps exceeds expected maximum of %d", n, maxSteps)}}
	default:
		return 1.0, nil
	}
}

// stateChangeScoreFor measures, among successful mutating-tool steps, the
// fraction that actually produced a recorded state change.
func stateChangeScoreFor(steps []trajectory.Step) float64 {
	var mutating, withChange int
	for _, s := range steps {
		if !isMutatingTool(s.Action.ToolName) || !s.Observation.Success {
			continue
		}
		mutating++
		if len(s.Observation.StateChanges) > 0 {
			withChange++
		}
	}
	if mutating == 0 {
		return 1.0
	}
	return float64(withChange) / float64(mutating)
}

func isMutatingTool(name string) bool {
	lower := strings.ToLower(name)
	for _, v := range mutatingVerbs {
		if strings.Contains(lower, v) {
			return true
		}
	}
	return false
}

// observationCompleteScoreFor measures the fraction of steps whose
// observation is "complete": on success, non-empty output or state
// changes; on failure, a non-empty error.
func observationCompleteScoreFor(steps []trajectory.Step) float64 {
	if len(steps) == 0 {
		return 0
	}
	complete := 0
	for _, s := range steps {
		obs := s.Observation
		if obs.Success {
			if obs.Output != "" || len(obs.StateChanges) > 0 {
				complete++
			}
		} else {
			if obs.Error != nil && *obs.Error != "" {
				complete++
			}
		}
	}
	return float64(complete) / float64(len(steps))
}

// terminationScoreFor rewards an explicit done marker; a Success result
// without one still scores well but earns a Warning issue.
func terminationScoreFor(t *trajectory.Trajectory) (float64, []Issue) {
	if len(t.Steps) == 0 {
		return 1.0, nil
	}
	last := t.Steps[len(t.Steps)-1]
	if last.Done {
		return 1.0, nil
	}
	for _, s := range t.Steps {
		if s.Done {
			return 1.0, nil
		}
	}
	if t.FinalResult.Kind == trajectory.ResultSuccess {
		return 0.9, []Issue{{Kind: MissingStep, Severity: SeverityWarning, Detail: "trajectory succeeded without an explicit done marker"}}
	}
	return 1.0, nil
}

func hasUnrealizedEdit(steps []trajectory.Step) bool {
	for _, s := range steps {
		if !isMutatingTool(s.Action.ToolName) || !strings.Contains(strings.ToLower(s.Action.ToolName), "edit") {
			continue
		}
		hasChange := false
		for _, sc := range s.Observation.StateChanges {
			if sc.Kind == trajectory.FileModified || sc.Kind == trajectory.FileCreated {
				hasChange = true
				break
			}
		}
		if !hasChange {
			return true
		}
	}
	return false
}
