package quality

import (
	"encoding/json"
	"fmt"

	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/trajectory"
)

const similarityThreshold = 0.8

// evaluateCoherence combines action-logic, redundancy, and loop-penalty
// sub-scores (weights 0.4/0.35/0.25).
func evaluateCoherence(t *trajectory.Trajectory) CheckResult {
	logicScore := actionLogicScore(t.Steps)
	redundancyScore, redundancyIssues := redundancyScoreFor(t.Steps)
	loopScore, loopIssues := loopPenaltyFor(t.Steps)

	score := 0.4*logicScore + 0.35*redundancyScore + 0.25*loopScore
	issues := append(redundancyIssues, loopIssues...)
	return CheckResult{Score: score, Issues: issues}
}

// actionLogicScore checks each consecutive transition: after a failure, the
// next action must differ; after a success, repeating the identical action
// is incoherent.
func actionLogicScore(steps []trajectory.Step) float64 {
	if len(steps) == 0 {
		return 0
	}
	if len(steps) == 1 {
		return 1
	}

	coherent := 0
	transitions := len(steps) - 1
	for i := 0; i < transitions; i++ {
		cur, next := steps[i], steps[i+1]
		same := sameAction(cur.Action, next.Action)
		if cur.Observation.Success {
			if !same {
				coherent++
			}
		} else {
			if !same {
				coherent++
			}
		}
	}
	return float64(coherent) / float64(transitions)
}

func sameAction(a, b trajectory.AgentAction) bool {
	if a.ToolName != b.ToolName {
		return false
	}
	return canonicalArgs(a.ToolArgs) == canonicalArgs(b.ToolArgs)
}

func canonicalArgs(args map[string]any) string {
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(b)
}

// actionSimilarity returns 1.0 for identical tool+args, 0.5 for same tool
// with different args, 0 for different tools entirely.
func actionSimilarity(a, b trajectory.AgentAction) float64 {
	if a.ToolName != b.ToolName {
		return 0
	}
	if canonicalArgs(a.ToolArgs) == canonicalArgs(b.ToolArgs) {
		return 1.0
	}
	return 0.5
}

// redundancyScoreFor flags runs of >=3 consecutive similar actions, and any
// action (by tool+args) repeated more than 3 times overall.
func redundancyScoreFor(steps []trajectory.Step) (float64, []Issue) {
	if len(steps) == 0 {
		return 0, nil
	}

	var issues []Issue
	redundantCount := 0

	runStart := 0
	for i := 1; i <= len(steps); i++ {
		similar := i < len(steps) && actionSimilarity(steps[i-1].Action, steps[i].Action) >= similarityThreshold
		if similar {
			continue
		}
		runLen := i - runStart
		if runLen >= 3 {
			redundantCount += runLen - 3
			issues = append(issues, Issue{
				Kind:     RedundantStep,
				Severity: SeverityMinor,
				Detail:   fmt.Sprintf("steps %d-%d repeat a similar action", runStart, i-1),
			})
		}
		runStart = i
	}

	counts := make(map[string]int)
	for _, s := range steps {
		key := s.Action.ToolName + "|" + canonicalArgs(s.Action.ToolArgs)
		counts[key]++
	}
	for key, c := range counts {
		if c > 3 {
			redundantCount += c - 3
			issues = append(issues, Issue{
				Kind:     RedundantStep,
				Severity: SeverityMinor,
				Detail:   fmt.Sprintf("action %q repeated %d times", key, c),
			})
		}
	}

	n := len(steps)
	ratio := float64(redundantCount) / (float64(n) / 2)
	if ratio > 1 {
		ratio = 1
	}
	score := 1 - ratio*0.5
	return score, issues
}

// loopPenaltyFor detects short repeated patterns (length 2..min(4,n/2),
// repeated more than twice anywhere) and alternating A-B-A-B spans of
// length >= 4.
func loopPenaltyFor(steps []trajectory.Step) (float64, []Issue) {
	n := len(steps)
	if n < 4 {
		return 1, nil
	}

	keys := make([]string, n)
	for i, s := range steps {
		keys[i] = s.Action.ToolName + "|" + canonicalArgs(s.Action.ToolArgs)
	}

	var majorCount, minorCount int
	var issues []Issue

	maxPatternLen := n / 2
	if maxPatternLen > 4 {
		maxPatternLen = 4
	}
	for patLen := 2; patLen <= maxPatternLen; patLen++ {
		occurrences := countPatternOccurrences(keys, patLen)
		for pattern, count := range occurrences {
			if count > 2 {
				majorCount++
				issues = append(issues, Issue{
					Kind:     IncoherentAction,
					Severity: SeverityMajor,
					Detail:   fmt.Sprintf("pattern %q repeated %d times", pattern, count),
				})
			}
		}
	}

	if hasAlternatingSpan(keys, 4) {
		minorCount++
		issues = append(issues, Issue{Kind: IncoherentAction, Severity: SeverityMinor, Detail: "alternating A-B-A-B action span detected"})
	}

	penalty := 1 - 0.3*float64(majorCount) - 0.1*float64(minorCount)
	if penalty < 0 {
		penalty = 0
	}
	return penalty, issues
}

// countPatternOccurrences counts, for each distinct contiguous subsequence
// of length patLen, at how many start positions it appears in keys
// (overlapping occurrences each count).
func countPatternOccurrences(keys []string, patLen int) map[string]int {
	counts := make(map[string]int)
	for i := 0; i+patLen <= len(keys); i++ {
		pattern := fmt.Sprintf("%v", keys[i:i+patLen])
		counts[pattern]++
	}
	// Occurrences overlap by construction (sliding window); treat distinct
	// start positions producing the same pattern as repeats of that pattern.
	return counts
}

// hasAlternatingSpan reports whether there exists a contiguous span of at
// least minLen steps alternating between exactly two distinct actions
// (A-B-A-B-...).
func hasAlternatingSpan(keys []string, minLen int) bool {
	n := len(keys)
	if n < minLen {
		return false
	}
	for start := 0; start+minLen <= n; start++ {
		a, b := keys[start], keys[start+1]
		if a == b {
			continue
		}
		span := 2
		for pos := start + 2; pos < n; pos++ {
			expected := a
			if (pos-start)%2 == 1 {
				expected = b
			}
			if keys[pos] != expected {
				break
			}
			span++
		}
		if span >= minLen {
			return true
		}
	}
	return false
}
