package quality

import (
	"strconv"

	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/trajectory"
)

// evaluateCorrectness combines task-result, action-success, and reward
// sub-scores (weights 0.5/0.35/0.15) into the correctness component.
func evaluateCorrectness(t *trajectory.Trajectory, strict bool) CheckResult {
	taskScore := taskResultScore(t.FinalResult, strict)
	actionScore, failedSteps := actionSuccessScore(t.Steps, strict)
	rewardScore := rewardScoreFor(t.TotalReward)

	score := 0.5*taskScore + 0.35*actionScore + 0.15*rewardScore

	var issues []Issue
	for i, idx := range failedSteps {
		if i >= 3 {
			break
		}
		issues = append(issues, Issue{
			Kind:     FailedTest,
			Severity: SeverityMajor,
			Detail:   formatStepIndex(idx),
		})
	}
	if taskScore == 0 {
		issues = append(issues, Issue{Kind: IncorrectOutput, Severity: SeverityCritical, Detail: "task result scored 0"})
	}

	return CheckResult{Score: score, Issues: issues}
}

func taskResultScore(result trajectory.TaskResult, strict bool) float64 {
	if result.Kind != trajectory.ResultSuccess {
		return 0
	}
	s := result.Score
	if strict && s < 1 {
		return s * 0.8
	}
	return s
}

// actionSuccessScore returns successful_steps/total_steps (penalized 0.7x in
// strict mode if any step failed), plus the indices of failed steps.
func actionSuccessScore(steps []trajectory.Step, strict bool) (float64, []int) {
	if len(steps) == 0 {
		return 0, nil
	}
	var successCount int
	var failed []int
	for i, s := range steps {
		if s.Observation.Success {
			successCount++
		} else {
			failed = append(failed, i)
		}
	}
	score := float64(successCount) / float64(len(steps))
	if strict && len(failed) > 0 {
		score *= 0.7
	}
	return score, failed
}

// rewardScoreFor maps total_reward to [0,1]: positive rewards compress via
// r/(|r|+1), zero maps to a neutral 0.5, negative maps to 0.
func rewardScoreFor(totalReward float64) float64 {
	switch {
	case totalReward > 0:
		score := totalReward / (abs(totalReward) + 1)
		if score > 1 {
			return 1
		}
		return score
	case totalReward == 0:
		return 0.5
	default:
		return 0
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func formatStepIndex(i int) string {
	return "step " + strconv.Itoa(i)
}
