package trajectory

import "strings"

// RewardWeights are the linear combination weights for per-step reward.
type RewardWeights struct {
	Success    float64
	Progress   float64
	Efficiency float64
}

// DefaultRewardWeights matches the reference weighting.
func DefaultRewardWeights() RewardWeights {
	return RewardWeights{Success: 1.0, Progress: 0.3, Efficiency: 0.5}
}

var readTools = map[string]bool{
	"read_file": true,
	"read":      true,
	"cat":       true,
	"view_file": true,
}

// RewardCalculator computes per-step rewards and a final ranking reward for
// a trajectory. It tracks the last-read files across a single task execution
// so it must be created once per Task Runner invocation, not reused across
// tasks.
type RewardCalculator struct {
	weights    RewardWeights
	readPaths  []string // oldest first, capped at 50
	readSeen   map[string]bool
}

// NewRewardCalculator builds a calculator with the given weights.
func NewRewardCalculator(weights RewardWeights) *RewardCalculator {
	return &RewardCalculator{
		weights:  weights,
		readSeen: make(map[string]bool),
	}
}

// StepReward computes the reward for one step given the action and its
// observation. For a read-type tool, the file path read is taken from the
// action's tool_args.
func (r *RewardCalculator) StepReward(action AgentAction, obs Observation) float64 {
	success := r.successComponent(obs)
	progress := r.progressComponent(obs)
	efficiency := r.efficiencyComponent(action, obs)
	return r.weights.Success*success + r.weights.Progress*progress + r.weights.Efficiency*efficiency
}

func (r *RewardCalculator) successComponent(obs Observation) float64 {
	if obs.Success {
		return 0.1
	}
	return -0.1
}

func (r *RewardCalculator) progressComponent(obs Observation) float64 {
	var total float64
	for _, sc := range obs.StateChanges {
		switch sc.Kind {
		case FileCreated, FileModified:
			total += 0.1
		case DirectoryCreated:
			total += 0.05
		case ProcessStarted, ProcessEnded:
			total += 0.025
		case FileDeleted:
			if obs.Success {
				total += 0.025
			}
		}
	}
	return total
}

func (r *RewardCalculator) efficiencyComponent(action AgentAction, obs Observation) float64 {
	var penalty float64

	if readTools[strings.ToLower(action.ToolName)] {
		if path, ok := readPathFromArgs(action.ToolArgs); ok && path != "" {
			if r.readSeen[path] {
				penalty -= 0.05
			} else {
				r.readSeen[path] = true
				r.readPaths = append(r.readPaths, path)
				if len(r.readPaths) > 50 {
					oldest := r.readPaths[0]
					r.readPaths = r.readPaths[1:]
					delete(r.readSeen, oldest)
				}
			}
		}
	}

	if len(obs.Output) > 10000 {
		penalty -= 0.02
	}

	return penalty
}

// readPathFromArgs pulls a path-like argument out of a tool_args bag without
// assuming a fixed schema across tools.
func readPathFromArgs(args map[string]any) (string, bool) {
	for _, key := range []string{"path", "file_path", "filepath", "file", "target_file"} {
		if v, ok := args[key]; ok {
			if s, ok := v.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

// FinalReward computes the ranking reward used for sampling, not persisted
// as a trajectory field. The step-count bonus uses len(t.Steps).
func FinalReward(t *Trajectory, weights RewardWeights) float64 {
	total := t.TotalReward
	total += stepCountBonus(len(t.Steps))
	total += resultAdjustment(t.FinalResult, weights.Success)
	return total
}

// stepCountBonus implements the efficiency-by-step-count curve: fewer than 5
// steps and more than 30 steps are penalized; 5-30 is a small bonus centered
// near 10.
func stepCountBonus(n int) float64 {
	switch {
	case n == 0:
		return -0.5
	case n < 5:
		return -0.1 * float64(5-n)
	case n <= 30:
		// Peak bonus 0.1 at n=10, minus 0.004 per step of distance: 0.08 at
		// n=5, 0.02 at n=30.
		dist := absInt(n - 10)
		return 0.1 - 0.004*float64(dist)
	case n <= 50:
		return -0.01 * float64(n-30)
	default:
		return -0.2
	}
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func resultAdjustment(result TaskResult, successWeight float64) float64 {
	switch result.Kind {
	case ResultSuccess:
		return result.Score * successWeight
	case ResultFailure:
		return -0.2 * successWeight
	case ResultTimeout:
		return -0.3 * successWeight
	case ResultError:
		return -0.4 * successWeight
	default:
		return 0
	}
}
