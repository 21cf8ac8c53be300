package diversity

import (
	"sort"

	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/trajectory"
)

// DefaultSimilarityThreshold is the dedup cosine-similarity cutoff.
const DefaultSimilarityThreshold = 0.85

// RemovedRecord records one deduplication decision.
type RemovedRecord struct {
	RemovedID  string
	KeptID     string
	Similarity float64
}

// DedupResult is the outcome of a deduplication pass.
type DedupResult struct {
	KeptIDs  []string
	Removed  []RemovedRecord
	Total    int
	RemovedN int
	KeptN    int
}

// RemovedRatio returns removed/total, 0 for an empty pool.
func (r DedupResult) RemovedRatio() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.RemovedN) / float64(r.Total)
}

// KeptRatio returns kept/total, 1 for an empty pool (nothing to remove).
func (r DedupResult) KeptRatio() float64 {
	if r.Total == 0 {
		return 1
	}
	return float64(r.KeptN) / float64(r.Total)
}

// Item pairs a trajectory with its precomputed embedding for dedup/sampling.
type Item struct {
	ID         string
	Embedding  Vector
	Trajectory *trajectory.Trajectory
}

type pair struct {
	i, j int
	sim  float64
}

// Deduplicator removes near-duplicate trajectories by pairwise cosine
// similarity, keeping the "better" side of each collapsing pair.
type Deduplicator struct {
	Threshold float64
}

// NewDeduplicator builds a Deduplicator with threshold clamped to [0,1].
func NewDeduplicator(threshold float64) *Deduplicator {
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 1 {
		threshold = 1
	}
	return &Deduplicator{Threshold: threshold}
}

// Deduplicate computes all pairwise similarities above the threshold and
// greedily collapses them, highest similarity first.
func (d *Deduplicator) Deduplicate(items []Item) DedupResult {
	n := len(items)
	if n == 0 {
		return DedupResult{}
	}

	var pairs []pair
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sim := CosineSimilarity(items[i].Embedding, items[j].Embedding)
			if sim >= d.Threshold {
				pairs = append(pairs, pair{i, j, sim})
			}
		}
	}
	sort.Slice(pairs, func(a, b int) bool { return pairs[a].sim > pairs[b].sim })

	removed := make(map[int]bool, n)
	var records []RemovedRecord

	for _, p := range pairs {
		if removed[p.i] || removed[p.j] {
			continue
		}
		keepSlot, dropSlot := betterOf(items[p.i], items[p.j])
		indices := [2]int{p.i, p.j}
		keepIdx, dropIdx := indices[keepSlot], indices[dropSlot]
		removed[dropIdx] = true
		records = append(records, RemovedRecord{
			RemovedID:  items[dropIdx].ID,
			KeptID:     items[keepIdx].ID,
			Similarity: p.sim,
		})
	}

	var keptIDs []string
	for i, item := range items {
		if !removed[i] {
			keptIDs = append(keptIDs, item.ID)
		}
	}

	return DedupResult{
		KeptIDs:  keptIDs,
		Removed:  records,
		Total:    n,
		RemovedN: len(records),
		KeptN:    n - len(records),
	}
}

// betterOf picks the preferred trajectory between a and b: higher
// total_reward by >=0.01, else fewer steps, else shorter duration.
// Returns (keptIndex, droppedIndex) as 0/1 into the (a,b) pair.
func betterOf(a, b Item) (kept, dropped int) {
	ta, tb := a.Trajectory, b.Trajectory
	if ta == nil || tb == nil {
		return 0, 1
	}
	if ta.TotalReward-tb.TotalReward >= 0.01 {
		return 0, 1
	}
	if tb.TotalReward-ta.TotalReward >= 0.01 {
		return 1, 0
	}
	if len(ta.Steps) != len(tb.Steps) {
		if len(ta.Steps) < len(tb.Steps) {
			return 0, 1
		}
		return 1, 0
	}
	if ta.DurationSecs <= tb.DurationSecs {
		return 0, 1
	}
	return 1, 0
}
