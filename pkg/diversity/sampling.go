package diversity

import (
	"math"
	"math/rand"
	"strings"
)

// Sampler picks n items from a pool using a seeded RNG for reproducibility.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler constructs a Sampler seeded deterministically.
func NewSampler(seed int64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewSource(seed))}
}

// Random returns a seeded-shuffled prefix of n items from pool.
func (s *Sampler) Random(pool []Item, n int) []Item {
	if n >= len(pool) {
		n = len(pool)
	}
	shuffled := shuffleCopy(pool, s.rng)
	return shuffled[:n]
}

func shuffleCopy(pool []Item, rng *rand.Rand) []Item {
	out := make([]Item, len(pool))
	copy(out, pool)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// MaxMin greedily picks n items maximizing each pick's minimum Euclidean
// distance to the already-picked set (farthest-point sampling), starting
// from a random seed item.
func (s *Sampler) MaxMin(pool []Item, n int) []Item {
	if n >= len(pool) {
		n = len(pool)
	}
	if n == 0 || len(pool) == 0 {
		return nil
	}

	picked := make([]bool, len(pool))
	minDist := make([]float64, len(pool))
	for i := range minDist {
		minDist[i] = math.Inf(1)
	}

	start := s.rng.Intn(len(pool))
	result := []Item{pool[start]}
	picked[start] = true
	updateMinDist(pool, minDist, pool[start])

	for len(result) < n {
		best := -1
		bestDist := -1.0
		for i, p := range picked {
			if p {
				continue
			}
			if minDist[i] > bestDist {
				bestDist = minDist[i]
				best = i
			}
		}
		if best == -1 {
			break
		}
		picked[best] = true
		result = append(result, pool[best])
		updateMinDist(pool, minDist, pool[best])
	}
	return result
}

func updateMinDist(pool []Item, minDist []float64, chosen Item) {
	for i, p := range pool {
		d := EuclideanDistance(p.Embedding, chosen.Embedding)
		if d < minDist[i] {
			minDist[i] = d
		}
	}
}

// Stratified samples n items allocated across categories derived from each
// item's task_id (longest matching prefix among categories, case
// insensitive; falls back to the item's model). Allocation is n/k per
// category with remainders randomized, shuffled within each category, and
// shortfalls refilled from the unselected pool.
func (s *Sampler) Stratified(pool []Item, n int, categories []string) []Item {
	if n >= len(pool) {
		n = len(pool)
	}
	if n == 0 || len(pool) == 0 {
		return nil
	}

	buckets := make(map[string][]Item)
	for _, item := range pool {
		cat := categoryFor(item, categories)
		buckets[cat] = append(buckets[cat], item)
	}

	var keys []string
	for k := range buckets {
		keys = append(keys, k)
	}
	k := len(keys)
	if k == 0 {
		return nil
	}
	base := n / k
	remainder := n % k

	s.rng.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })

	allocation := make(map[string]int, k)
	for i, key := range keys {
		allocation[key] = base
		if i < remainder {
			allocation[key]++
		}
	}

	var result []Item
	used := make(map[string]bool)
	for _, key := range keys {
		items := shuffleCopy(buckets[key], s.rng)
		take := allocation[key]
		if take > len(items) {
			take = len(items)
		}
		for _, item := range items[:take] {
			result = append(result, item)
			used[item.ID] = true
		}
	}

	if len(result) < n {
		var leftover []Item
		for _, item := range pool {
			if !used[item.ID] {
				leftover = append(leftover, item)
			}
		}
		leftover = shuffleCopy(leftover, s.rng)
		need := n - len(result)
		if need > len(leftover) {
			need = len(leftover)
		}
		result = append(result, leftover[:need]...)
	}

	return result
}

func categoryFor(item Item, categories []string) string {
	taskID := ""
	if item.Trajectory != nil {
		taskID = item.Trajectory.TaskID
	}
	lowerTask := strings.ToLower(taskID)

	best := ""
	bestLen := 0
	for _, cat := range categories {
		lc := strings.ToLower(cat)
		if strings.HasPrefix(lowerTask, lc) && len(lc) > bestLen {
			best = cat
			bestLen = len(lc)
		}
	}
	if best != "" {
		return best
	}
	if item.Trajectory != nil {
		return item.Trajectory.Model
	}
	return "unknown"
}

// Cluster selects k medoids via MaxMin, assigns every point to its nearest
// medoid, then samples proportionally from each cluster (floor of
// n*|cluster|/|pool| items each), refilling any shortfall at random from
// the unused items.
func (s *Sampler) Cluster(pool []Item, n int, k int) []Item {
	if n >= len(pool) {
		n = len(pool)
	}
	if n == 0 || len(pool) == 0 || k <= 0 {
		return nil
	}
	if k > len(pool) {
		k = len(pool)
	}

	medoids := s.MaxMin(pool, k)

	clusters := make(map[int][]Item)
	for _, item := range pool {
		best := 0
		bestDist := math.Inf(1)
		for mi, medoid := range medoids {
			d := EuclideanDistance(item.Embedding, medoid.Embedding)
			if d < bestDist {
				bestDist = d
				best = mi
			}
		}
		clusters[best] = append(clusters[best], item)
	}

	numClusters := len(medoids)

	order := make([]int, numClusters)
	for i := range order {
		order[i] = i
	}
	s.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	var result []Item
	used := make(map[string]bool)
	for _, ci := range order {
		take := n * len(clusters[ci]) / len(pool)
		items := shuffleCopy(clusters[ci], s.rng)
		if take > len(items) {
			take = len(items)
		}
		for _, item := range items[:take] {
			result = append(result, item)
			used[item.ID] = true
		}
	}

	if len(result) < n {
		var leftover []Item
		for _, item := range pool {
			if !used[item.ID] {
				leftover = append(leftover, item)
			}
		}
		leftover = shuffleCopy(leftover, s.rng)
		need := n - len(result)
		if need > len(leftover) {
			need = len(leftover)
		}
		result = append(result, leftover[:need]...)
	}

	return result
}
