// Package diversity implements hash-based trajectory embeddings, cosine and
// Euclidean similarity, near-duplicate detection, and diverse sampling
// strategies. Per the spec's Non-goals, a hash-based surrogate embedding is
// deliberately used instead of a learned one; everything here is
// stdlib-only arithmetic (crypto/sha256 + math), which is the one area of
// the module that intentionally does not reach for a third-party library.
package diversity

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sort"

	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/trajectory"
)

// DefaultDimensions is the embedding vector width used throughout.
const DefaultDimensions = 128

// Vector is a dense embedding of known dimension.
type Vector []float64

// Embed produces a DefaultDimensions-wide, L2-normalized embedding for t.
func Embed(t *trajectory.Trajectory) Vector {
	return EmbedDim(t, DefaultDimensions)
}

// EmbedDim produces a dims-wide embedding. Region layout:
//   - [0, d/4): task_id hash field
//   - [d/4, d/4+d/8): model hash field
//   - [d/4+d/8, d/2): scaffold_type hash field
//   - [d/2, 3d/4): action-sequence embedding
//   - [3d/4, d): normalized scalar summary
func EmbedDim(t *trajectory.Trajectory, dims int) Vector {
	v := make(Vector, dims)

	r1End := dims / 4
	r2End := r1End + dims/8
	r3End := dims / 2
	r4End := r3End + dims/4

	fillHashRegion(v[:r1End], t.TaskID)
	fillHashRegion(v[r1End:r2End], t.Model)
	fillHashRegion(v[r2End:r3End], t.ScaffoldType)

	actionRegion := actionSequenceEmbedding(t, r4End-r3End)
	copy(v[r3End:r4End], actionRegion)

	fillScalarRegion(v[r4End:], t)

	l2Normalize(v)
	return v
}

// fillHashRegion populates region with SHA-256-derived pseudofloats of s
// mapped to [0,1], consuming 8 hash bytes per float (pairwise over the
// region as the spec's "mapped to [0,1] pairwise" describes).
func fillHashRegion(region []float64, s string) {
	if len(region) == 0 {
		return
	}
	counter := uint32(0)
	for i := range region {
		h := sha256.Sum256(append([]byte(s), hashCounterBytes(counter)...))
		region[i] = bytesToUnitFloat(h[:8])
		counter++
	}
}

func hashCounterBytes(counter uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, counter)
	return b
}

// bytesToUnitFloat maps the first 8 bytes of b to a float in [0,1].
func bytesToUnitFloat(b []byte) float64 {
	v := binary.BigEndian.Uint64(b)
	return float64(v) / float64(^uint64(0))
}

// actionSequenceEmbedding builds the tool-frequency / tool-bigram /
// positional-decayed-args embedding described in the spec, at width dims.
func actionSequenceEmbedding(t *trajectory.Trajectory, dims int) Vector {
	v := make(Vector, dims)
	if dims == 0 || len(t.Steps) == 0 {
		return v
	}

	third := dims / 3
	freqEnd := third
	bigramEnd := 2 * third

	toolDim := freqEnd
	if toolDim == 0 {
		toolDim = 1
	}
	n := float64(len(t.Steps))
	for _, s := range t.Steps {
		idx := hashMod(s.Action.ToolName, toolDim)
		v[idx] += 1.0 / n
	}

	bigramDim := bigramEnd - freqEnd
	if bigramDim > 0 {
		for i := 0; i+1 < len(t.Steps); i++ {
			pair := t.Steps[i].Action.ToolName + ">" + t.Steps[i+1].Action.ToolName
			idx := freqEnd + hashMod(pair, bigramDim)
			v[idx] += 1.0 / n
		}
	}

	remainderStart := bigramEnd
	remainderDim := dims - remainderStart
	if remainderDim > 0 {
		for i, s := range t.Steps {
			decay := 1.0 / float64(i+1)
			content := canonicalArgsString(s.Action.ToolArgs)
			idx := remainderStart + hashMod(content, remainderDim)
			v[idx] += decay
		}
	}

	return v
}

func canonicalArgsString(args map[string]any) string {
	if args == nil {
		return ""
	}
	// Keys are visited in sorted order so the string, and hence the
	// embedding, is the same for equal argument maps.
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var s string
	for _, k := range keys {
		s += k + "=" + toStringApprox(args[k]) + ";"
	}
	return s
}

func toStringApprox(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case fmt_Stringer:
		return x.String()
	default:
		return ""
	}
}

type fmt_Stringer interface{ String() string }

// hashMod hashes s into [0, mod).
func hashMod(s string, mod int) int {
	if mod <= 0 {
		return 0
	}
	h := sha256.Sum256([]byte(s))
	v := binary.BigEndian.Uint64(h[:8])
	return int(v % uint64(mod))
}

// fillScalarRegion populates the tail with normalized scalar summaries:
// step_count/100, (total_reward+1)/2, duration/3600, and a success scalar.
func fillScalarRegion(region []float64, t *trajectory.Trajectory) {
	if len(region) == 0 {
		return
	}
	vals := []float64{
		minF(float64(len(t.Steps))/100.0, 1),
		(t.TotalReward + 1) / 2,
		minF(t.DurationSecs/3600.0, 1),
		successScalar(t.FinalResult),
	}
	for i := range region {
		region[i] = vals[i%len(vals)]
	}
}

func successScalar(result trajectory.TaskResult) float64 {
	switch result.Kind {
	case trajectory.ResultSuccess:
		return result.Score
	case trajectory.ResultFailure:
		return 0
	case trajectory.ResultTimeout:
		return 0.25
	case trajectory.ResultError:
		return 0.1
	default:
		return 0
	}
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// l2Normalize scales v to unit length in place; a zero vector is left as-is.
func l2Normalize(v Vector) {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	if sumSq < 1e-20 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i := range v {
		v[i] /= norm
	}
}
