package regime

import (
	"fmt"
	"math"
	"sort"
)

// Latent state indices from an unsupervised fit are arbitrary and not
// comparable across runs. CanonicalMapping remaps them onto a fixed economic
// ordering: per raw state, average the two designated expansiveness features
// over the rows assigned to it, sum the two means into a single score, and
// sort raw states by descending score. The highest-scoring raw state becomes
// canonical label 0 (expansive), the lowest becomes K-1 (contractive).
//
// The two expansiveness columns are feature-table values for the retained
// rows, not their standardized counterparts. The retained-row filter only
// covers the model features, so an expansiveness column may carry missing
// values here; each per-state mean is taken over that column's defined values
// only. A state whose score cannot be computed at all, or fewer than k
// distinct raw states in the assignment, is a degenerate fit: a label mapping
// cannot be safely constructed, so this fails loudly instead of silently
// producing a wrong ordering.
func CanonicalMapping(backend Backend, labels []int, k int, exp1, exp2 []float64) ([]int, error) {
	if len(exp1) != len(labels) || len(exp2) != len(labels) {
		return nil, fmt.Errorf("expansiveness columns have %d/%d values for %d labels", len(exp1), len(exp2), len(labels))
	}

	sums1 := make([]float64, k)
	counts1 := make([]int, k)
	sums2 := make([]float64, k)
	counts2 := make([]int, k)
	observed := make([]int, k)
	for i, s := range labels {
		if s < 0 || s >= k {
			return nil, fmt.Errorf("raw state %d out of range [0,%d)", s, k)
		}
		observed[s]++
		if !math.IsNaN(exp1[i]) {
			sums1[s] += exp1[i]
			counts1[s]++
		}
		if !math.IsNaN(exp2[i]) {
			sums2[s] += exp2[i]
			counts2[s]++
		}
	}

	scores := make([]float64, k)
	for s := 0; s < k; s++ {
		if observed[s] == 0 {
			return nil, &DegenerateFitError{
				Backend: backend,
				Reason:  fmt.Sprintf("raw state %d of %d never observed in the assignment", s, k),
			}
		}
		if counts1[s] == 0 || counts2[s] == 0 {
			return nil, &DegenerateFitError{
				Backend: backend,
				Reason:  fmt.Sprintf("raw state %d has no defined expansiveness values", s),
			}
		}
		scores[s] = sums1[s]/float64(counts1[s]) + sums2[s]/float64(counts2[s])
	}

	order := make([]int, k)
	for s := range order {
		order[s] = s
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	// order[c] is the raw state that becomes canonical label c; invert it
	// into mapping[raw] = canonical.
	mapping := make([]int, k)
	for canonical, raw := range order {
		mapping[raw] = canonical
	}
	return mapping, nil
}

// applyMapping rewrites a fit in place from raw-state space into canonical
// space: hard labels are remapped, posterior components are reordered (not
// merely relabeled), and the transition matrix, when present, has rows and
// columns permuted identically so trans[i][j] keeps meaning "from canonical
// i to canonical j".
func applyMapping(f *fit, mapping []int) {
	k := len(mapping)

	for i, s := range f.labels {
		f.labels[i] = mapping[s]
	}

	for i, post := range f.posteriors {
		reordered := make([]float64, k)
		for raw, p := range post {
			reordered[mapping[raw]] = p
		}
		f.posteriors[i] = reordered
	}

	if f.trans != nil {
		permuted := make([][]float64, k)
		for i := range permuted {
			permuted[i] = make([]float64, k)
		}
		for rawFrom := 0; rawFrom < k; rawFrom++ {
			for rawTo := 0; rawTo < k; rawTo++ {
				permuted[mapping[rawFrom]][mapping[rawTo]] = f.trans[rawFrom][rawTo]
			}
		}
		f.trans = permuted
	}
}
