package speed

import (
	"sort"
)

// SortByTime orders samples by timestamp in place, keeping the input order of
// samples that share a timestamp.
func SortByTime(samples []Sample) {
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Time.Before(samples[j].Time)
	})
}

// LongestIncreasing returns the longest subsequence of time-ordered samples whose
// positions strictly increase. When several subsequences are equally long the
// one keeping earlier samples wins, so a late backward jump is what gets
// discarded.
//
// The scan runs from the last sample to the first, keeping for every length the
// largest head position a strictly increasing run of that length can start from,
// plus a successor link per sample to rebuild the run. O(n log n).
func LongestIncreasing(samples []Sample) []Sample {
	n := len(samples)
	if n == 0 {
		return nil
	}

	// heads holds negated positions so that it stays ascending for binary search.
	heads := make([]float64, 0, n)
	headIdx := make([]int, 0, n)
	next := make([]int, n)

	for i := n - 1; i >= 0; i-- {
		key := -samples[i].Position
		j := sort.SearchFloat64s(heads, key)
		if j == len(heads) {
			heads = append(heads, key)
			headIdx = append(headIdx, i)
		} else {
			heads[j] = key
			headIdx[j] = i
		}
		next[i] = -1
		if j > 0 {
			next[i] = headIdx[j-1]
		}
	}

	out := make([]Sample, 0, len(heads))
	for k := headIdx[len(headIdx)-1]; k >= 0; k = next[k] {
		out = append(out, samples[k])
	}
	return out
}
