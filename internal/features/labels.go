package features

import (
	"math"
	"sort"
)

// NearestIndex returns the index of the timestamp closest to target in the
// ascending slice ts. On equal distance the later index wins. It returns -1
// for an empty slice.
func NearestIndex(ts []int64, target int64) int {
	if len(ts) == 0 {
		return -1
	}
	i := sort.Search(len(ts), func(k int) bool { return ts[k] >= target })
	switch {
	case i == 0:
		return 0
	case i == len(ts):
		return len(ts) - 1
	}
	if target-ts[i-1] < ts[i]-target {
		return i - 1
	}
	return i
}

// MidAt returns the mid of the snapshot nearest to target, or ErrNoMatch when
// that snapshot is not strictly within sensitivity seconds of target.
func MidAt(ts []int64, mids []float64, target int64, sensitivity float64) (float64, error) {
	i := NearestIndex(ts, target)
	if i < 0 {
		return math.NaN(), ErrNoMatch
	}
	if math.Abs(float64(ts[i]-target)) >= sensitivity {
		return math.NaN(), ErrNoMatch
	}
	return mids[i], nil
}

// FutureMid looks up, for every timestamp t, the mid of the snapshot nearest
// to t+offset. Negative offsets look backward. Entries without a match within
// sensitivity are NaN.
func FutureMid(ts []int64, mids []float64, offset int64, sensitivity float64) []float64 {
	out := make([]float64, len(ts))
	for i, t := range ts {
		// A miss leaves NaN in place, which is the missing marker.
		out[i], _ = MidAt(ts, mids, t+offset, sensitivity)
	}
	return out
}

// LogRatio returns log(num[i]/den[i]) element-wise. Missing inputs and
// non-finite results give NaN.
func LogRatio(num, den []float64) []float64 {
	out := make([]float64, len(num))
	for i := range num {
		v := math.Log(num[i] / den[i])
		if math.IsInf(v, 0) {
			v = math.NaN()
		}
		out[i] = v
	}
	return out
}

// FillMissing replaces NaN entries with v in place and returns the number replaced.
func FillMissing(values []float64, v float64) int {
	n := 0
	for i, x := range values {
		if math.IsNaN(x) {
			values[i] = v
			n++
		}
	}
	return n
}
