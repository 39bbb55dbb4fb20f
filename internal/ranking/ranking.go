package ranking

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sort"
)

// ErrInvalidArgument is returned when more entries are requested than exist.
var ErrInvalidArgument = errors.New("invalid argument")

// Prediction is a single classifier score for one label.
type Prediction struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// TopK returns the k highest scoring predictions, highest first.
// Entries with equal probability keep their input order. The input slice is
// left untouched.
func TopK(k int, scores []Prediction) ([]Prediction, error) {
	if k < 0 || k > len(scores) {
		return nil, fmt.Errorf("%w: requested top %d of %d labels", ErrInvalidArgument, k, len(scores))
	}

	sorted := slices.Clone(scores)
	slices.SortStableFunc(sorted, func(a, b Prediction) int {
		// cmp.Compare orders NaN first, so reversing the operands puts it last
		return cmp.Compare(b.Probability, a.Probability)
	})

	return sorted[:k:k], nil
}

// FromMap flattens an unordered label mapping. Labels come out in ascending
// order so ties resolve the same way on every call.
func FromMap(m map[string]float64) []Prediction {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Prediction, len(keys))
	for i, k := range keys {
		out[i] = Prediction{Label: k, Probability: m[k]}
	}
	return out
}
