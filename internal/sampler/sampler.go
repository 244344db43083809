// Package sampler picks items from a fixed-size corpus without repeating any
// item until the whole corpus has been shown.
package sampler

import (
	"errors"
	"sort"
)

// ErrCorpusEmpty is returned when sampling from a corpus of size zero.
var ErrCorpusEmpty = errors.New("corpus is empty")

// Source is the randomness PickUnseen draws from. *rand.Rand from
// math/rand/v2 satisfies it; tests pass a seeded generator.
type Source interface {
	IntN(n int) int
}

// PickUnseen returns an index in [0, n) that is not in seen, together with the
// updated seen set. When seen already covers the corpus it is cleared before
// the pick, so a fresh cycle starts on this call.
//
// seen is treated as a set: duplicates and out-of-range entries are dropped.
// The input slice is never modified; the returned slice is sorted.
func PickUnseen(n int, seen []int, rng Source) (int, []int, error) {
	if n <= 0 {
		return 0, nil, ErrCorpusEmpty
	}

	set := make(map[int]struct{}, len(seen)+1)
	for _, idx := range seen {
		if idx >= 0 && idx < n {
			set[idx] = struct{}{}
		}
	}
	if len(set) >= n {
		clear(set)
	}

	// k-th unseen index, counted in ascending order.
	k := rng.IntN(n - len(set))
	picked := -1
	for idx := 0; idx < n; idx++ {
		if _, ok := set[idx]; ok {
			continue
		}
		if k == 0 {
			picked = idx
			break
		}
		k--
	}

	set[picked] = struct{}{}
	out := make([]int, 0, len(set))
	for idx := range set {
		out = append(out, idx)
	}
	sort.Ints(out)
	return picked, out, nil
}

// Exhausted reports whether seen covers every index of a corpus of size n,
// meaning the next pick starts a new cycle.
func Exhausted(n int, seen []int) bool {
	if n <= 0 {
		return false
	}
	set := make(map[int]struct{}, len(seen))
	for _, idx := range seen {
		if idx >= 0 && idx < n {
			set[idx] = struct{}{}
		}
	}
	return len(set) >= n
}
