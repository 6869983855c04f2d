package pairs

import "sort"

// BruteForce pairs every id with all greater ids, yielding the complete
// graph over ids with each pair recorded under its smaller id.
func BruteForce(ids []ImageID) *OrderedPairList {
	out := NewOrderedPairList()
	AddBruteForce(out, ids)
	return out
}

// AddBruteForce merges the complete graph over ids into out.
func AddBruteForce(out *OrderedPairList, ids []ImageID) {
	sorted := uniqueSorted(ids)
	for i, a := range sorted {
		out.AddAll(a, sorted[i+1:]...)
	}
}

// BruteForceBetween merges every pair (a, b) with a in as and b in bs into
// out. Pairs are recorded under the id from as.
func BruteForceBetween(out *OrderedPairList, as, bs []ImageID) {
	targets := uniqueSorted(bs)
	if len(targets) == 0 {
		return
	}
	for _, a := range uniqueSorted(as) {
		out.AddAll(a, targets...)
	}
}

func uniqueSorted(ids []ImageID) []ImageID {
	out := make([]ImageID, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	n := 0
	for i, id := range out {
		if i > 0 && id == out[n-1] {
			continue
		}
		out[n] = id
		n++
	}
	return out[:n]
}
