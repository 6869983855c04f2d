package pairs

// Reduce converts ranked per-image matches into an OrderedPairList in which
// every unordered pair appears at most once.
//
// Images are processed in ascending id order. The first image keeps the
// first numMatches entries of its ranking, minus itself. Every later image
// cur walks its ranking and accepts a candidate m when
//
//   - m > cur, or
//   - m < cur, m has an entry and that entry does not contain cur,
//
// until numMatches candidates are accepted. Self matches are never
// accepted. numMatches == 0 means no limit. Images without accepted matches
// are left out of the result.
//
// The result depends on the ascending processing order; the reduction
// must stay sequential.
func Reduce(all PairList, numMatches int) *OrderedPairList {
	out := NewOrderedPairList()

	keys := all.sortedKeys()
	if len(keys) == 0 {
		return out
	}

	// recorded tracks entries that exist for the m < cur check. The first
	// image always has an entry, even an empty one.
	recorded := make(map[ImageID]bool, len(keys))

	first := keys[0]
	window := all[first]
	if numMatches > 0 && len(window) > numMatches {
		window = window[:numMatches]
	}
	recorded[first] = true
	for _, m := range window {
		if m != first {
			out.Add(first, m)
		}
	}

	for _, cur := range keys[1:] {
		var accepted []ImageID
		for _, m := range all[cur] {
			switch {
			case m == cur:
				continue
			case m < cur:
				if !recorded[m] || out.Contains(m, cur) {
					continue
				}
			}
			accepted = append(accepted, m)
			if numMatches > 0 && len(accepted) == numMatches {
				break
			}
		}

		if len(accepted) > 0 {
			recorded[cur] = true
			out.AddAll(cur, accepted...)
		}
	}

	return out
}
