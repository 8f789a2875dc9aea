package aggregation

import "math"

// CountOccurrences counts how often each code appears.
func CountOccurrences(codes []string) map[string]int {
	counts := make(map[string]int, len(codes))
	for _, code := range codes {
		counts[code]++
	}
	return counts
}

// AllocateProportionally splits total across codes by their occurrence counts. Each share is
// rounded half-to-even on its own, so the shares may not add up to total exactly.
func AllocateProportionally(total int64, counts map[string]int) map[string]int64 {
	occurrences := 0
	for _, count := range counts {
		if count > 0 {
			occurrences += count
		}
	}
	shares := make(map[string]int64, len(counts))
	if occurrences == 0 {
		return shares
	}
	for code, count := range counts {
		if count <= 0 {
			continue
		}
		shares[code] = int64(math.RoundToEven(float64(total) * float64(count) / float64(occurrences)))
	}
	return shares
}
