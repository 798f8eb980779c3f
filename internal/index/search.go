package index

// warmBytes is the size of the hot tail kept preferentially in cache. 8,192 bytes is the
// typical value. SetWarmBytes lets a deployment retune it before opening any index.
var warmBytes = 8192

// SetWarmBytes overrides the warm-tail size. The value is read on every search, so it
// applies to indexes already open as well as to ones opened later. Ignores non-positive
// values, leaving the previous setting (or the 8,192-byte default) in place.
func SetWarmBytes(n int) {
	if n > 0 {
		warmBytes = n
	}
}

// keyFunc reads the comparison key of slot i from a snapshot buffer. largestLowerBoundSlot
// and smallestUpperBoundSlot are generic over it so the same code serves KEY-mode lookups
// (by absolute offset), VALUE-mode lookups (by physical position), and the TimeIndex's
// timestamp-keyed entries.
type keyFunc func(slot int) int64

// warmSlotsFor returns how many of the trailing entries count as "warm" for a region of
// entrySize bytes per entry, given entries live entries.
func warmSlotsFor(entries, entrySize int) int {
	warm := warmBytes / entrySize
	if warm > entries {
		return entries
	}
	return warm
}

// firstGE returns the smallest slot in [lo, hi) with keyAt(slot) >= target, or hi if no
// such slot exists in the range. Standard monotonic binary search (sort.Search shape).
func firstGE(lo, hi int, keyAt keyFunc, target int64) int {
	for lo < hi {
		mid := lo + (hi-lo)/2
		if keyAt(mid) >= target {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// lowerBoundScan returns the largest slot in [lo, hi) with keyAt(slot) <= target.
// Precondition: keyAt(lo) <= target (the caller establishes this before calling).
func lowerBoundScan(lo, hi int, keyAt keyFunc, target int64) int {
	return firstGE(lo, hi, keyAt, target+1) - 1
}

// largestLowerBoundSlot returns the greatest slot i in [0, entries) with keyAt(i) <=
// target, or -1 if no such slot exists. warmSlots entries at the tail are
// searched before falling back to the cold head, so a steady-state fetch workload (which
// mostly targets recent offsets) stays within the cached tail.
func largestLowerBoundSlot(entries int, keyAt keyFunc, target int64, warmSlots int) int {
	if entries == 0 {
		return -1
	}
	if keyAt(entries-1) <= target {
		return entries - 1
	}
	if keyAt(0) > target {
		return -1
	}
	if warmSlots <= 0 || warmSlots >= entries {
		return lowerBoundScan(0, entries, keyAt, target)
	}
	coldEnd := entries - warmSlots
	if target >= keyAt(coldEnd) {
		return lowerBoundScan(coldEnd, entries, keyAt, target)
	}
	return lowerBoundScan(0, coldEnd, keyAt, target)
}

// smallestUpperBoundSlot returns the least slot i in [0, entries) with keyAt(i) >=
// target, or -1 if none exists. Symmetric to largestLowerBoundSlot, including the
// warm/cold split.
func smallestUpperBoundSlot(entries int, keyAt keyFunc, target int64, warmSlots int) int {
	if entries == 0 {
		return -1
	}
	if keyAt(0) >= target {
		return 0
	}
	if keyAt(entries-1) < target {
		return -1
	}
	if warmSlots <= 0 || warmSlots >= entries {
		return firstGE(0, entries, keyAt, target)
	}
	coldEnd := entries - warmSlots
	if keyAt(coldEnd) < target {
		return firstGE(coldEnd, entries, keyAt, target)
	}
	return firstGE(0, coldEnd, keyAt, target)
}
