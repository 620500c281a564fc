package util

// PairKey folds two user ids into one symmetric conversation key:
// min(a,b)*2^30 + max(a,b). Ids are expected to stay below 2^30, so the
// mapping is collision-free and PairKey(a,b) == PairKey(b,a). The key
// addresses the shared history cache for a 1:1 conversation.
func PairKey(a, b int64) int64 {
	if a > b {
		a, b = b, a
	}
	return a<<30 + b
}
