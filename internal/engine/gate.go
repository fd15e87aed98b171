package engine

import "math"

// UploadWorthy implements the "near or better" upload cutoff: a solution
// is worth uploading when its score is at most ceil(1.05 * best_known), or
// unconditionally when no best score is recorded.
func UploadWorthy(score int, bestKnown *int) bool {
	if bestKnown == nil {
		return true
	}
	cutoff := int(math.Ceil(1.05 * float64(*bestKnown)))
	return score <= cutoff
}
