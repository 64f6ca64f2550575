package presence

import (
	"sort"

	"github.com/andresmejia3/facecurator/internal/types"
)

// FilterByArea drops background faces from a single frame.
//
// Faces are ranked by box area, largest first (ties keep input order). The
// first adjacent pair whose area ratio exceeds ratio is a size cliff and
// everything after it is discarded. Without a cliff every face is kept.
// The returned slice is ordered largest first and never longer than faces.
func FilterByArea(faces []types.FaceResult, ratio float64) []types.FaceResult {
	if len(faces) <= 1 {
		return faces
	}

	ranked := make([]types.FaceResult, len(faces))
	copy(ranked, faces)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Area() > ranked[j].Area()
	})

	for i := 0; i+1 < len(ranked); i++ {
		if isCliff(ranked[i].Area(), ranked[i+1].Area(), ratio) {
			return ranked[:i+1]
		}
	}
	return ranked
}

func isCliff(larger, smaller, ratio float64) bool {
	if smaller <= 0 {
		// Degenerate box next to a real face
		return larger > 0
	}
	return larger/smaller > ratio
}
