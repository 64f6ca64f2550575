package presence

import (
	"sort"

	"github.com/montanaflynn/stats"
)

// ClipStats is the per-clip presence summary.
type ClipStats struct {
	FaceProb     float64   `json:"face_prob"`     // fraction of frames with a retained face, 2 dp
	FaceClusters []float64 `json:"face_clusters"` // cluster size / frames, 2 dp, largest first
	AvgNumFaces  float64   `json:"avg_num_faces"`
}

// Aggregate computes ClipStats from per-frame retained-face counts (one entry
// per frame, zero allowed) and the clustering of the retained embeddings.
//
// face_clusters stays empty unless the clustering was actually performed,
// i.e. the clip produced at least two embeddings.
func Aggregate(counts []int, clustering Clustering, denom Denominator) ClipStats {
	out := ClipStats{FaceClusters: []float64{}}
	n := len(counts)
	if n == 0 {
		return out
	}

	withFaces := make([]int, 0, n)
	for _, c := range counts {
		if c > 0 {
			withFaces = append(withFaces, c)
		}
	}
	out.FaceProb = round2(float64(len(withFaces)) / float64(n))

	sample := withFaces
	if denom == DenominatorAllFrames {
		sample = counts
	}
	if mean, err := stats.Mean(stats.LoadRawData(sample)); err == nil {
		out.AvgNumFaces = mean
	}

	if !clustering.Performed {
		return out
	}

	sizes := clustering.Sizes()
	order := make([]int, len(sizes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return sizes[order[i]] > sizes[order[j]]
	})
	for _, l := range order {
		out.FaceClusters = append(out.FaceClusters, round2(float64(sizes[l])/float64(n)))
	}

	return out
}

func round2(v float64) float64 {
	r, err := stats.Round(v, 2)
	if err != nil {
		return v
	}
	return r
}
