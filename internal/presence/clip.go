package presence

import (
	"fmt"

	"github.com/andresmejia3/facecurator/internal/types"
)

// Source locates a retained embedding inside its clip.
type Source struct {
	Frame int
	Loc   []int // [top, right, bottom, left]
}

// Verdict is the accept/reject outcome for one clip.
type Verdict struct {
	Accept     bool
	Stats      ClipStats
	Clustering Clustering
}

// Clip accumulates retained detections for one clip, frame by frame.
// A Clip is not safe for concurrent use; each worker owns its own.
type Clip struct {
	cfg        Config
	counts     []int
	embeddings [][]float64
	sources    []Source
}

// NewClip starts an empty accumulator using the given policy.
func NewClip(cfg Config) *Clip {
	return &Clip{cfg: cfg}
}

// AddFrame filters the detections of the next frame and keeps the survivors.
// It returns the number of retained faces. A nil or empty slice records a
// frame without faces.
func (c *Clip) AddFrame(frame int, faces []types.FaceResult) int {
	retained := FilterByArea(faces, c.cfg.AreaRatio)
	c.counts = append(c.counts, len(retained))
	for _, f := range retained {
		if len(f.Vec) == 0 {
			continue
		}
		c.embeddings = append(c.embeddings, f.Vec)
		c.sources = append(c.sources, Source{Frame: frame, Loc: f.Loc})
	}
	return len(retained)
}

// Frames returns the number of frames added so far.
func (c *Clip) Frames() int { return len(c.counts) }

// Embeddings returns the retained embeddings in arrival order.
func (c *Clip) Embeddings() [][]float64 { return c.embeddings }

// Sources returns where each retained embedding came from, aligned with Embeddings.
func (c *Clip) Sources() []Source { return c.sources }

// Evaluate clusters the accumulated embeddings, aggregates the statistics and
// applies the policy. A clip without frames is rejected with zero stats.
func (c *Clip) Evaluate() (Verdict, error) {
	clustering, err := Cluster(c.embeddings, c.cfg.Tolerance)
	if err != nil {
		return Verdict{}, fmt.Errorf("cluster %d embeddings: %w", len(c.embeddings), err)
	}

	s := Aggregate(c.counts, clustering, c.cfg.Denominator)
	return Verdict{
		Accept:     c.cfg.Decide(s),
		Stats:      s,
		Clustering: clustering,
	}, nil
}
