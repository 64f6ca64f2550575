// Package presence decides whether a clip is dominated by a small, stable set
// of faces. It filters background detections per frame, clusters the retained
// embeddings into identities, aggregates presence statistics and applies the
// acceptance policy.
package presence

import "fmt"

// Band selects how avg_num_faces is compared against Target.
type Band string

const (
	// BandTight accepts Target-Slack <= avg <= Target+Slack.
	BandTight Band = "tight"
	// BandAtMost accepts avg <= Target.
	BandAtMost Band = "at-most"
)

// Denominator selects which frames count towards avg_num_faces.
type Denominator string

const (
	// DenominatorFaceFrames averages over frames with at least one retained face.
	DenominatorFaceFrames Denominator = "face-frames"
	// DenominatorAllFrames averages over every frame of the clip.
	DenominatorAllFrames Denominator = "all-frames"
)

// Config holds the tunables of one curation batch.
type Config struct {
	Tolerance   float64     `json:"tolerance" yaml:"tolerance" env:"TOLERANCE"`             // complete-linkage cut distance
	AreaRatio   float64     `json:"area_ratio" yaml:"area_ratio" env:"AREA_RATIO"`          // size cliff between adjacent faces
	MinFaceProb float64     `json:"min_face_prob" yaml:"min_face_prob" env:"MIN_FACE_PROB"` // minimum face_prob to accept
	Band        Band        `json:"band" yaml:"band" env:"BAND"`
	Target      float64     `json:"target" yaml:"target" env:"TARGET"`
	Slack       float64     `json:"slack" yaml:"slack" env:"SLACK"`
	Denominator Denominator `json:"denominator" yaml:"denominator" env:"DENOMINATOR"`
}

// DefaultConfig returns the policy used for two-person dialogue clips.
func DefaultConfig() Config {
	return Config{
		Tolerance:   0.7,
		AreaRatio:   3.0,
		MinFaceProb: 0.70,
		Band:        BandTight,
		Target:      2.0,
		Slack:       0.2,
		Denominator: DenominatorFaceFrames,
	}
}

// Validate checks the policy before a batch starts.
func (c Config) Validate() error {
	if c.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be > 0, got %v", c.Tolerance)
	}
	if c.AreaRatio <= 1 {
		return fmt.Errorf("area ratio must be > 1, got %v", c.AreaRatio)
	}
	if c.MinFaceProb < 0 || c.MinFaceProb > 1 {
		return fmt.Errorf("min face prob must be between 0.0 and 1.0, got %v", c.MinFaceProb)
	}
	if c.Target <= 0 {
		return fmt.Errorf("target face count must be > 0, got %v", c.Target)
	}
	switch c.Band {
	case BandAtMost:
	case BandTight:
		if c.Slack < 0 || c.Slack >= c.Target {
			return fmt.Errorf("slack must be in [0, target), got %v", c.Slack)
		}
	default:
		return fmt.Errorf("unknown band %q (use %q or %q)", c.Band, BandTight, BandAtMost)
	}
	switch c.Denominator {
	case DenominatorFaceFrames, DenominatorAllFrames:
	default:
		return fmt.Errorf("unknown denominator %q (use %q or %q)", c.Denominator, DenominatorFaceFrames, DenominatorAllFrames)
	}
	return nil
}

// Bounds returns the inclusive accept range for avg_num_faces.
func (c Config) Bounds() (lo, hi float64) {
	if c.Band == BandAtMost {
		return 0, c.Target
	}
	return c.Target - c.Slack, c.Target + c.Slack
}
