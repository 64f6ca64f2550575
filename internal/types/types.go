package types

import "errors"

// ErrEngineCrashed marks a detector failure that leaves the engine unusable
// (broken pipe, dead subprocess). The caller should restart the engine.
var ErrEngineCrashed = errors.New("detector engine crashed")

// FrameTask represents a single frame of a clip handed to a detector
type FrameTask struct {
	Index int
	Name  string // File name or synthetic "frame_%06d" for streamed frames
	Path  string // Empty for frames decoded from a video stream
	Data  []byte
}

// FaceResult matches the JSON structure coming back from the detector
type FaceResult struct {
	Loc []int     `json:"loc"` // [top, right, bottom, left]
	Vec []float64 `json:"vec"` // face encoding
}

// Area returns (bottom-top) * (right-left). Malformed boxes have zero area.
func (f FaceResult) Area() float64 {
	if len(f.Loc) != 4 {
		return 0
	}
	return float64(f.Loc[2]-f.Loc[0]) * float64(f.Loc[1]-f.Loc[3])
}

// ErrorResult captures the error object returned by the detector on failure
type ErrorResult struct {
	Error string `json:"error"`
}

// ClipRecord is one accepted clip as written to the results file
type ClipRecord struct {
	ClipID       string    `json:"clip_id"`
	FaceProb     float64   `json:"face_prob"`
	FaceClusters []float64 `json:"face_clusters"`
	AvgNumFaces  float64   `json:"avg_num_faces"`
}
