package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/andresmejia3/facecurator/internal/types"
)

// SidecarSuffix is appended to a frame path to find its precomputed detections.
const SidecarSuffix = ".json"

// Sidecar reads detections produced ahead of time by an external encoder,
// stored as <frame path>.json. The file holds either a list of faces
// ({"loc": [...], "vec": [...]}) or an error object ({"error": "..."}).
type Sidecar struct{}

func (Sidecar) Detect(ctx context.Context, frame types.FrameTask) ([]types.FaceResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame.Path == "" {
		return nil, fmt.Errorf("frame %s has no path for sidecar lookup", frame.Name)
	}

	data, err := os.ReadFile(frame.Path + SidecarSuffix)
	if err != nil {
		return nil, err
	}
	return decodeSidecar(data)
}

func (Sidecar) Close() error { return nil }

func decodeSidecar(data []byte) ([]types.FaceResult, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var errorResult types.ErrorResult
		if err := json.Unmarshal(data, &errorResult); err != nil {
			return nil, fmt.Errorf("sidecar JSON malformed: %w", err)
		}
		if errorResult.Error == "" {
			return nil, fmt.Errorf("sidecar object without error message")
		}
		return nil, fmt.Errorf("encoder error: %s", errorResult.Error)
	}

	var faces []types.FaceResult
	if err := json.Unmarshal(data, &faces); err != nil {
		return nil, fmt.Errorf("sidecar JSON malformed: %w", err)
	}
	for i, f := range faces {
		if len(f.Loc) != 4 {
			return nil, fmt.Errorf("face %d: box has %d coordinates, want 4", i, len(f.Loc))
		}
	}
	return faces, nil
}
