package curate

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"

	"github.com/andresmejia3/facecurator/internal/presence"
	"github.com/andresmejia3/facecurator/internal/types"
	"github.com/disintegration/imaging"
)

// saveClusterCrops writes every retained face of an accepted clip to
// dir/<clip>/<label>/<n>.png so the identity split can be inspected by eye.
func saveClusterCrops(dir, clipID string, frames []types.FrameTask, sources []presence.Source, labels []int) error {
	if len(sources) != len(labels) {
		return fmt.Errorf("%d sources but %d labels", len(sources), len(labels))
	}

	decoded := make(map[int]image.Image)
	perLabel := make(map[int]int)
	for i, src := range sources {
		if src.Frame < 0 || src.Frame >= len(frames) || len(src.Loc) != 4 {
			continue
		}
		img, ok := decoded[src.Frame]
		if !ok {
			var err error
			img, err = decodeFrame(frames[src.Frame])
			if err != nil {
				return fmt.Errorf("decode %s: %w", frames[src.Frame].Name, err)
			}
			decoded[src.Frame] = img
		}

		// Loc is [top, right, bottom, left]
		rect := image.Rect(src.Loc[3], src.Loc[0], src.Loc[1], src.Loc[2]).Intersect(img.Bounds())
		if rect.Empty() {
			continue
		}

		label := labels[i]
		out := filepath.Join(dir, clipID, strconv.Itoa(label))
		if err := os.MkdirAll(out, 0755); err != nil {
			return err
		}
		name := filepath.Join(out, strconv.Itoa(perLabel[label])+".png")
		perLabel[label]++
		if err := imaging.Save(imaging.Crop(img, rect), name); err != nil {
			return err
		}
	}
	return nil
}

func decodeFrame(f types.FrameTask) (image.Image, error) {
	if f.Data != nil {
		return imaging.Decode(bytes.NewReader(f.Data))
	}
	return imaging.Open(f.Path)
}
