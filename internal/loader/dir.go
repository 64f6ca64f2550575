// Package loader yields the ordered frames of a clip from disk.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andresmejia3/facecurator/internal/types"
)

var frameExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Dir reads clips laid out as one sub-directory of frame images per clip:
//
//	Root/<clip id>/<frame>.jpg
//
// Frames are ordered by file name. Non-image files are ignored.
type Dir struct {
	Root string
}

// Clips returns the sub-directory names of Root, sorted.
func (d Dir) Clips() ([]string, error) {
	entries, err := os.ReadDir(d.Root)
	if err != nil {
		return nil, fmt.Errorf("read frames dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Load lists the frames of one clip. Image bytes are not read here; detectors
// read them from Path. An empty directory yields no frames and no error.
func (d Dir) Load(ctx context.Context, clipID string) ([]types.FrameTask, error) {
	dir := filepath.Join(d.Root, clipID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read clip %s: %w", clipID, err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && frameExts[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	frames := make([]types.FrameTask, 0, len(names))
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frames = append(frames, types.FrameTask{
			Index: i,
			Name:  name,
			Path:  filepath.Join(dir, name),
		})
	}
	return frames, nil
}
