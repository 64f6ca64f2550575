package loader

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andresmejia3/facecurator/internal/types"
	"github.com/andresmejia3/facecurator/internal/utils"
	"github.com/rs/zerolog/log"
)

const megabyte = 1024 * 1024

var videoExts = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".mov":  true,
	".avi":  true,
	".webm": true,
}

// Video reads clips stored as one video file per clip. The clip id is the
// file name without its extension. Frames are decoded with ffmpeg and every
// NthFrame-th frame is kept.
type Video struct {
	Root     string
	NthFrame int
}

// Clips returns the ids of all video files in Root, sorted. Two files that
// share a stem (a.mp4, a.mkv) are rejected since their ids would collide.
func (v Video) Clips() ([]string, error) {
	paths, err := v.index()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(paths))
	for id := range paths {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (v Video) index() (map[string]string, error) {
	entries, err := os.ReadDir(v.Root)
	if err != nil {
		return nil, fmt.Errorf("read video dir: %w", err)
	}
	paths := make(map[string]string)
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if !e.Type().IsRegular() || !videoExts[strings.ToLower(ext)] {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ext)
		if prev, ok := paths[id]; ok {
			return nil, fmt.Errorf("clip id %q is shared by %s and %s", id, filepath.Base(prev), e.Name())
		}
		paths[id] = filepath.Join(v.Root, e.Name())
	}
	return paths, nil
}

// path looks clipID up by exact stem, so clip "a" never picks up "a.b.mp4".
func (v Video) path(clipID string) (string, error) {
	paths, err := v.index()
	if err != nil {
		return "", err
	}
	if p, ok := paths[clipID]; ok {
		return p, nil
	}
	return "", fmt.Errorf("no video file for clip %s: %w", clipID, os.ErrNotExist)
}

// Load decodes the clip and returns the sampled frames in order.
func (v Video) Load(ctx context.Context, clipID string) ([]types.FrameTask, error) {
	path, err := v.path(clipID)
	if err != nil {
		return nil, err
	}
	nth := v.NthFrame
	if nth < 1 {
		nth = 1
	}

	var frames []types.FrameTask
	if total := utils.GetTotalFrames(ctx, path); total > 0 {
		frames = make([]types.FrameTask, 0, total/nth+1)
	}

	ffmpeg := utils.NewFFmpegCmd(ctx, path)
	var stderrBuf bytes.Buffer
	ffmpeg.Stderr = &stderrBuf

	ffmpegOut, err := ffmpeg.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := ffmpeg.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	scanner := bufio.NewScanner(ffmpegOut)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	totalFrames := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		totalFrames++
		if totalFrames%nth != 0 {
			continue
		}
		buf := make([]byte, len(scanner.Bytes()))
		copy(buf, scanner.Bytes())
		frames = append(frames, types.FrameTask{
			Index: len(frames),
			Name:  fmt.Sprintf("frame_%06d.jpg", totalFrames),
			Data:  buf,
		})
	}
	scanErr := scanner.Err()

	// ffmpeg would block on a full pipe once we stop reading.
	if scanErr != nil || ctx.Err() != nil {
		_ = ffmpeg.Process.Kill()
	}
	waitErr := ffmpeg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, fmt.Errorf("frame scanner failed: %w", scanErr)
	}
	if waitErr != nil {
		if stderrBuf.Len() > 0 {
			log.Debug().Str("clip", clipID).Msg(stderrBuf.String())
		}
		return nil, fmt.Errorf("ffmpeg failed on %s: %w", filepath.Base(path), waitErr)
	}

	log.Debug().Str("clip", clipID).Int("decoded", totalFrames).Int("kept", len(frames)).Msg("Video decoded")
	return frames, nil
}
