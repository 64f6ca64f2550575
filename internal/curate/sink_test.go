package curate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andresmejia3/facecurator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateClipIDs(t *testing.T) {
	assert.NoError(t, ValidateClipIDs(nil))
	assert.NoError(t, ValidateClipIDs([]string{"a1b2c3d4e5", "clip 01", "über_dialog"}))

	tests := []struct {
		name string
		ids  []string
	}{
		{"Empty id", []string{"ok", ""}},
		{"Path separator", []string{"a/b"}},
		{"Backslash", []string{`a\b`}},
		{"Parent directory", []string{".."}},
		{"Current directory", []string{"."}},
		{"Control character", []string{"clip\n01"}},
		{"Invalid UTF-8", []string{"clip\xff"}},
		{"Duplicate", []string{"a", "b", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateClipIDs(tt.ids), ErrInvalidClipID)
		})
	}
}

func TestFileSinkResolve(t *testing.T) {
	clips := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(clips, "folder"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(clips, "video.mp4"), []byte("v"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(clips, "video.txt"), []byte("t"), 0644))

	s := FileSink{ClipsDir: clips}

	got, err := s.Resolve("folder")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(clips, "folder"), got)

	got, err = s.Resolve("video")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(clips, "video.mp4"), got, "first match in name order")

	_, err = s.Resolve("vid")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileSinkResolveIgnoresLongerStems(t *testing.T) {
	clips := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(clips, "a.mp4"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(clips, "a.b.mp4"), []byte("ab"), 0644))

	s := FileSink{ClipsDir: clips}

	got, err := s.Resolve("a")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(clips, "a.mp4"), got)

	got, err = s.Resolve("a.b")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(clips, "a.b.mp4"), got)

	require.NoError(t, os.Remove(filepath.Join(clips, "a.mp4")))
	_, err = s.Resolve("a")
	assert.ErrorIs(t, err, os.ErrNotExist, "a.b.mp4 is not an artifact of clip a")
}

func TestFileSinkCopiesDirectoryTree(t *testing.T) {
	clips := t.TempDir()
	src := filepath.Join(clips, "clip")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.mp4"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.mp4"), []byte("b"), 0644))

	s := FileSink{ClipsDir: clips, ResultsDir: filepath.Join(t.TempDir(), "results")}
	gotSrc, dst, err := s.Copy(context.Background(), "clip")
	require.NoError(t, err)
	assert.Equal(t, src, gotSrc)
	assert.Equal(t, filepath.Join(s.ResultsDir, "clip"), dst)

	b, err := os.ReadFile(filepath.Join(dst, "sub", "b.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(b))
}

func TestFileSinkCopyMissing(t *testing.T) {
	s := FileSink{ClipsDir: t.TempDir(), ResultsDir: t.TempDir()}
	_, _, err := s.Copy(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestWriteResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "results.json")
	recs := []types.ClipRecord{
		{ClipID: "dialog_<ü>", FaceProb: 0.95, FaceClusters: []float64{0.9, 0.85}, AvgNumFaces: 2},
		{ClipID: "solo", FaceProb: 0.8, AvgNumFaces: 1.9},
	}
	require.NoError(t, WriteResults(path, recs))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.True(t, strings.HasPrefix(out, "[\n  {\n    \"clip_id\": \"dialog_<ü>\""), out)
	assert.Contains(t, out, `"face_clusters": []`)
	assert.Contains(t, out, `"avg_num_faces": 2`)
}

func TestWriteResultsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, WriteResults(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}
