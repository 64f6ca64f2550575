package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/facecurator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSidecar(t *testing.T, dir, frame, body string) types.FrameTask {
	t.Helper()
	path := filepath.Join(dir, frame)
	require.NoError(t, os.WriteFile(path, []byte("img"), 0644))
	require.NoError(t, os.WriteFile(path+SidecarSuffix, []byte(body), 0644))
	return types.FrameTask{Name: frame, Path: path}
}

func TestSidecarDetect(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{"Two faces", `[{"loc":[0,10,10,0],"vec":[0.1,0.2]},{"loc":[0,20,20,0],"vec":[0.3,0.4]}]`, 2, false},
		{"No faces", `[]`, 0, false},
		{"Encoder error", `{"error": "CUDA out of memory"}`, 0, true},
		{"Garbage", `not json`, 0, true},
		{"Short box", `[{"loc":[0,10],"vec":[0.1]}]`, 0, true},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := writeSidecar(t, dir, filepath.Base(t.Name())+string(rune('a'+i))+".jpg", tt.body)

			faces, err := Sidecar{}.Detect(ctx, frame)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, faces, tt.want)
		})
	}
}

func TestSidecarMissingFile(t *testing.T) {
	frame := types.FrameTask{Name: "x.jpg", Path: filepath.Join(t.TempDir(), "x.jpg")}
	_, err := Sidecar{}.Detect(context.Background(), frame)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSidecarNeedsPath(t *testing.T) {
	_, err := Sidecar{}.Detect(context.Background(), types.FrameTask{Name: "streamed", Data: []byte{1}})
	assert.Error(t, err)
}
