package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/andresmejia3/facecurator/internal/types"
	"github.com/andresmejia3/facecurator/internal/utils" // Using the SafeCommand wrapper
)

// Response status bytes written by python/worker.py
const (
	statusOK    = 0
	statusError = 1
)

// maxResponse bounds a single response so a corrupted header cannot make us
// allocate gigabytes.
const maxResponse = 64 * 1024 * 1024

// closeGrace is how long Close waits for the process to exit on stdin EOF
// before killing it. It also bounds how long Wait drains the stderr pipe
// held open by orphaned grandchildren.
const closeGrace = 500 * time.Millisecond

type PythonWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
	Timeout  time.Duration // per-frame read deadline, 0 disables it
}

// NewPythonWorker starts one detector/encoder process. command is the argv,
// e.g. ["python3", "-u", "python/worker.py"]. The process is killed when ctx
// is cancelled.
func NewPythonWorker(ctx context.Context, id int, command []string, timeout time.Duration) (*PythonWorker, error) {
	if len(command) == 0 {
		return nil, errors.New("empty worker command")
	}
	py := utils.NewSafeCommand(ctx, command[0], command[1:]...)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}
	py.Cmd.WaitDelay = closeGrace

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
		Timeout:  timeout,
	}, nil
}

// Communicate sends one length-prefixed request and reads one length-prefixed
// response. Any error here leaves the stream out of sync and means the
// process must be replaced.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	if d, ok := w.DataPipe.(interface{ SetReadDeadline(time.Time) error }); ok && w.Timeout > 0 {
		_ = d.SetReadDeadline(time.Now().Add(w.Timeout))
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch the "ModuleNotFoundError" crash
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxResponse {
		return nil, fmt.Errorf("response of %d bytes exceeds limit", respLen)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// ProcessFrame sends encoded image bytes and decodes the detections.
//
// Response: [Status:1] then either
//
//	[NumFaces:u32] { [Box:4×i32 top,right,bottom,left] [Dim:u32] [Vec:Dim×f32] }...
//
// or, for a recoverable error inside python, [MsgLen:u32] [Msg].
func (w *PythonWorker) ProcessFrame(data []byte) ([]types.FaceResult, error) {
	resp, err := w.Communicate(data)
	if err != nil {
		return nil, fmt.Errorf("worker %d: %w: %v", w.ID, types.ErrEngineCrashed, err)
	}
	return decodeResponse(resp)
}

// Detect runs the detector on one frame. Frames without in-memory data are
// read from their path.
func (w *PythonWorker) Detect(ctx context.Context, frame types.FrameTask) ([]types.FaceResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := frame.Data
	if data == nil {
		var err error
		if data, err = os.ReadFile(frame.Path); err != nil {
			return nil, fmt.Errorf("read frame %s: %w", frame.Name, err)
		}
	}
	return w.ProcessFrame(data)
}

// Logs returns whatever the process wrote to stderr. Only safe after Close.
func (w *PythonWorker) Logs() string {
	if w.Cmd == nil {
		return ""
	}
	return w.Cmd.Stderr.String()
}

// Close stops the process. A worker that does not exit on stdin EOF within
// closeGrace (e.g. hung inside a frame) is killed.
func (w *PythonWorker) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil || w.Cmd.Process == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		// A killed or crashed process reports an exit error we already surfaced.
		_ = w.Cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(closeGrace):
		_ = w.Cmd.Process.Kill()
		<-done
	}
	return nil
}

func decodeResponse(resp []byte) ([]types.FaceResult, error) {
	r := bytes.NewReader(resp)

	status, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("empty worker response: %w", err)
	}

	if status == statusError {
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("malformed error response: %w", err)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("malformed error response: %w", err)
		}
		return nil, fmt.Errorf("python worker error: %s", msg)
	}
	if status != statusOK {
		return nil, fmt.Errorf("unknown worker status %d", status)
	}

	var numFaces uint32
	if err := binary.Read(r, binary.BigEndian, &numFaces); err != nil {
		return nil, fmt.Errorf("malformed face count: %w", err)
	}

	faces := make([]types.FaceResult, 0, numFaces)
	for i := uint32(0); i < numFaces; i++ {
		var box [4]int32
		if err := binary.Read(r, binary.BigEndian, &box); err != nil {
			return nil, fmt.Errorf("face %d: malformed box: %w", i, err)
		}
		var dim uint32
		if err := binary.Read(r, binary.BigEndian, &dim); err != nil {
			return nil, fmt.Errorf("face %d: malformed dimension: %w", i, err)
		}
		if int64(dim)*4 > int64(r.Len()) {
			return nil, fmt.Errorf("face %d: dimension %d exceeds payload", i, dim)
		}
		raw := make([]float32, dim)
		if err := binary.Read(r, binary.BigEndian, raw); err != nil {
			return nil, fmt.Errorf("face %d: malformed vector: %w", i, err)
		}

		vec := make([]float64, dim)
		for j, v := range raw {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return nil, fmt.Errorf("face %d: non-finite vector component", i)
			}
			vec[j] = float64(v)
		}
		faces = append(faces, types.FaceResult{
			Loc: []int{int(box[0]), int(box[1]), int(box[2]), int(box[3])},
			Vec: vec,
		})
	}
	return faces, nil
}
