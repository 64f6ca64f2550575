package curate

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresmejia3/facecurator/internal/metrics"
	"github.com/andresmejia3/facecurator/internal/types"
	"github.com/rs/zerolog"
)

// errEngineUnavailable means the detector crashed and could not be restarted.
// Every clip handed to the worker fails until a restart succeeds.
var errEngineUnavailable = errors.New("detector engine unavailable")

// A detector that keeps dying right after a restart is broken, not unlucky.
const maxConsecutiveCrashes = 3

// engine owns one detector and replaces it when it crashes.
type engine struct {
	id      int
	det     Detector
	factory DetectorFactory
	crashes int // consecutive, reset by any successful detection
	log     zerolog.Logger
}

func startEngine(ctx context.Context, id int, factory DetectorFactory, log zerolog.Logger) (*engine, error) {
	det, err := factory(ctx, id)
	if err != nil {
		return nil, err
	}
	return &engine{
		id:      id,
		det:     det,
		factory: factory,
		log:     log.With().Int("worker", id).Logger(),
	}, nil
}

// detect runs the detector on frame. A crash restarts the engine and retries
// the frame once; a frame that crashes twice is reported as a plain error so
// the caller can count it as faceless.
func (e *engine) detect(ctx context.Context, frame types.FrameTask) ([]types.FaceResult, error) {
	if e.det == nil {
		if err := e.restart(ctx); err != nil {
			return nil, err
		}
	}

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var faces []types.FaceResult
		faces, err = e.det.Detect(ctx, frame)
		if err == nil || !errors.Is(err, types.ErrEngineCrashed) || ctx.Err() != nil {
			if err == nil {
				e.crashes = 0
			}
			return faces, err
		}

		e.crashes++
		if e.crashes >= maxConsecutiveCrashes {
			e.close()
			return nil, fmt.Errorf("%w: %d crashes in a row, last: %v", errEngineUnavailable, e.crashes, err)
		}
		e.log.Warn().Err(err).Str("frame", frame.Name).Msg("Detector crashed, restarting")
		if rerr := e.restart(ctx); rerr != nil {
			return nil, rerr
		}
	}
	return nil, fmt.Errorf("frame %s crashed the detector twice: %v", frame.Name, err)
}

func (e *engine) restart(ctx context.Context) error {
	e.close()
	metrics.EngineRestartsTotal.Inc()
	det, err := e.factory(ctx, e.id)
	if err != nil {
		return fmt.Errorf("%w: %v", errEngineUnavailable, err)
	}
	e.det = det
	return nil
}

func (e *engine) close() {
	if e.det == nil {
		return
	}
	if err := e.det.Close(); err != nil {
		e.log.Debug().Err(err).Msg("Detector close failed")
	}
	if logged, ok := e.det.(interface{ Logs() string }); ok {
		if out := logged.Logs(); out != "" {
			e.log.Debug().Str("stderr", out).Msg("Detector output")
		}
	}
	e.det = nil
}
