// Package curate runs a batch of clips through detection and the presence
// policy, and delivers the accepted ones.
package curate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/andresmejia3/facecurator/internal/logging"
	"github.com/andresmejia3/facecurator/internal/metrics"
	"github.com/andresmejia3/facecurator/internal/presence"
	"github.com/andresmejia3/facecurator/internal/types"
	"github.com/andresmejia3/facecurator/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

// Loader yields the ordered frames of a clip.
type Loader interface {
	Clips() ([]string, error)
	Load(ctx context.Context, clipID string) ([]types.FrameTask, error)
}

// Detector maps one frame to its faces. An empty result means no face.
// Errors wrapping types.ErrEngineCrashed mean the detector must be replaced.
type Detector interface {
	Detect(ctx context.Context, frame types.FrameTask) ([]types.FaceResult, error)
	Close() error
}

// DetectorFactory starts the detector for worker id.
type DetectorFactory func(ctx context.Context, id int) (Detector, error)

// Recorder persists accepted clips, e.g. to PostgreSQL.
type Recorder interface {
	BeginBatch(ctx context.Context, batchID string, policy presence.Config) error
	InsertClip(ctx context.Context, batchID string, rec types.ClipRecord, fingerprint string) error
}

// Options configures a Runner.
type Options struct {
	Workers    int
	Policy     presence.Config
	OutputPath string    // results JSON, written at the end of the batch
	DebugDir   string    // cluster crops of accepted clips, disabled when empty
	BatchID    string    // generated when empty
	Progress   io.Writer // progress bar target, disabled when nil
}

// Runner evaluates a batch of clips on a bounded pool of detector engines.
type Runner struct {
	Loader      Loader
	NewDetector DetectorFactory
	Sink        FileSink
	Recorder    Recorder // optional
	Options

	log zerolog.Logger
}

// Report summarizes a finished (or interrupted) batch.
type Report struct {
	BatchID  string
	Records  []types.ClipRecord // accepted and delivered, in batch order
	Accepted int
	Rejected int
	Failed   int
	Dropped  int
	Frames   int
	Duration time.Duration
}

// Total is the number of clips that finished evaluation.
func (r *Report) Total() int { return r.Accepted + r.Rejected + r.Failed + r.Dropped }

type clipTask struct {
	Pos int
	ID  string
}

// clipResult wraps the output from a worker to be sent to the aggregator
type clipResult struct {
	Pos     int
	ID      string
	Frames  int
	Verdict presence.Verdict
	Err     error
	Elapsed time.Duration
}

// Run evaluates clipIDs and writes the accepted records to OutputPath.
// Invalid ids, a failing detector start or a failing results write abort the
// batch. Per-clip failures are logged and counted. On cancellation the clips
// finished so far are still written and ctx.Err() is returned.
func (r *Runner) Run(ctx context.Context, clipIDs []string) (*Report, error) {
	if err := ValidateClipIDs(clipIDs); err != nil {
		return nil, err
	}
	if err := r.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	if r.OutputPath == "" {
		return nil, errors.New("no output path")
	}

	r.log = logging.WithComponent("curate")
	start := time.Now()

	batchID := r.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}
	r.log = r.log.With().Str("batch", batchID).Logger()

	if r.Recorder != nil {
		if err := r.Recorder.BeginBatch(ctx, batchID, r.Policy); err != nil {
			return nil, fmt.Errorf("register batch: %w", err)
		}
	}

	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(clipIDs) {
		workers = len(clipIDs)
	}

	// All engines start before any clip is dispatched so a broken detector
	// setup fails fast.
	engines := make([]*engine, 0, workers)
	for i := 0; i < workers; i++ {
		e, err := startEngine(ctx, i, r.NewDetector, r.log)
		if err != nil {
			for _, started := range engines {
				started.close()
			}
			return nil, fmt.Errorf("start detector %d: %w", i, err)
		}
		engines = append(engines, e)
	}
	r.log.Info().Int("clips", len(clipIDs)).Int("workers", workers).Msg("Batch started")

	progress := r.Progress
	if progress == nil {
		progress = io.Discard
	}
	bar := progressbar.NewOptions(len(clipIDs),
		progressbar.OptionSetDescription("🎬 Curating"),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionShowCount(),
	)

	taskChan := make(chan clipTask, workers)
	resultsChan := make(chan clipResult, workers*2)
	var wg sync.WaitGroup

	// Must run concurrently to prevent deadlock on resultsChan
	report := &Report{BatchID: batchID}
	records := make([]*types.ClipRecord, len(clipIDs))
	aggDone := make(chan struct{})
	go func() {
		r.processResults(ctx, resultsChan, report, records, bar)
		close(aggDone)
	}()

	for _, e := range engines {
		wg.Add(1)
		go func(e *engine) {
			defer wg.Done()
			defer e.close()
			r.startWorker(ctx, e, taskChan, resultsChan)
		}(e)
	}

dispatch:
	for pos, id := range clipIDs {
		select {
		case taskChan <- clipTask{Pos: pos, ID: id}:
		case <-ctx.Done():
			break dispatch
		}
	}

	close(taskChan)
	wg.Wait()
	close(resultsChan)
	<-aggDone
	bar.Finish()

	for _, rec := range records {
		if rec != nil {
			report.Records = append(report.Records, *rec)
		}
	}
	if err := WriteResults(r.OutputPath, report.Records); err != nil {
		return report, fmt.Errorf("write results: %w", err)
	}
	report.Duration = time.Since(start)

	r.log.Info().
		Int("accepted", report.Accepted).
		Int("rejected", report.Rejected).
		Int("failed", report.Failed).
		Int("dropped", report.Dropped).
		Dur("took", report.Duration).
		Msg("Batch finished")

	return report, ctx.Err()
}

// startWorker evaluates clips from tasks until the channel closes.
func (r *Runner) startWorker(ctx context.Context, e *engine, tasks <-chan clipTask, results chan<- clipResult) {
	for task := range tasks {
		if err := ctx.Err(); err != nil {
			// Clips still queued after cancellation are not evaluated.
			continue
		}

		metrics.ActiveWorkers.Inc()
		began := time.Now()
		res := r.evaluateClip(ctx, e, task)
		res.Elapsed = time.Since(began)
		metrics.ActiveWorkers.Dec()

		results <- res
	}
}

func (r *Runner) evaluateClip(ctx context.Context, e *engine, task clipTask) clipResult {
	res := clipResult{Pos: task.Pos, ID: task.ID}
	log := r.log.With().Str("clip", task.ID).Int("worker", e.id).Logger()

	frames, err := r.Loader.Load(ctx, task.ID)
	if err != nil {
		res.Err = fmt.Errorf("load frames: %w", err)
		return res
	}
	res.Frames = len(frames)
	if len(frames) == 0 {
		log.Debug().Msg("Clip has no frames")
	}

	clip := presence.NewClip(r.Policy)
	for _, frame := range frames {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}
		faces, err := e.detect(ctx, frame)
		metrics.FramesTotal.Inc()
		if err != nil {
			if ctx.Err() != nil {
				res.Err = ctx.Err()
				return res
			}
			if errors.Is(err, errEngineUnavailable) {
				res.Err = err
				return res
			}
			metrics.DetectErrorsTotal.Inc()
			log.Warn().Err(err).Str("frame", frame.Name).Msg("Detection failed, counting frame as faceless")
			faces = nil
		}
		clip.AddFrame(frame.Index, faces)
	}

	res.Verdict, res.Err = clip.Evaluate()
	if res.Err != nil {
		return res
	}

	if res.Verdict.Accept && r.DebugDir != "" {
		if err := saveClusterCrops(r.DebugDir, task.ID, frames, clip.Sources(), res.Verdict.Clustering.Labels); err != nil {
			log.Warn().Err(err).Msg("Failed to write cluster crops")
		}
	}
	return res
}

// processResults runs in its own goroutine and is the only writer of report,
// records and the Recorder.
func (r *Runner) processResults(ctx context.Context, results <-chan clipResult, report *Report, records []*types.ClipRecord, bar *progressbar.ProgressBar) {
	// Clips that finished before a cancellation are still delivered.
	ctx = context.WithoutCancel(ctx)

	for res := range results {
		bar.Add(1)
		metrics.ClipDuration.Observe(res.Elapsed.Seconds())
		report.Frames += res.Frames
		log := r.log.With().Str("clip", res.ID).Logger()

		if res.Err != nil {
			if errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded) {
				continue
			}
			report.Failed++
			metrics.ClipsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
			log.Warn().Err(res.Err).Msg("Clip skipped")
			continue
		}

		s := res.Verdict.Stats
		if !res.Verdict.Accept {
			report.Rejected++
			metrics.ClipsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
			log.Debug().Float64("face_prob", s.FaceProb).Float64("avg_num_faces", s.AvgNumFaces).Msg("Clip rejected")
			continue
		}

		src, dst, err := r.Sink.Copy(ctx, res.ID)
		if err != nil {
			report.Dropped++
			metrics.ClipsTotal.WithLabelValues(metrics.OutcomeDropped).Inc()
			log.Warn().Err(err).Msg("Accepted clip dropped, artifact could not be copied")
			continue
		}

		rec := types.ClipRecord{
			ClipID:       res.ID,
			FaceProb:     s.FaceProb,
			FaceClusters: s.FaceClusters,
			AvgNumFaces:  s.AvgNumFaces,
		}
		records[res.Pos] = &rec
		report.Accepted++
		metrics.ClipsTotal.WithLabelValues(metrics.OutcomeAccepted).Inc()
		log.Info().
			Float64("face_prob", s.FaceProb).
			Float64("avg_num_faces", s.AvgNumFaces).
			Floats64("face_clusters", s.FaceClusters).
			Str("copied_to", dst).
			Msg("Clip accepted")

		if r.Recorder != nil {
			fingerprint, err := utils.Fingerprint(src)
			if err != nil {
				log.Debug().Err(err).Msg("No fingerprint for artifact")
			}
			if err := r.Recorder.InsertClip(ctx, report.BatchID, rec, fingerprint); err != nil {
				log.Warn().Err(err).Msg("Failed to record clip in database")
			}
		}
	}
}
