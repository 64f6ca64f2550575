package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/andresmejia3/facecurator/internal/config"
	"github.com/andresmejia3/facecurator/internal/curate"
	"github.com/andresmejia3/facecurator/internal/loader"
	"github.com/andresmejia3/facecurator/internal/metrics"
	"github.com/andresmejia3/facecurator/internal/presence"
	"github.com/andresmejia3/facecurator/internal/utils"
	"github.com/andresmejia3/facecurator/internal/worker"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"
)

// curateOptions mirrors the curate flags. Values are only applied to the
// loaded configuration when the flag was set explicitly.
type curateOptions struct {
	FramesDir   string
	ClipsDir    string
	ResultsDir  string
	OutputPath  string
	Source      string
	NthFrame    int
	Workers     int
	Engine      string
	WorkerCmd   string
	Timeout     time.Duration
	DebugDir    string
	MetricsAddr string
	BatchID     string

	Tolerance   float64
	AreaRatio   float64
	MinFaceProb float64
	Band        string
	Target      float64
	Slack       float64
	Denominator string
}

var curateOpts curateOptions

var curateCmd = &cobra.Command{
	Use:   "curate [clip ids...]",
	Short: "Select clips showing a stable pair of faces and copy them to the results dir",
	Long: `Evaluates every clip under --frames (or only the given clip ids) and copies
the accepted ones from --clips into --results. Accepted clip statistics are
written as a JSON array to --output.`,
	Run: func(cmd *cobra.Command, args []string) {
		runCurate(cmd, args)
	},
}

func init() {
	bindCurateFlags(curateCmd, &curateOpts)
	rootCmd.AddCommand(curateCmd)
}

func bindCurateFlags(cmd *cobra.Command, opts *curateOptions) {
	f := cmd.Flags()
	def := config.Default()

	f.StringVarP(&opts.FramesDir, "frames", "f", "", "Directory with one frame folder (or video file) per clip")
	f.StringVar(&opts.ClipsDir, "clips", "", "Directory with the clip artifacts to copy (default: --frames)")
	f.StringVarP(&opts.ResultsDir, "results", "r", "", "Directory accepted clips are copied into")
	f.StringVarP(&opts.OutputPath, "output", "o", def.OutputPath, "Results JSON file")
	f.StringVar(&opts.Source, "source", def.Source, "Frame source: dir or video")
	f.IntVarP(&opts.NthFrame, "nth-frame", "n", def.NthFrame, "Keep every nth decoded frame (video source)")
	f.IntVarP(&opts.Workers, "workers", "w", def.Workers, "Number of parallel detector engines")
	f.StringVar(&opts.Engine, "engine", def.Detector.Engine, "Detector: python or sidecar")
	f.StringVar(&opts.WorkerCmd, "worker-cmd", strings.Join(def.Detector.Command, " "), "Detector worker command line (python engine)")
	f.DurationVar(&opts.Timeout, "timeout", def.Detector.Timeout, "Per-frame detector timeout (0 disables)")
	f.StringVarP(&opts.DebugDir, "debug-dir", "d", "", "Save face crops of accepted clips per cluster")
	f.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	f.StringVar(&opts.BatchID, "batch-id", "", "Batch id (default: random UUID)")

	p := def.Policy
	f.Float64VarP(&opts.Tolerance, "tolerance", "t", p.Tolerance, "Identity clustering cut distance")
	f.Float64Var(&opts.AreaRatio, "area-ratio", p.AreaRatio, "Size ratio that marks a background face")
	f.Float64Var(&opts.MinFaceProb, "min-face-prob", p.MinFaceProb, "Minimum fraction of frames with a face")
	f.StringVar(&opts.Band, "band", string(p.Band), "Face count band: tight or at-most")
	f.Float64Var(&opts.Target, "target", p.Target, "Target average number of faces")
	f.Float64Var(&opts.Slack, "slack", p.Slack, "Half width of the tight band")
	f.StringVar(&opts.Denominator, "denominator", string(p.Denominator), "avg_num_faces over face-frames or all-frames")
}

// applyCurateFlags copies every explicitly set flag over the loaded configuration.
func applyCurateFlags(cmd *cobra.Command, opts curateOptions, cfg *config.Config) {
	changed := cmd.Flags().Changed
	set := func(name string, apply func()) {
		if changed(name) {
			apply()
		}
	}

	set("frames", func() { cfg.FramesDir = opts.FramesDir })
	set("clips", func() { cfg.ClipsDir = opts.ClipsDir })
	set("results", func() { cfg.ResultsDir = opts.ResultsDir })
	set("output", func() { cfg.OutputPath = opts.OutputPath })
	set("source", func() { cfg.Source = opts.Source })
	set("nth-frame", func() { cfg.NthFrame = opts.NthFrame })
	set("workers", func() { cfg.Workers = opts.Workers })
	set("engine", func() { cfg.Detector.Engine = opts.Engine })
	set("worker-cmd", func() { cfg.Detector.Command = strings.Fields(opts.WorkerCmd) })
	set("timeout", func() { cfg.Detector.Timeout = opts.Timeout })
	set("debug-dir", func() { cfg.DebugDir = opts.DebugDir })
	set("metrics-addr", func() { cfg.MetricsAddr = opts.MetricsAddr })

	set("tolerance", func() { cfg.Policy.Tolerance = opts.Tolerance })
	set("area-ratio", func() { cfg.Policy.AreaRatio = opts.AreaRatio })
	set("min-face-prob", func() { cfg.Policy.MinFaceProb = opts.MinFaceProb })
	set("band", func() { cfg.Policy.Band = presence.Band(opts.Band) })
	set("target", func() { cfg.Policy.Target = opts.Target })
	set("slack", func() { cfg.Policy.Slack = opts.Slack })
	set("denominator", func() { cfg.Policy.Denominator = presence.Denominator(opts.Denominator) })
}

// validateCurateFlags ensures the configuration is usable before starting heavy processes.
func validateCurateFlags(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	info, err := os.Stat(cfg.FramesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("frames directory does not exist: %w", err)
		}
		return fmt.Errorf("unable to access frames directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("frames path %s is not a directory", cfg.FramesDir)
	}
	if info, err := os.Stat(cfg.ResultsDir); err == nil && !info.IsDir() {
		return fmt.Errorf("results path %s is not a directory", cfg.ResultsDir)
	}
	return nil
}

func newLoader(cfg *config.Config) curate.Loader {
	if cfg.Source == config.SourceVideo {
		return loader.Video{Root: cfg.FramesDir, NthFrame: cfg.NthFrame}
	}
	return loader.Dir{Root: cfg.FramesDir}
}

func newDetectorFactory(cfg *config.Config) curate.DetectorFactory {
	if cfg.Detector.Engine == config.EngineSidecar {
		return func(ctx context.Context, id int) (curate.Detector, error) {
			return worker.Sidecar{}, nil
		}
	}
	command := cfg.Detector.Command
	timeout := cfg.Detector.Timeout
	return func(ctx context.Context, id int) (curate.Detector, error) {
		w, err := worker.NewPythonWorker(ctx, id, command, timeout)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

// runCurate orchestrates a curation batch: config, loader, engine pool and summary.
func runCurate(cmd *cobra.Command, args []string) {
	cfg := *appConfig
	applyCurateFlags(cmd, curateOpts, &cfg)
	if err := validateCurateFlags(&cfg); err != nil {
		utils.Die("Invalid configuration", err, nil)
	}
	ctx := cmd.Context()

	src := newLoader(&cfg)
	ids := args
	if len(ids) == 0 {
		var err error
		if ids, err = src.Clips(); err != nil {
			utils.Die("Failed to list clips", err, nil)
		}
	}
	fmt.Fprintf(os.Stderr, "🎞️  Found %s in %s\n", english.Plural(len(ids), "clip", ""), cfg.FramesDir)
	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d %s engine(s)...\n", min(cfg.Workers, max(len(ids), 1)), cfg.Detector.Engine)

	if cfg.MetricsAddr != "" {
		srv := metrics.StartMetricsServer(cfg.MetricsAddr)
		defer srv.Shutdown(context.Background())
	}

	runner := &curate.Runner{
		Loader:      src,
		NewDetector: newDetectorFactory(&cfg),
		Sink:        curate.FileSink{ClipsDir: cfg.ClipsDir, ResultsDir: cfg.ResultsDir},
		Options: curate.Options{
			Workers:    cfg.Workers,
			Policy:     cfg.Policy,
			OutputPath: cfg.OutputPath,
			DebugDir:   cfg.DebugDir,
			BatchID:    curateOpts.BatchID,
			Progress:   os.Stderr,
		},
	}
	if DB != nil {
		runner.Recorder = DB
	}

	report, err := runner.Run(ctx, ids)
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintf(os.Stderr, "\n🛑 Interrupted. Results for finished clips were written.\n")
	case err != nil:
		utils.Die("Curation failed", err, nil)
	}
	if report == nil {
		return
	}
	printSummary(os.Stderr, report, cfg)
}

func printSummary(w io.Writer, report *curate.Report, cfg config.Config) {
	lo, hi := cfg.Policy.Bounds()

	fmt.Fprintf(w, "\n---------------------------------------------------------\n")
	fmt.Fprintf(w, "📊 CURATION SUMMARY (batch %s)\n", report.BatchID)
	fmt.Fprintf(w, "---------------------------------------------------------\n")
	fmt.Fprintf(w, "📐 Policy: face_prob >= %.2f, %.2f <= avg_num_faces <= %.2f (%s, %s)\n",
		cfg.Policy.MinFaceProb, lo, hi, cfg.Policy.Band, cfg.Policy.Denominator)
	fmt.Fprintf(w, "✅ Accepted: %s\n", english.Plural(report.Accepted, "clip", ""))
	fmt.Fprintf(w, "❌ Rejected: %s\n", english.Plural(report.Rejected, "clip", ""))
	if report.Dropped > 0 {
		fmt.Fprintf(w, "⚠️  Dropped:  %s (artifact could not be copied)\n", english.Plural(report.Dropped, "clip", ""))
	}
	if report.Failed > 0 {
		fmt.Fprintf(w, "💥 Failed:   %s\n", english.Plural(report.Failed, "clip", ""))
	}
	fmt.Fprintf(w, "👁️  Frames analysed: %s in %s\n", humanize.Comma(int64(report.Frames)), report.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "📄 Results: %s\n", cfg.OutputPath)
	fmt.Fprintf(w, "---------------------------------------------------------\n")
}
