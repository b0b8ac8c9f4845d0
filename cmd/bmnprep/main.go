package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v2"
	"go.uber.org/zap"

	"github.com/childlens/bmnprep/internal/domain/entity"
	"github.com/childlens/bmnprep/internal/domain/port"
	"github.com/childlens/bmnprep/internal/infra/config"
	"github.com/childlens/bmnprep/internal/infra/featureio"
	"github.com/childlens/bmnprep/internal/infra/ffmpeg"
	"github.com/childlens/bmnprep/internal/infra/fsstore"
	"github.com/childlens/bmnprep/internal/infra/metrics"
	"github.com/childlens/bmnprep/internal/infra/rawframes"
	"github.com/childlens/bmnprep/internal/infra/sqlite"
	"github.com/childlens/bmnprep/internal/infra/tracing"
	"github.com/childlens/bmnprep/internal/usecase"
	"github.com/childlens/bmnprep/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")
	fatalOnErr(cfg.Validate(), "validate config")
	fatalOnErr(absDirs(cfg), "resolve directories")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	runID := uuid.New()
	log = log.With(zap.String("run_id", runID.String()))
	log.Info("starting bmnprep",
		zap.String("annotations_dir", cfg.AnnotationsDir),
		zap.String("annotation_format", cfg.AnnotationFormat),
		zap.String("output_dir", cfg.OutputDir),
		zap.Int("labels", len(cfg.Labels)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.OTLPEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	store, err := fsstore.New(cfg.OutputDir)
	fatalOnErr(err, "create artifact store")

	var (
		db   *sql.DB
		runs *sqlite.RunRepository
	)
	var prober port.FrameProber = ffmpeg.NewProber(log)
	if cfg.ProbeCachePath != "" {
		db, err = sqlite.Open(cfg.ProbeCachePath)
		fatalOnErr(err, "open state db")
		defer db.Close()
		prober = sqlite.NewCachedProber(prober, sqlite.NewProbeCache(db), log)
		runs = sqlite.NewRunRepository(db)
	}

	parser, err := usecase.ParserFor(cfg.AnnotationFormat)
	fatalOnErr(err, "select annotation parser")
	labels := usecase.NewLabelSet(cfg.Labels)

	codec, err := featureio.ForFormat(cfg.FeatureFormat)
	fatalOnErr(err, "select feature format")

	report := usecase.NewReport(runID.String())
	emitter := usecase.NewEmitter(store, usecase.OutputLayout{
		SplitDir:   cfg.SplitDir,
		ListDir:    cfg.ListDir,
		FeatureDir: cfg.FeatureOutputDir,
	})

	normalizer := usecase.NewNormalizer(parser, labels, prober, log, usecase.NormalizeConfig{
		FPS:       cfg.FPS,
		VideosDir: cfg.VideosDir,
		VideoExt:  cfg.VideoExt,
		SkipFile:  usecase.CombinedAnnotationsName,
	})

	var extractor port.FrameExtractor
	if cfg.ExtractFrames {
		extractor = ffmpeg.NewExtractor(cfg.FFmpegThreads, cfg.FrameFormat, log)
	}
	frames := usecase.NewFrameStage(
		extractor,
		ffmpeg.NewChunkEncoder(cfg.FFmpegThreads, log),
		rawframes.NewSplitter(cfg.FrameFormat, log),
		store, report, log,
		usecase.FrameConfig{
			VideosDir:      cfg.VideosDir,
			VideoExt:       cfg.VideoExt,
			RawframesDir:   cfg.RawframesDir,
			ChunkVideoDir:  cfg.ChunkVideoDir,
			ChunkFramesDir: cfg.ChunkFramesDir,
			WorkerCount:    cfg.WorkerCount,
		},
	)
	resolver := usecase.NewFrameResolver(rawframes.NewCounter(cfg.FrameFormat), labels, log)

	var features *usecase.FeatureStage
	if cfg.FeaturesDir != "" {
		fcfg := usecase.FeatureConfig{
			RGBDir:      cfg.FeaturesDir,
			FlowDir:     cfg.FlowFeaturesDir,
			WorkerCount: cfg.WorkerCount,
			Resample: usecase.ResampleOptions{
				NumProposals:  cfg.NumProposals,
				NumSampleBins: cfg.NumSampleBins,
				Pool:          usecase.PoolType(cfg.PoolType),
			},
		}
		if cfg.Progress {
			fcfg.NewProgress = func(total int) usecase.Progress {
				return progressbar.NewOptions(total,
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionSetDescription("resampling features"),
				)
			}
		}
		features = usecase.NewFeatureStage(emitter, store, codec, featureio.ForPath, report, log, fcfg)
	}

	mode := usecase.PartitionThreeWay
	if cfg.SplitMode == config.SplitTwoWay {
		mode = usecase.PartitionTwoWay
	}
	uc := usecase.NewPrepareDataset(normalizer, frames, resolver, features, emitter, report, log, usecase.PrepareConfig{
		AnnotationsDir: cfg.AnnotationsDir,
		ChunkSize:      cfg.ChunkSize,
		TrainRatio:     cfg.TrainRatio,
		Mode:           mode,
		ResolveFrames:  cfg.RawframesDir != "",
		ClipInterval:   cfg.ClipInterval,
		FrameInterval:  cfg.FrameInterval,
	})

	runRec := &sqlite.Run{ID: runID, Status: sqlite.RunRunning, StartedAt: report.StartedAt}
	if runs != nil {
		if err := runs.Create(ctx, runRec); err != nil {
			log.Warn("failed to record run start", zap.Error(err))
		}
	}

	runErr := uc.Execute(ctx)

	if runs != nil {
		finished := time.Now().UTC()
		runRec.FinishedAt = &finished
		runRec.Status = sqlite.RunCompleted
		if runErr != nil {
			runRec.Status = sqlite.RunFailed
		}
		runRec.Videos = report.Counts["videos_normalized"]
		runRec.FailedItems = len(report.Failures)
		if err := runs.Update(context.Background(), runRec); err != nil {
			log.Warn("failed to record run end", zap.Error(err))
		}
	}
	if err := metrics.WriteTextfile(cfg.MetricsFile, log); err != nil {
		log.Warn("failed to write metrics", zap.Error(err))
	}

	if runErr != nil {
		log.Error("run failed", zap.Error(runErr))
		return exitCode(runErr)
	}
	log.Info("bmnprep finished", zap.String("report", store.Path(usecase.ReportName)))
	return 0
}

func exitCode(err error) int {
	if errors.Is(err, entity.ErrConfiguration) {
		return 2
	}
	return 1
}

// absDirs makes input directories absolute so the artifact store treats them
// as locations outside its root.
func absDirs(cfg *config.Config) error {
	for _, p := range []*string{&cfg.OutputDir, &cfg.RawframesDir, &cfg.VideosDir} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", *p, err)
		}
		*p = abs
	}
	return nil
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
		os.Exit(exitCode(err))
	}
}
