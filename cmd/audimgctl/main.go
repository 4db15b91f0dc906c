package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"audimg/internal/config"
	"audimg/internal/study"
	"audimg/internal/telemetry"
	"audimg/pkg/audimg"
)

const serviceName = "audimgctl"

const (
	exitFailure        = 1
	exitUsage          = 2
	exitUnknownSubject = 3
	exitUnknownTask    = 4
)

var errUsage = errors.New("usage error")

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "decode":
		return runDecode(ctx, args[1:])
	case "group":
		return runGroup(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "regions":
		return runRegions(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, errUsage):
		return exitUsage
	case errors.Is(err, study.ErrUnknownSubject):
		return exitUnknownSubject
	case errors.Is(err, study.ErrUnknownTask):
		return exitUnknownTask
	default:
		return exitFailure
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%w: %s\nusage: audimgctl <decode|group|runs|regions> [flags]", errUsage, msg)
}

// clientFlags are the settings shared by commands that open a client. Every
// default comes from the AUDIMG_* environment.
type clientFlags struct {
	dataDir      *string
	cacheDir     *string
	legend       *string
	artifactsDir *string
	storeKind    *string
	storePath    *string
	workers      *int
	null         *bool
	nullReps     *int
	seed         *int64
}

func bindClientFlags(fs *flag.FlagSet, cfg config.Config) *clientFlags {
	return &clientFlags{
		dataDir:      fs.String("data", cfg.DataDir, "subject data directory"),
		cacheDir:     fs.String("cache", cfg.CacheDir, "preprocessed dataset cache directory (empty disables caching)"),
		legend:       fs.String("legend", cfg.LegendPath, "run legend csv"),
		artifactsDir: fs.String("out", cfg.ArtifactsDir, "group table output directory"),
		storeKind:    fs.String("store", cfg.StoreKind, "result store backend: memory|file|sqlite|postgres|s3"),
		storePath:    fs.String("store-path", cfg.StorePath, "file store directory or sqlite database path"),
		workers:      fs.Int("workers", cfg.Workers, "concurrent cells or partial loads (0 = GOMAXPROCS)"),
		null:         fs.Bool("null", cfg.Null, "run or summarize permuted-target null models"),
		nullReps:     fs.Int("null-reps", cfg.NullRepetitions, "null repetitions per classification cell"),
		seed:         fs.Int64("seed", cfg.Seed, "permutation seed"),
	}
}

// session is the process-wide telemetry plus the client built from flags.
type session struct {
	client   *audimg.Client
	logger   *zap.Logger
	metrics  *telemetry.Metrics
	cfg      config.Config
	shutdown func(context.Context) error
}

func openSession(ctx context.Context, cfg config.Config, flags *clientFlags) (*session, error) {
	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Development)
	if err != nil {
		return nil, err
	}
	shutdown, err := telemetry.SetupTracing(ctx, serviceName, cfg.OTELEndpoint)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	metrics := telemetry.NewMetrics()

	storeOpts := cfg.StoreOptions()
	storeOpts.Path = *flags.storePath
	client, err := audimg.New(audimg.Options{
		DataDir:         *flags.dataDir,
		CacheDir:        *flags.cacheDir,
		LegendPath:      *flags.legend,
		ArtifactsDir:    *flags.artifactsDir,
		StoreKind:       *flags.storeKind,
		Store:           storeOpts,
		Workers:         *flags.workers,
		Null:            *flags.null,
		NullRepetitions: *flags.nullReps,
		Seed:            *flags.seed,
		Logger:          logger,
		Metrics:         metrics,
	})
	if err != nil {
		_ = shutdown(ctx)
		_ = logger.Sync()
		return nil, err
	}
	if err := client.Init(ctx); err != nil {
		_ = client.Close()
		_ = shutdown(ctx)
		_ = logger.Sync()
		return nil, err
	}
	return &session{client: client, logger: logger, metrics: metrics, cfg: cfg, shutdown: shutdown}, nil
}

func (s *session) close(ctx context.Context) {
	if err := s.metrics.WriteTextfile(s.cfg.MetricsFile); err != nil {
		s.logger.Warn("write metrics textfile", zap.String("path", s.cfg.MetricsFile), zap.Error(err))
	}
	if err := s.client.Close(); err != nil {
		s.logger.Warn("close client", zap.Error(err))
	}
	if err := s.shutdown(ctx); err != nil {
		s.logger.Warn("shutdown tracing", zap.Error(err))
	}
	_ = s.logger.Sync()
}

func runDecode(ctx context.Context, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	flags := bindClientFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if fs.NArg() < 2 {
		return usageError("decode requires <subject> <task>")
	}
	subject, task := fs.Arg(0), fs.Arg(1)

	// Identifiers are checked before any store or data access.
	if _, err := study.New(nil).ParseSubject(subject); err != nil {
		return err
	}
	if _, err := study.ParseTask(task); err != nil {
		return err
	}

	s, err := openSession(ctx, cfg, flags)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	summary, err := s.client.RunSubjectTask(ctx, audimg.DecodeRequest{Subject: subject, Task: task})
	if err != nil {
		return err
	}
	fmt.Printf("decoded subject=%s task=%s cells=%d rows=%s voxels=%s cache=%s elapsed=%s run_id=%s\n",
		summary.Subject,
		summary.Task,
		summary.Cells,
		humanize.Comma(int64(summary.Rows)),
		humanize.Comma(int64(summary.Voxels)),
		summary.CacheStatus,
		summary.Elapsed.Round(time.Millisecond),
		summary.RunID,
	)
	return nil
}

func runGroup(ctx context.Context, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("group", flag.ContinueOnError)
	flags := bindClientFlags(fs, cfg)
	subjects := fs.String("subjects", "", "comma separated subjects (default: whole cohort)")
	tasks := fs.String("tasks", "", "comma separated tasks (default: every task)")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if fs.NArg() > 0 {
		return usageError(fmt.Sprintf("unexpected arguments: %s", strings.Join(fs.Args(), " ")))
	}

	s, err := openSession(ctx, cfg, flags)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	summary, err := s.client.ExportGroup(ctx, audimg.GroupRequest{
		Subjects: splitList(*subjects),
		Tasks:    splitList(*tasks),
		Null:     *flags.null,
	})
	if err != nil {
		return err
	}
	fmt.Printf("group run_id=%s rows=%s dir=%s\n", summary.RunID, humanize.Comma(int64(summary.Rows)), summary.Directory)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	artifactsDir := fs.String("out", cfg.ArtifactsDir, "group table output directory")
	limit := fs.Int("limit", 20, "max runs to show (0 = all)")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}

	client, err := audimg.New(audimg.Options{ArtifactsDir: *artifactsDir, StoreKind: "memory"})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	entries, err := client.Runs(ctx, *limit)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		created := entry.CreatedAtUTC
		if ts, err := time.Parse(time.RFC3339Nano, entry.CreatedAtUTC); err == nil {
			created = humanize.Time(ts)
		}
		fmt.Printf("run_id=%s created=%q tasks=%s subjects=%d cells=%s\n",
			entry.RunID,
			created,
			strings.Join(entry.Tasks, ","),
			entry.Subjects,
			humanize.Comma(int64(entry.Cells)),
		)
	}
	return nil
}

func runRegions(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("regions", flag.ContinueOnError)
	hemisphere := fs.String("hemisphere", "", "restrict to LH or RH")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}

	client, err := audimg.New(audimg.Options{StoreKind: "memory"})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	for _, item := range client.Regions() {
		if *hemisphere != "" && string(item.Hemisphere) != *hemisphere {
			continue
		}
		fmt.Printf("%d\t%s\t%s\n", item.Label, item.Hemisphere, item.Name)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
