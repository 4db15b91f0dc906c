package audimg

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"audimg/internal/aggregate"
	"audimg/internal/batch"
	"audimg/internal/classify"
	"audimg/internal/dataset"
	"audimg/internal/decode"
	"audimg/internal/model"
	"audimg/internal/roi"
	"audimg/internal/stats"
	"audimg/internal/storage"
	"audimg/internal/study"
	"audimg/internal/telemetry"
)

const (
	defaultDataDir      = "data"
	defaultArtifactsDir = "group"
	defaultStorePath    = "results"
	parcellationFile    = "run-01_parcellation.csv"
)

type Options struct {
	DataDir      string
	CacheDir     string
	LegendPath   string
	ArtifactsDir string

	StoreKind string
	Store     storage.Options

	Workers         int
	Null            bool
	NullRepetitions int
	Seed            int64

	// Classifier replaces the linear SVM of classification tasks.
	Classifier classify.Classifier

	Logger  *zap.Logger
	Metrics *telemetry.Metrics
}

type Client struct {
	study   *study.Study
	store   storage.Store
	cache   *dataset.Cache
	decoder *decode.Decoder

	dataDir      string
	artifactsDir string

	workers         int
	null            bool
	nullRepetitions int
	seed            int64

	logger  *zap.Logger
	metrics *telemetry.Metrics
}

type DecodeRequest struct {
	Subject string
	Task    string
}

type DecodeSummary struct {
	RunID       string
	Subject     study.Subject
	Task        study.Task
	Rows        int
	Voxels      int
	Cells       int
	CacheStatus string
	Elapsed     time.Duration
}

type GroupRequest struct {
	// Subjects and Tasks default to the whole cohort and every task.
	Subjects []string
	Tasks    []string
	Null     bool
}

type GroupResult struct {
	Subjects []study.Subject
	Tasks    []study.Task
	Tree     model.GroupTree
}

type ExportSummary struct {
	RunID     string
	Directory string
	Rows      int
}

type RegionItem struct {
	Label      int
	Name       string
	Hemisphere study.Hemisphere
}

func New(opts Options) (*Client, error) {
	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind
	}
	storeOpts := opts.Store
	if storeOpts.Path == "" {
		storeOpts.Path = defaultStorePath
	}

	var legend study.RunLegend
	if opts.LegendPath != "" {
		var err error
		legend, err = study.LoadRunLegend(opts.LegendPath)
		if err != nil {
			return nil, fmt.Errorf("load run legend: %w", err)
		}
	}
	s := study.New(legend)

	store, err := storage.NewStore(storeKind, storeOpts)
	if err != nil {
		return nil, err
	}
	var cache *dataset.Cache
	if opts.CacheDir != "" {
		cache, err = dataset.NewCache(opts.CacheDir)
		if err != nil {
			_ = storage.CloseIfSupported(store)
			return nil, err
		}
	}

	decoder := decode.New(s)
	if opts.Classifier != nil {
		decoder.Classifier = opts.Classifier
	}

	return &Client{
		study:           s,
		store:           store,
		cache:           cache,
		decoder:         decoder,
		dataDir:         dataDir,
		artifactsDir:    artifactsDir,
		workers:         opts.Workers,
		null:            opts.Null,
		nullRepetitions: opts.NullRepetitions,
		seed:            opts.Seed,
		logger:          telemetry.OrNop(opts.Logger),
		metrics:         opts.Metrics,
	}, nil
}

func (c *Client) Close() error {
	var cacheErr error
	if c.cache != nil {
		cacheErr = c.cache.Close()
	}
	return errors.Join(cacheErr, storage.CloseIfSupported(c.store))
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

func (c *Client) Study() *study.Study {
	return c.study
}

// RunSubjectTask decodes every cell of one subject and task and persists the
// tree as that pair's partial result, replacing any earlier one.
func (c *Client) RunSubjectTask(ctx context.Context, req DecodeRequest) (DecodeSummary, error) {
	subject, err := c.study.ParseSubject(req.Subject)
	if err != nil {
		return DecodeSummary{}, err
	}
	task, err := study.ParseTask(req.Task)
	if err != nil {
		return DecodeSummary{}, err
	}
	start := time.Now()

	loader := dataset.Loader{Root: c.dataDir, Study: c.study}
	samples, cached, err := dataset.LoadSubject(ctx, loader, c.cache, subject)
	if err != nil {
		return DecodeSummary{}, err
	}
	if cached.Status == dataset.CacheCorrupt {
		c.logger.Warn("dataset cache entry rebuilt",
			zap.String("subject", string(subject)),
			zap.Error(cached.Cause))
	}
	parcellation, err := roi.LoadParcellation(filepath.Join(c.dataDir, string(subject), parcellationFile))
	if err != nil {
		return DecodeSummary{}, fmt.Errorf("load parcellation for %s: %w", subject, err)
	}

	runner := &batch.Runner{
		Study:           c.study,
		Decoder:         c.decoder,
		Workers:         c.workers,
		Null:            c.null,
		NullRepetitions: c.nullRepetitions,
		Seed:            c.seed,
		Logger:          c.logger,
		Metrics:         c.metrics,
	}
	tree, err := runner.RunSubjectTask(ctx, batch.SubjectData{
		Subject:      subject,
		Samples:      samples,
		Parcellation: parcellation,
	}, task)
	if err != nil {
		return DecodeSummary{}, err
	}

	partial := model.PartialResult{
		VersionedRecord: storage.CurrentVersion(),
		RunID:           uuid.NewString(),
		Subject:         subject,
		Task:            task,
		CreatedAtUTC:    time.Now().UTC(),
		Seed:            c.seed,
		NullRepetitions: c.effectiveNullRepetitions(task),
		Tree:            tree,
	}
	err = c.store.SavePartial(ctx, partial)
	c.metrics.ObservePartial("save", err)
	if err != nil {
		return DecodeSummary{}, fmt.Errorf("save %s: %w", partial.Key(), err)
	}

	return DecodeSummary{
		RunID:       partial.RunID,
		Subject:     subject,
		Task:        task,
		Rows:        samples.Rows(),
		Voxels:      samples.Columns(),
		Cells:       tree.Cells(),
		CacheStatus: cached.Status.String(),
		Elapsed:     time.Since(start),
	}, nil
}

// GroupStatistics waits for every requested partial result and summarizes
// each cell over the cohort.
func (c *Client) GroupStatistics(ctx context.Context, req GroupRequest) (GroupResult, error) {
	subjects, tasks, err := c.resolveGroup(req)
	if err != nil {
		return GroupResult{}, err
	}
	loader := aggregate.Loader{
		Store:   c.store,
		Workers: c.workers,
		Logger:  c.logger,
		Metrics: c.metrics,
	}
	cohort, err := loader.Load(ctx, subjects, tasks)
	if err != nil {
		return GroupResult{}, err
	}
	tree := aggregate.GroupStatistics(cohort, aggregate.Options{Null: req.Null})
	return GroupResult{Subjects: subjects, Tasks: tasks, Tree: tree}, nil
}

// ExportGroup computes the group statistics and writes them as a new group
// table run under the artifacts directory.
func (c *Client) ExportGroup(ctx context.Context, req GroupRequest) (ExportSummary, error) {
	result, err := c.GroupStatistics(ctx, req)
	if err != nil {
		return ExportSummary{}, err
	}
	subjects := make([]string, len(result.Subjects))
	for i, s := range result.Subjects {
		subjects[i] = string(s)
	}
	table := stats.GroupTable{
		RunID:        uuid.NewString(),
		CreatedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		Subjects:     subjects,
		Null:         req.Null,
		Rows:         stats.GroupRows(result.Tree, c.study),
	}
	dir, err := stats.WriteGroupArtifacts(c.artifactsDir, table)
	if err != nil {
		return ExportSummary{}, err
	}
	c.logger.Info("group table exported",
		zap.String("run_id", table.RunID),
		zap.Int("rows", len(table.Rows)))
	return ExportSummary{RunID: table.RunID, Directory: dir, Rows: len(table.Rows)}, nil
}

// Runs lists exported group tables, newest first. A positive limit truncates.
func (c *Client) Runs(_ context.Context, limit int) ([]stats.RunIndexEntry, error) {
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Regions lists the decodable regions of both hemispheres.
func (c *Client) Regions() []RegionItem {
	var items []RegionItem
	for _, h := range study.Hemispheres() {
		for _, r := range c.study.Regions() {
			label := r.Label(h)
			items = append(items, RegionItem{Label: label, Name: c.study.RegionName(label), Hemisphere: h})
		}
	}
	return items
}

func (c *Client) resolveGroup(req GroupRequest) ([]study.Subject, []study.Task, error) {
	subjects := c.study.Subjects()
	if len(req.Subjects) > 0 {
		subjects = subjects[:0]
		for _, id := range req.Subjects {
			s, err := c.study.ParseSubject(id)
			if err != nil {
				return nil, nil, err
			}
			subjects = append(subjects, s)
		}
	}
	tasks := study.Tasks()
	if len(req.Tasks) > 0 {
		tasks = tasks[:0]
		for _, name := range req.Tasks {
			t, err := study.ParseTask(name)
			if err != nil {
				return nil, nil, err
			}
			tasks = append(tasks, t)
		}
	}
	return subjects, tasks, nil
}

func (c *Client) effectiveNullRepetitions(task study.Task) int {
	if !c.null || task.IsStimulusEncoding() {
		return 0
	}
	if c.nullRepetitions <= 0 {
		return batch.DefaultNullRepetitions
	}
	return c.nullRepetitions
}
