// Package batch drives the decoder over the full region, hemisphere and
// condition grid of one subject and task.
package batch

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"audimg/internal/dataset"
	"audimg/internal/decode"
	"audimg/internal/model"
	"audimg/internal/roi"
	"audimg/internal/study"
	"audimg/internal/telemetry"
)

const DefaultNullRepetitions = 10

const (
	outcomeOK       = "ok"
	outcomeNoVoxels = "no_voxels"
	outcomeError    = "error"
)

// SubjectData is everything a run needs from one subject.
type SubjectData struct {
	Subject      study.Subject
	Samples      dataset.SampleMatrix
	Parcellation roi.Parcellation
}

type Runner struct {
	Study   *study.Study
	Decoder *decode.Decoder
	// Workers bounds concurrently running cells; zero means GOMAXPROCS.
	Workers int
	// Null enables NullRepetitions permuted-target runs per classification cell.
	Null            bool
	NullRepetitions int
	Seed            int64
	Logger          *zap.Logger
	Metrics         *telemetry.Metrics
	Tracer          trace.Tracer
}

type Cell struct {
	Region     study.Region
	Hemisphere study.Hemisphere
	Condition  study.Condition
}

// Grid enumerates every cell of a run in region, hemisphere, condition order.
func Grid(s *study.Study) []Cell {
	var cells []Cell
	for _, r := range s.Regions() {
		for _, h := range study.Hemispheres() {
			for _, c := range study.Conditions() {
				cells = append(cells, Cell{Region: r, Hemisphere: h, Condition: c})
			}
		}
	}
	return cells
}

type cellOutcome struct {
	result  model.CellResult
	present bool
}

// RunSubjectTask evaluates every grid cell. Cells whose region has no voxels
// are left out of the tree; any other failure cancels the run.
func (r *Runner) RunSubjectTask(ctx context.Context, data SubjectData, task study.Task) (model.ResultTree, error) {
	if r.Study == nil || r.Decoder == nil {
		return nil, errors.New("runner requires a study and a decoder")
	}
	if _, err := study.ParseTask(string(task)); err != nil {
		return nil, err
	}
	if _, err := r.Study.Tonic(data.Subject); err != nil {
		return nil, err
	}
	if err := data.Samples.Validate(); err != nil {
		return nil, err
	}

	logger := telemetry.OrNop(r.Logger).With(zap.String("subject", string(data.Subject)), zap.String("task", string(task)))
	masker := roi.NewMasker(string(data.Subject), data.Parcellation)
	cells := Grid(r.Study)
	outcomes := make([]cellOutcome, len(cells))
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())
	for i, cell := range cells {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, present, err := r.runCell(gctx, logger, masker, data, task, cell)
			if err != nil {
				return err
			}
			outcomes[i] = cellOutcome{result: result, present: present}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tree := model.ResultTree{}
	for i, out := range outcomes {
		if out.present {
			tree.Set(cells[i].Region, cells[i].Hemisphere, cells[i].Condition, out.result)
		}
	}
	logger.Info("subject task finished",
		zap.Int("cells", tree.Cells()),
		zap.Int("absent", len(cells)-tree.Cells()),
		zap.Duration("elapsed", time.Since(start)))
	return tree, nil
}

func (r *Runner) runCell(ctx context.Context, logger *zap.Logger, masker *roi.Masker, data SubjectData, task study.Task, cell Cell) (model.CellResult, bool, error) {
	label := cell.Region.Label(cell.Hemisphere)
	regionName := r.Study.RegionName(label)
	ctx, span := r.tracer().Start(ctx, "batch.cell", trace.WithAttributes(
		attribute.String("subject", string(data.Subject)),
		attribute.String("task", string(task)),
		attribute.Int("label", label),
		attribute.String("region", regionName),
		attribute.String("condition", string(cell.Condition)),
	))
	defer span.End()
	start := time.Now()

	result, err := r.evaluate(ctx, masker, data, task, cell)
	var noVoxels *roi.NoVoxelsError
	switch {
	case errors.As(err, &noVoxels):
		r.Metrics.ObserveCell(string(task), outcomeNoVoxels, time.Since(start))
		span.SetAttributes(attribute.String("outcome", outcomeNoVoxels))
		logger.Debug("cell skipped", zap.String("region", regionName), zap.String("condition", string(cell.Condition)), zap.Error(err))
		return model.CellResult{}, false, nil
	case err != nil:
		r.Metrics.ObserveCell(string(task), outcomeError, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.CellResult{}, false, fmt.Errorf("cell %s %s: %w", regionName, cell.Condition, err)
	}
	r.Metrics.ObserveCell(string(task), outcomeOK, time.Since(start))
	logger.Debug("cell done",
		zap.String("region", regionName),
		zap.String("condition", string(cell.Condition)),
		zap.Float64("accuracy", result.Result.Accuracy()),
		zap.Int("null", len(result.Null)),
		zap.Int("voxels", len(result.VoxelRMSE)))
	return result, true, nil
}

func (r *Runner) evaluate(ctx context.Context, masker *roi.Masker, data SubjectData, task study.Task, cell Cell) (model.CellResult, error) {
	masked, err := masker.Mask(data.Samples, []int{cell.Region.Label(cell.Hemisphere)})
	if err != nil {
		return model.CellResult{}, err
	}
	rng := rand.New(rand.NewSource(cellSeed(r.Seed, data.Subject, task, cell)))

	if task.IsStimulusEncoding() {
		res, err := r.Decoder.EncodeStimulus(masked, data.Subject, cell.Condition, false, rng)
		if err != nil {
			return model.CellResult{}, err
		}
		return model.CellResult{
			ReferenceVoxel: res.ReferenceVoxel,
			VoxelRMSE:      res.VoxelRMSE,
			VoxelNullRMSE:  res.VoxelNullRMSE,
		}, nil
	}

	pair, err := r.Decoder.Decode(masked, data.Subject, task, cell.Condition, false, nil)
	if err != nil {
		return model.CellResult{}, err
	}
	out := model.CellResult{Result: pair}
	if !r.Null {
		return out, nil
	}
	reps := r.NullRepetitions
	if reps <= 0 {
		reps = DefaultNullRepetitions
	}
	for i := 0; i < reps; i++ {
		if err := ctx.Err(); err != nil {
			return model.CellResult{}, err
		}
		null, err := r.Decoder.Decode(masked, data.Subject, task, cell.Condition, true, rng)
		if err != nil {
			return model.CellResult{}, fmt.Errorf("null repetition %d: %w", i+1, err)
		}
		out.Null = append(out.Null, null)
	}
	return out, nil
}

func (r *Runner) workers() int {
	if r.Workers > 0 {
		return r.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (r *Runner) tracer() trace.Tracer {
	if r.Tracer != nil {
		return r.Tracer
	}
	return telemetry.Tracer()
}

// cellSeed derives a per-cell source so results do not depend on scheduling.
func cellSeed(seed int64, subject study.Subject, task study.Task, cell Cell) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d/%s/%s/%d/%s/%s", seed, subject, task, cell.Region, cell.Hemisphere, cell.Condition)
	return int64(h.Sum64())
}
