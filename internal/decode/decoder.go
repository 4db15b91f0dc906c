// Package decode runs one cross-validated analysis for a subject, task and
// condition on an already masked sample matrix.
package decode

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"audimg/internal/classify"
	"audimg/internal/dataset"
	"audimg/internal/encode"
	"audimg/internal/model"
	"audimg/internal/study"
)

var (
	ErrNoStimulusRows      = errors.New("no stimulus rows")
	ErrNotClassification   = errors.New("task is not a classification task")
	ErrMissingRandomSource = errors.New("random source required")
)

const (
	DefaultStimulusAlpha    = 0.2
	defaultStimulusMaxIters = 1000
)

type Decoder struct {
	Study      *study.Study
	Classifier classify.Classifier
	Regressor  classify.Regressor
}

// New returns a decoder using a linear SVM for classification and a Lasso
// regression for stimulus encoding.
func New(s *study.Study) *Decoder {
	return &Decoder{
		Study:      s,
		Classifier: classify.LinearSVM{},
		Regressor:  classify.Lasso{Alpha: DefaultStimulusAlpha, MaxIter: defaultStimulusMaxIters},
	}
}

// Decode cross-validates the classifier on the encoded trials of one
// condition. With null set the targets are permuted with rng first.
func (d *Decoder) Decode(samples dataset.SampleMatrix, subject study.Subject, task study.Task, cond study.Condition, null bool, rng *rand.Rand) (model.Pair, error) {
	if task.IsStimulusEncoding() {
		return model.Pair{}, fmt.Errorf("%w: %s", ErrNotClassification, task)
	}
	enc, _, err := d.prepare(samples, subject, task, cond, null, rng)
	if err != nil {
		return model.Pair{}, err
	}
	targets, predictions, err := classify.CrossValidate(d.Classifier, enc.Samples, enc.Targets, enc.Chunks)
	if err != nil {
		return model.Pair{}, fmt.Errorf("decode %s %s %s: %w", subject, task, cond, err)
	}
	return model.Pair{Targets: targets, Predictions: predictions}, nil
}

// EncodeStimulus regresses every voxel on the helix embedding of the pitch
// labels and reports the held-out RMSE next to the RMSE obtained after
// shuffling that voxel's values.
func (d *Decoder) EncodeStimulus(samples dataset.SampleMatrix, subject study.Subject, cond study.Condition, null bool, rng *rand.Rand) (model.StimulusResult, error) {
	if rng == nil {
		return model.StimulusResult{}, ErrMissingRandomSource
	}
	enc, tonic, err := d.prepare(samples, subject, study.TaskStimulusEncoding, cond, null, rng)
	if err != nil {
		return model.StimulusResult{}, err
	}

	helix, err := encode.Helix(enc.Targets, tonic)
	if err != nil {
		return model.StimulusResult{}, fmt.Errorf("encode stimulus %s %s: %w", subject, cond, err)
	}
	if len(helix.Index) == 0 {
		return model.StimulusResult{}, fmt.Errorf("%w: %s %s has no pitch trials", ErrNoStimulusRows, subject, cond)
	}
	retained := enc.Subset(helix.Index)

	out := model.StimulusResult{
		ReferenceVoxel: referenceVoxel(enc),
		VoxelRMSE:      make([]float64, retained.Columns()),
		VoxelNullRMSE:  make([]float64, retained.Columns()),
	}
	for col := 0; col < retained.Columns(); col++ {
		signal := retained.Column(col)
		rmse, err := classify.CrossValidateRegression(d.Regressor, helix.Embedding, signal, retained.Chunks)
		if err != nil {
			return model.StimulusResult{}, fmt.Errorf("encode stimulus %s %s voxel %d: %w", subject, cond, col, err)
		}
		rng.Shuffle(len(signal), func(i, j int) { signal[i], signal[j] = signal[j], signal[i] })
		nullRMSE, err := classify.CrossValidateRegression(d.Regressor, helix.Embedding, signal, retained.Chunks)
		if err != nil {
			return model.StimulusResult{}, fmt.Errorf("encode stimulus %s %s voxel %d null: %w", subject, cond, col, err)
		}
		out.VoxelRMSE[col] = rmse
		out.VoxelNullRMSE[col] = nullRMSE
	}
	return out, nil
}

func (d *Decoder) prepare(samples dataset.SampleMatrix, subject study.Subject, task study.Task, cond study.Condition, null bool, rng *rand.Rand) (dataset.SampleMatrix, int, error) {
	tonic, err := d.Study.Tonic(subject)
	if err != nil {
		return dataset.SampleMatrix{}, 0, err
	}
	enc, err := encode.Encode(samples, tonic, task)
	if err != nil {
		return dataset.SampleMatrix{}, 0, err
	}
	encoded := enc
	enc = encoded.Filter(func(i int) bool { return cond.Contains(encoded.Chunks[i]) })
	if enc.Rows() == 0 {
		return dataset.SampleMatrix{}, 0, fmt.Errorf("%w: %s %s %s", ErrNoStimulusRows, subject, task, cond)
	}
	if null {
		if rng == nil {
			return dataset.SampleMatrix{}, 0, ErrMissingRandomSource
		}
		rng.Shuffle(len(enc.Targets), func(i, j int) {
			enc.Targets[i], enc.Targets[j] = enc.Targets[j], enc.Targets[i]
		})
	}
	return enc, tonic, nil
}

// referenceVoxel is the column with the largest mean absolute signal.
func referenceVoxel(m dataset.SampleMatrix) int {
	means := make([]float64, m.Columns())
	for _, row := range m.Samples {
		for col, v := range row {
			means[col] += math.Abs(v)
		}
	}
	if len(means) == 0 {
		return -1
	}
	return floats.MaxIdx(means)
}
