package model

import (
	"fmt"
	"time"

	"audimg/internal/study"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Pair holds held-out targets and the matching predictions in fold order.
type Pair struct {
	Targets     []int `json:"targets"`
	Predictions []int `json:"predictions"`
}

func (p Pair) Accuracy() float64 {
	if len(p.Targets) == 0 {
		return 0
	}
	var hits int
	for i, target := range p.Targets {
		if i < len(p.Predictions) && p.Predictions[i] == target {
			hits++
		}
	}
	return float64(hits) / float64(len(p.Targets))
}

// StimulusResult is the voxel-wise outcome of stimulus encoding.
type StimulusResult struct {
	ReferenceVoxel int       `json:"reference_voxel"`
	VoxelRMSE      []float64 `json:"voxel_rmse"`
	VoxelNullRMSE  []float64 `json:"voxel_null_rmse"`
}

// CellResult is the raw outcome of one (region, hemisphere, condition) cell.
// Classification tasks fill Result and Null; stimulus encoding fills the
// voxel fields.
type CellResult struct {
	Result         Pair      `json:"result"`
	Null           []Pair    `json:"null,omitempty"`
	ReferenceVoxel int       `json:"reference_voxel,omitempty"`
	VoxelRMSE      []float64 `json:"voxel_rmse,omitempty"`
	VoxelNullRMSE  []float64 `json:"voxel_null_rmse,omitempty"`
}

type ResultTree map[study.Region]map[study.Hemisphere]map[study.Condition]CellResult

func (t ResultTree) Set(r study.Region, h study.Hemisphere, c study.Condition, cell CellResult) {
	if t[r] == nil {
		t[r] = make(map[study.Hemisphere]map[study.Condition]CellResult)
	}
	if t[r][h] == nil {
		t[r][h] = make(map[study.Condition]CellResult)
	}
	t[r][h][c] = cell
}

func (t ResultTree) Get(r study.Region, h study.Hemisphere, c study.Condition) (CellResult, bool) {
	cell, ok := t[r][h][c]
	return cell, ok
}

// Cells counts the populated cells.
func (t ResultTree) Cells() int {
	var n int
	for _, byHemi := range t {
		for _, byCond := range byHemi {
			n += len(byCond)
		}
	}
	return n
}

// PartialResult is the persisted outcome of one subject/task run.
type PartialResult struct {
	VersionedRecord
	RunID           string        `json:"run_id"`
	Subject         study.Subject `json:"subject"`
	Task            study.Task    `json:"task"`
	CreatedAtUTC    time.Time     `json:"created_at_utc"`
	Seed            int64         `json:"seed"`
	NullRepetitions int           `json:"null_repetitions"`
	Tree            ResultTree    `json:"tree"`
}

func (p PartialResult) Key() string {
	return PartialKey(p.Subject, p.Task)
}

// PartialKey names the stored record of a subject/task run.
func PartialKey(subject study.Subject, task study.Task) string {
	return fmt.Sprintf("%s_%s_res_part", subject, task)
}

type ScoreKind string

const (
	ScoreAccuracy        ScoreKind = "accuracy"
	ScoreRMSEImprovement ScoreKind = "rmse_improvement"
)

type TestResult struct {
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"p_value"`
	Stars     string  `json:"stars"`
}

// CellStats summarizes one cell over the cohort.
type CellStats struct {
	Kind          ScoreKind       `json:"kind"`
	Subjects      []study.Subject `json:"subjects"`
	Scores        []float64       `json:"scores"`
	Mean          float64         `json:"mean"`
	SE            float64         `json:"se"`
	Baseline      float64         `json:"baseline"`
	UniqueTargets int             `json:"unique_targets"`
	TTest         TestResult      `json:"t_test"`
	Wilcoxon      TestResult      `json:"wilcoxon"`
	NullMean      float64         `json:"null_mean"`
	NullSE        float64         `json:"null_se"`
	NullCount     int             `json:"null_count"`
}

type GroupTree map[study.Task]map[study.Region]map[study.Hemisphere]map[study.Condition]CellStats

func (g GroupTree) Set(task study.Task, r study.Region, h study.Hemisphere, c study.Condition, stats CellStats) {
	if g[task] == nil {
		g[task] = make(map[study.Region]map[study.Hemisphere]map[study.Condition]CellStats)
	}
	if g[task][r] == nil {
		g[task][r] = make(map[study.Hemisphere]map[study.Condition]CellStats)
	}
	if g[task][r][h] == nil {
		g[task][r][h] = make(map[study.Condition]CellStats)
	}
	g[task][r][h][c] = stats
}

func (g GroupTree) Get(task study.Task, r study.Region, h study.Hemisphere, c study.Condition) (CellStats, bool) {
	stats, ok := g[task][r][h][c]
	return stats, ok
}
