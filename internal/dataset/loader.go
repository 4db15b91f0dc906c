package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"audimg/internal/study"
)

var ErrEmptyRun = errors.New("run has no voxels")

// Loader assembles a subject's full-brain sample matrix from per-run files:
//
//	<root>/<subject>/run-NN_bold.csv          rows = volumes, columns = voxels
//	<root>/targets/<accession>_run-NN.txt     one label per volume
//
// Chunk k (1-8) is filled from the run the study's run order assigns to it.
type Loader struct {
	Root  string
	Study *study.Study
}

func (l Loader) Load(ctx context.Context, subject study.Subject) (SampleMatrix, error) {
	acc, err := l.Study.Accession(subject)
	if err != nil {
		return SampleMatrix{}, err
	}
	order, err := l.Study.RunOrder(subject)
	if err != nil {
		return SampleMatrix{}, err
	}

	parts := make([]SampleMatrix, 0, len(order))
	for i, run := range order {
		if err := ctx.Err(); err != nil {
			return SampleMatrix{}, err
		}
		chunk := i + 1
		boldPath := filepath.Join(l.Root, string(subject), fmt.Sprintf("run-%02d_bold.csv", run))
		samples, err := readMatrixCSV(boldPath)
		if err != nil {
			return SampleMatrix{}, fmt.Errorf("load %s run %d: %w", subject, run, err)
		}
		if len(samples) == 0 || len(samples[0]) == 0 {
			return SampleMatrix{}, fmt.Errorf("load %s run %d: %w", subject, run, ErrEmptyRun)
		}
		targetsPath := filepath.Join(l.Root, "targets", fmt.Sprintf("%s_run-%02d.txt", acc, run))
		targets, err := readLabels(targetsPath)
		if err != nil {
			return SampleMatrix{}, fmt.Errorf("load %s run %d targets: %w", subject, run, err)
		}
		if len(targets) != len(samples) {
			return SampleMatrix{}, fmt.Errorf("load %s run %d: %w: %d volumes, %d targets", subject, run, ErrShapeMismatch, len(samples), len(targets))
		}
		chunks := make([]int, len(samples))
		for j := range chunks {
			chunks[j] = chunk
		}
		part, err := New(samples, targets, chunks)
		if err != nil {
			return SampleMatrix{}, fmt.Errorf("load %s run %d: %w", subject, run, err)
		}
		parts = append(parts, part)
	}
	return Stack(parts...)
}

func readMatrixCSV(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows [][]float64
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read %s line %d: %w", path, line, err)
		}
		if blankRecord(record) {
			continue
		}
		row := make([]float64, len(record))
		for i, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("read %s line %d column %d: %w", path, line, i+1, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// readLabels truncates float spellings such as "152.0" to integers.
func readLabels(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseLabels(f)
}

// ParseLabels reads integer labels separated by whitespace or commas.
func ParseLabels(in io.Reader) ([]int, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}
	fields := strings.FieldsFunc(string(data), func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	labels := make([]int, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("parse label %q: %w", field, err)
		}
		labels = append(labels, int(v))
	}
	return labels, nil
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
