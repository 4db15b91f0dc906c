package study

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// RunLegend lists, per accession, the run order codes from the run legend
// table. Only the first code of each accession decides the run layout.
type RunLegend map[string][]string

func (l RunLegend) FirstOrder(accession string) string {
	orders := l[accession]
	if len(orders) == 0 {
		return ""
	}
	return orders[0]
}

func (l RunLegend) clone() RunLegend {
	out := make(RunLegend, len(l))
	for acc, orders := range l {
		out[acc] = append([]string(nil), orders...)
	}
	return out
}

// LoadRunLegend reads a legend CSV with rows "accession,<ignored>,order".
// A missing file yields an empty legend.
func LoadRunLegend(path string) (RunLegend, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return RunLegend{}, nil
		}
		return nil, err
	}
	defer f.Close()
	return ReadRunLegend(f)
}

func ReadRunLegend(in io.Reader) (RunLegend, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1

	legend := RunLegend{}
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read run legend line %d: %w", line, err)
		}
		if len(record) < 3 {
			return nil, fmt.Errorf("run legend line %d: expected 3 fields, got %d", line, len(record))
		}
		acc := strings.TrimSpace(record[0])
		legend[acc] = append(legend[acc], strings.TrimSpace(record[2]))
	}
	return legend, nil
}
