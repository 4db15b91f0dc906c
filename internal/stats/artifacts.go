package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"audimg/internal/model"
	"audimg/internal/study"
)

const (
	runIndexFile   = "run_index.json"
	groupTableJSON = "group_table.json"
	groupTableCSV  = "group_table.csv"
)

// GroupRow is one cell of the group table. Pointer fields are nil when the
// value is undefined (no null model, degenerate test).
type GroupRow struct {
	Task          string   `json:"task"`
	Label         int      `json:"label"`
	Region        string   `json:"region"`
	Hemisphere    string   `json:"hemisphere"`
	Condition     string   `json:"condition"`
	Kind          string   `json:"kind"`
	Subjects      int      `json:"subjects"`
	Mean          float64  `json:"mean"`
	SE            float64  `json:"se"`
	Baseline      float64  `json:"baseline"`
	UniqueTargets int      `json:"unique_targets"`
	TStatistic    *float64 `json:"t_statistic"`
	TPValue       *float64 `json:"t_p_value"`
	TStars        string   `json:"t_stars"`
	WStatistic    *float64 `json:"w_statistic"`
	WPValue       *float64 `json:"w_p_value"`
	WStars        string   `json:"w_stars"`
	NullMean      *float64 `json:"null_mean"`
	NullSE        *float64 `json:"null_se"`
	NullCount     int      `json:"null_count"`
}

type GroupTable struct {
	RunID        string     `json:"run_id"`
	CreatedAtUTC string     `json:"created_at_utc"`
	Subjects     []string   `json:"subjects"`
	Null         bool       `json:"null"`
	Rows         []GroupRow `json:"rows"`
}

type RunIndexEntry struct {
	RunID        string   `json:"run_id"`
	CreatedAtUTC string   `json:"created_at_utc"`
	Tasks        []string `json:"tasks"`
	Subjects     int      `json:"subjects"`
	Cells        int      `json:"cells"`
}

// GroupRows flattens a group tree in task, region, hemisphere, condition order.
func GroupRows(tree model.GroupTree, s *study.Study) []GroupRow {
	var rows []GroupRow
	for _, task := range study.Tasks() {
		byRegion, ok := tree[task]
		if !ok {
			continue
		}
		regions := make([]study.Region, 0, len(byRegion))
		for r := range byRegion {
			regions = append(regions, r)
		}
		sort.Slice(regions, func(i, j int) bool { return regions[i] < regions[j] })
		for _, r := range regions {
			for _, h := range study.Hemispheres() {
				for _, c := range study.Conditions() {
					cs, ok := tree.Get(task, r, h, c)
					if !ok {
						continue
					}
					label := r.Label(h)
					rows = append(rows, GroupRow{
						Task:          string(task),
						Label:         label,
						Region:        s.RegionName(label),
						Hemisphere:    string(h),
						Condition:     string(c),
						Kind:          string(cs.Kind),
						Subjects:      len(cs.Subjects),
						Mean:          cs.Mean,
						SE:            cs.SE,
						Baseline:      cs.Baseline,
						UniqueTargets: cs.UniqueTargets,
						TStatistic:    finite(cs.TTest.Statistic),
						TPValue:       finite(cs.TTest.PValue),
						TStars:        cs.TTest.Stars,
						WStatistic:    finite(cs.Wilcoxon.Statistic),
						WPValue:       finite(cs.Wilcoxon.PValue),
						WStars:        cs.Wilcoxon.Stars,
						NullMean:      finite(cs.NullMean),
						NullSE:        finite(cs.NullSE),
						NullCount:     cs.NullCount,
					})
				}
			}
		}
	}
	return rows
}

// WriteGroupArtifacts writes the table as JSON and CSV under baseDir/runID
// and records the run in the index.
func WriteGroupArtifacts(baseDir string, table GroupTable) (string, error) {
	if table.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, table.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, groupTableJSON), table); err != nil {
		return "", err
	}
	if err := WriteGroupCSV(filepath.Join(runDir, groupTableCSV), table.Rows); err != nil {
		return "", err
	}

	tasks := make([]string, 0)
	seen := make(map[string]bool)
	for _, row := range table.Rows {
		if !seen[row.Task] {
			seen[row.Task] = true
			tasks = append(tasks, row.Task)
		}
	}
	entry := RunIndexEntry{
		RunID:        table.RunID,
		CreatedAtUTC: table.CreatedAtUTC,
		Tasks:        tasks,
		Subjects:     len(table.Subjects),
		Cells:        len(table.Rows),
	}
	if err := AppendRunIndex(baseDir, entry); err != nil {
		return "", err
	}
	return runDir, nil
}

func WriteGroupCSV(path string, rows []GroupRow) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{
		"task", "label", "region", "hemisphere", "condition", "kind", "subjects",
		"mean", "se", "baseline", "unique_targets",
		"t_statistic", "t_p_value", "t_stars",
		"w_statistic", "w_p_value", "w_stars",
		"null_mean", "null_se", "null_count",
	}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.Task,
			strconv.Itoa(row.Label),
			row.Region,
			row.Hemisphere,
			row.Condition,
			row.Kind,
			strconv.Itoa(row.Subjects),
			formatFloat(row.Mean),
			formatFloat(row.SE),
			formatFloat(row.Baseline),
			strconv.Itoa(row.UniqueTargets),
			formatOptional(row.TStatistic),
			formatOptional(row.TPValue),
			row.TStars,
			formatOptional(row.WStatistic),
			formatOptional(row.WPValue),
			row.WStars,
			formatOptional(row.NullMean),
			formatOptional(row.NullSE),
			strconv.Itoa(row.NullCount),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadGroupTable(baseDir, runID string) (GroupTable, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, groupTableJSON))
	if err != nil {
		if os.IsNotExist(err) {
			return GroupTable{}, false, nil
		}
		return GroupTable{}, false, err
	}
	var table GroupTable
	if err := json.Unmarshal(data, &table); err != nil {
		return GroupTable{}, false, err
	}
	return table, true, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}
	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}
	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the indexed runs, newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAtUTC > entries[j].CreatedAtUTC
	})
	return entries, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
