package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"audimg/internal/study"
)

func TestNewRejectsShapeMismatch(t *testing.T) {
	_, err := New([][]float64{{1, 2}, {3}}, []int{1, 2}, []int{1, 1})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch, got %v", err)
	}
	_, err = New([][]float64{{1}}, []int{1, 2}, []int{1})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch, got %v", err)
	}
}

func TestSubsetKeepsOriginIdentity(t *testing.T) {
	m, err := New([][]float64{{0}, {1}, {2}, {3}}, []int{10, 11, 12, 13}, []int{1, 1, 2, 2})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	sub := m.Subset([]int{3, 1})
	nested := sub.Subset([]int{1})
	if !reflect.DeepEqual(sub.Origin, []int{3, 1}) || !reflect.DeepEqual(nested.Origin, []int{1}) {
		t.Fatalf("unexpected origins: %v %v", sub.Origin, nested.Origin)
	}
	sub.Samples[0][0] = 99
	if m.Samples[3][0] != 3 {
		t.Fatal("subset must copy rows")
	}
}

func TestSelectColumnsAndChunkRows(t *testing.T) {
	m, _ := New([][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}, []int{1, 2, 3}, []int{2, 1, 2})
	sel := m.SelectColumns([]int{2, 0})
	if !reflect.DeepEqual(sel.Samples[1], []float64{6, 4}) {
		t.Fatalf("unexpected selection: %v", sel.Samples)
	}
	order, rows := m.ChunkRows()
	if !reflect.DeepEqual(order, []int{1, 2}) || !reflect.DeepEqual(rows[2], []int{0, 2}) {
		t.Fatalf("unexpected chunk rows: %v %v", order, rows)
	}
}

func TestParseLabels(t *testing.T) {
	labels, err := ParseLabels(strings.NewReader("1\n152.0 2,  364\n"))
	if err != nil {
		t.Fatalf("parse labels: %v", err)
	}
	if !reflect.DeepEqual(labels, []int{1, 152, 2, 364}) {
		t.Fatalf("unexpected labels: %v", labels)
	}
}

func writeRun(t *testing.T, root string, subject study.Subject, acc string, run int, rows [][]float64, targets []int) {
	t.Helper()
	dir := filepath.Join(root, string(subject))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "targets"), 0o755); err != nil {
		t.Fatal(err)
	}
	var bold, tgt strings.Builder
	for i, row := range rows {
		parts := make([]string, len(row))
		for j, v := range row {
			parts[j] = fmt.Sprint(v)
		}
		bold.WriteString(strings.Join(parts, ",") + "\n")
		fmt.Fprintf(&tgt, "%d\n", targets[i])
	}
	if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("run-%02d_bold.csv", run)), []byte(bold.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "targets", fmt.Sprintf("%s_run-%02d.txt", acc, run)), []byte(tgt.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoaderStacksRunsInLegendOrder(t *testing.T) {
	root := t.TempDir()
	legend := study.RunLegend{"A002636": {"TH"}}
	s := study.New(legend)
	for run := 1; run <= 8; run++ {
		writeRun(t, root, "sid001401", "A002636", run, [][]float64{{float64(run), 0}, {float64(run), 1}}, []int{100 + run, 1})
	}

	m, err := Loader{Root: root, Study: s}.Load(context.Background(), "sid001401")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Rows() != 16 || m.Columns() != 2 {
		t.Fatalf("unexpected shape: %dx%d", m.Rows(), m.Columns())
	}
	// chunk 1 holds run 2 under the swapped legend
	if m.Chunks[0] != 1 || m.Targets[0] != 102 || m.Samples[0][0] != 2 {
		t.Fatalf("unexpected first row: chunk=%d target=%d sample=%v", m.Chunks[0], m.Targets[0], m.Samples[0])
	}
	if m.Chunks[15] != 8 || m.Origin[15] != 15 {
		t.Fatalf("unexpected last row: chunk=%d origin=%d", m.Chunks[15], m.Origin[15])
	}
}

func TestLoaderRejectsTargetCountMismatch(t *testing.T) {
	root := t.TempDir()
	s := study.New(nil)
	for run := 1; run <= 8; run++ {
		writeRun(t, root, "sid000388", "A002655", run, [][]float64{{1}, {2}}, []int{101, 102})
	}
	if err := os.WriteFile(filepath.Join(root, "targets", "A002655_run-03.txt"), []byte("101\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Loader{Root: root, Study: s}.Load(context.Background(), "sid000388")
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch, got %v", err)
	}
}

func TestCacheStatusTransitions(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })

	res, err := cache.Load("sid001401")
	if err != nil || res.Status != CacheMiss {
		t.Fatalf("expected miss, got %v %v", res.Status, err)
	}

	m, _ := New([][]float64{{1.5, 2}}, []int{152}, []int{1})
	if err := cache.Save("sid001401", m); err != nil {
		t.Fatalf("save: %v", err)
	}
	res, err = cache.Load("sid001401")
	if err != nil || res.Status != CacheHit {
		t.Fatalf("expected hit, got %v %v", res.Status, err)
	}
	if !reflect.DeepEqual(res.Matrix, m) {
		t.Fatalf("unexpected cached matrix: %+v", res.Matrix)
	}

	if err := os.WriteFile(cache.path("sid001401"), []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err = cache.Load("sid001401")
	if err != nil || res.Status != CacheCorrupt || res.Cause == nil {
		t.Fatalf("expected corrupt entry with cause, got %v %v %v", res.Status, res.Cause, err)
	}
}

func TestLoadSubjectRefreshesCacheOnMiss(t *testing.T) {
	root := t.TempDir()
	s := study.New(nil)
	for run := 1; run <= 8; run++ {
		writeRun(t, root, "sid000388", "A002655", run, [][]float64{{1}}, []int{152})
	}
	cache, err := NewCache(filepath.Join(root, "cache"))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	loader := Loader{Root: root, Study: s}

	_, first, err := LoadSubject(context.Background(), loader, cache, "sid000388")
	if err != nil || first.Status != CacheMiss {
		t.Fatalf("expected miss on first load, got %v %v", first.Status, err)
	}
	m, second, err := LoadSubject(context.Background(), loader, cache, "sid000388")
	if err != nil || second.Status != CacheHit {
		t.Fatalf("expected hit on second load, got %v %v", second.Status, err)
	}
	if m.Rows() != 8 {
		t.Fatalf("unexpected rows: %d", m.Rows())
	}
}
