package audimg

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"audimg/internal/aggregate"
	"audimg/internal/classify"
	"audimg/internal/study"
	"audimg/internal/telemetry"
)

// writeSubject lays out eight runs of one baseline volume and six pitch
// volumes over four voxels, plus the run-1 parcellation.
func writeSubject(t *testing.T, root string, subject study.Subject, accession string) {
	t.Helper()
	subjectDir := filepath.Join(root, string(subject))
	targetsDir := filepath.Join(root, "targets")
	for _, dir := range []string{subjectDir, targetsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	pitches := []int{152, 154, 156, 159}
	row := 0
	for run := 1; run <= 8; run++ {
		var bold, targets strings.Builder
		bold.WriteString("0.1,-0.2,0.3,0\n")
		targets.WriteString("1\n")
		for i := 0; i < 6; i++ {
			label := pitches[row%len(pitches)]
			x := float64(row)
			fmt.Fprintf(&bold, "%d,%g,%g,%g\n", label%10, math.Sin(x), math.Cos(x), x)
			fmt.Fprintf(&targets, "%d\n", label)
			row++
		}
		if err := os.WriteFile(filepath.Join(subjectDir, fmt.Sprintf("run-%02d_bold.csv", run)), []byte(bold.String()), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(targetsDir, fmt.Sprintf("%s_run-%02d.txt", accession, run)), []byte(targets.String()), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(subjectDir, parcellationFile), []byte("1030,1030,2030,0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()
	base := t.TempDir()
	dataDir := filepath.Join(base, "data")
	writeSubject(t, dataDir, "sid001401", "A002636")

	client, err := New(Options{
		DataDir:         dataDir,
		CacheDir:        filepath.Join(base, "cache"),
		ArtifactsDir:    filepath.Join(base, "group"),
		StoreKind:       "memory",
		Workers:         2,
		Null:            true,
		NullRepetitions: 2,
		Seed:            7,
		Classifier:      classify.Majority{},
		Metrics:         telemetry.NewMetrics(),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	if err := client.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return client, base
}

func TestClientDecodeGroupAndExport(t *testing.T) {
	client, base := newTestClient(t)
	ctx := context.Background()

	summary, err := client.RunSubjectTask(ctx, DecodeRequest{Subject: "sid001401", Task: "timbre"})
	if err != nil {
		t.Fatalf("run subject task: %v", err)
	}
	if summary.RunID == "" || summary.Cells != 4 || summary.Rows != 56 || summary.Voxels != 4 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.CacheStatus != "miss" {
		t.Fatalf("expected cache miss on first run, got %s", summary.CacheStatus)
	}

	again, err := client.RunSubjectTask(ctx, DecodeRequest{Subject: "sid001401", Task: "timbre"})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if again.CacheStatus != "hit" {
		t.Fatalf("expected cache hit on second run, got %s", again.CacheStatus)
	}

	req := GroupRequest{Subjects: []string{"sid001401"}, Tasks: []string{"timbre"}, Null: true}
	group, err := client.GroupStatistics(ctx, req)
	if err != nil {
		t.Fatalf("group statistics: %v", err)
	}
	cs, ok := group.Tree.Get(study.TaskTimbre, 1030, study.Left, study.Heard)
	if !ok {
		t.Fatal("missing group cell")
	}
	if cs.Baseline != 0.5 || cs.NullCount != 2 || len(cs.Subjects) != 1 {
		t.Fatalf("unexpected cell stats: %+v", cs)
	}

	export, err := client.ExportGroup(ctx, req)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if export.Rows != 4 {
		t.Fatalf("expected 4 exported rows, got %d", export.Rows)
	}
	for _, name := range []string{"group_table.json", "group_table.csv"} {
		if _, err := os.Stat(filepath.Join(export.Directory, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
	if !strings.HasPrefix(export.Directory, filepath.Join(base, "group")) {
		t.Fatalf("export outside artifacts dir: %s", export.Directory)
	}
	runs, err := client.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != export.RunID || runs[0].Cells != 4 {
		t.Fatalf("unexpected run index: %+v", runs)
	}
}

func TestClientRejectsUnknownIdentifiers(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()
	if _, err := client.RunSubjectTask(ctx, DecodeRequest{Subject: "sid000001", Task: "timbre"}); !errors.Is(err, study.ErrUnknownSubject) {
		t.Fatalf("expected ErrUnknownSubject, got %v", err)
	}
	if _, err := client.RunSubjectTask(ctx, DecodeRequest{Subject: "sid001401", Task: "pitch"}); !errors.Is(err, study.ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
	if _, err := client.GroupStatistics(ctx, GroupRequest{Tasks: []string{"loudness"}}); !errors.Is(err, study.ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask from group, got %v", err)
	}
}

func TestClientGroupWaitsForEveryPartial(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()
	if _, err := client.RunSubjectTask(ctx, DecodeRequest{Subject: "sid001401", Task: "pch-class"}); err != nil {
		t.Fatalf("run subject task: %v", err)
	}
	_, err := client.GroupStatistics(ctx, GroupRequest{Subjects: []string{"sid001401", "sid000388"}, Tasks: []string{"pch-class"}})
	var missing *aggregate.MissingPartialError
	if !errors.As(err, &missing) || missing.Subject != "sid000388" {
		t.Fatalf("expected missing partial for sid000388, got %v", err)
	}
}

func TestClientRegions(t *testing.T) {
	client, _ := newTestClient(t)
	regions := client.Regions()
	if len(regions) != 70 {
		t.Fatalf("expected 70 hemisphere regions, got %d", len(regions))
	}
	if regions[0].Hemisphere != study.Left || regions[len(regions)-1].Hemisphere != study.Right {
		t.Fatal("regions are not grouped by hemisphere")
	}
	for _, item := range regions {
		if item.Label == 1030 && item.Name != "ctx-lh-superiortemporal" {
			t.Fatalf("unexpected name for 1030: %s", item.Name)
		}
	}
}
