// Package aggregate joins the persisted per-subject results and derives the
// group statistics of every cell.
package aggregate

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"audimg/internal/model"
	"audimg/internal/storage"
	"audimg/internal/study"
	"audimg/internal/telemetry"
)

// MissingPartialError reports a (subject, task) result absent from the store.
type MissingPartialError struct {
	Subject study.Subject
	Task    study.Task
}

func (e *MissingPartialError) Error() string {
	return fmt.Sprintf("missing partial result %s", model.PartialKey(e.Subject, e.Task))
}

// Cohort holds one partial result for every requested subject and task.
type Cohort struct {
	Subjects []study.Subject
	Tasks    []study.Task
	Partials map[study.Task]map[study.Subject]model.PartialResult
}

func (c Cohort) Partial(subject study.Subject, task study.Task) (model.PartialResult, bool) {
	p, ok := c.Partials[task][subject]
	return p, ok
}

type Loader struct {
	Store   storage.Store
	Workers int
	Logger  *zap.Logger
	Metrics *telemetry.Metrics
}

// LoadCohort fetches every (subject, task) partial with default settings.
func LoadCohort(ctx context.Context, store storage.Store, subjects []study.Subject, tasks []study.Task) (Cohort, error) {
	return Loader{Store: store}.Load(ctx, subjects, tasks)
}

// Load fetches every (subject, task) partial concurrently and returns only
// once all of them are present. A missing record fails the whole load.
func (l Loader) Load(ctx context.Context, subjects []study.Subject, tasks []study.Task) (Cohort, error) {
	cohort := Cohort{
		Subjects: append([]study.Subject(nil), subjects...),
		Tasks:    append([]study.Task(nil), tasks...),
		Partials: make(map[study.Task]map[study.Subject]model.PartialResult, len(tasks)),
	}
	for _, task := range tasks {
		cohort.Partials[task] = make(map[study.Subject]model.PartialResult, len(subjects))
	}

	workers := l.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, task := range tasks {
		for _, subject := range subjects {
			g.Go(func() error {
				partial, ok, err := l.Store.GetPartial(gctx, subject, task)
				l.Metrics.ObservePartial("load", err)
				if err != nil {
					return fmt.Errorf("load %s: %w", model.PartialKey(subject, task), err)
				}
				if !ok {
					return &MissingPartialError{Subject: subject, Task: task}
				}
				mu.Lock()
				cohort.Partials[task][subject] = partial
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return Cohort{}, err
	}

	telemetry.OrNop(l.Logger).Info("cohort loaded",
		zap.Int("subjects", len(subjects)),
		zap.Int("tasks", len(tasks)))
	return cohort, nil
}
