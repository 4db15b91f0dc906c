package storage

import (
	"context"

	"audimg/internal/model"
	"audimg/internal/study"
)

// Store persists one partial result per (subject, task) under its
// model.PartialKey. Saving the same key again replaces the record.
type Store interface {
	Init(ctx context.Context) error
	SavePartial(ctx context.Context, partial model.PartialResult) error
	GetPartial(ctx context.Context, subject study.Subject, task study.Task) (model.PartialResult, bool, error)
	ListPartials(ctx context.Context) ([]string, error)
}
