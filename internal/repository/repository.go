// Package repository defines the storage interfaces for the usage journal.
// Implementations live in subpackages (jsonl, sqlite).
package repository

import (
	"context"

	"github.com/sakif/magma-calc/internal/model"
)

// UsageRepository is an append-only journal of execution summaries.
type UsageRepository interface {
	// Append durably records one entry.
	Append(ctx context.Context, entry *model.UsageEntry) error
	// Replay calls fn for every stored entry in the order it was appended.
	// Unreadable records are skipped. An empty or missing journal is not an
	// error.
	Replay(ctx context.Context, fn func(model.UsageEntry)) error
	Close() error
}
