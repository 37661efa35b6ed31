// Package source adapts the raw battle log to a streaming scan the
// pipeline can consume in batches.
//
// The log may be far larger than memory; the scanner decodes only the
// columns the pipeline needs and hands rows over in fixed-size batches, so
// no stage upstream of the per-player fold ever holds the full log.
package source

import (
	"context"

	"github.com/arenalab/churnsight/internal/domain/model"
)

// BatchFunc receives one decoded batch. Returning an error stops the scan.
type BatchFunc func(ctx context.Context, batch []model.Battle) error

// Scanner streams battles from a log snapshot.
type Scanner interface {
	// Scan streams the log, invoking fn per batch. It honors ctx for
	// cancellation and never materializes the full log.
	Scan(ctx context.Context, fn BatchFunc) error
}
