// Package gc reclaims orphaned blobs: content in the blob store no longer
// referenced by any file version. Orphans appear when a catalog write fails
// after its blob upload, or when a purge races another writer. The sweeper
// is an explicit maintenance operation — nothing runs it inline with
// requests.
package gc

import (
	"context"
	"fmt"

	"strongbox/internal/engine"
)

// Collector scans the blob store for orphaned content.
type Collector struct {
	catalog engine.Catalog
	store   engine.BlobStore
	logger  engine.Logger
	dryRun  bool
}

// Report summarizes one sweep.
type Report struct {
	Scanned int // blobs examined
	Orphans int // blobs with no referencing version
	Deleted int // blobs actually removed (0 in dry-run mode)
}

// NewCollector creates a collector. With dryRun set, orphans are logged but
// not deleted.
func NewCollector(catalog engine.Catalog, store engine.BlobStore, logger engine.Logger, dryRun bool) *Collector {
	return &Collector{catalog: catalog, store: store, logger: logger, dryRun: dryRun}
}

// Run performs one sweep. The referenced set is snapshotted before listing
// the store, so a blob uploaded mid-sweep can appear unreferenced only if
// its catalog write also happened mid-sweep — those blobs are skipped by
// listing the store first.
func (c *Collector) Run(ctx context.Context) (*Report, error) {
	hashes, err := c.store.Hashes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing blobs: %w", err)
	}

	referenced, err := c.catalog.ReferencedHashes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing referenced hashes: %w", err)
	}

	report := &Report{Scanned: len(hashes)}
	for _, h := range hashes {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, ok := referenced[h]; ok {
			continue
		}
		report.Orphans++

		if c.dryRun {
			c.logger.Info("orphaned blob (dry run)", "hash", h)
			continue
		}
		if err := c.store.Delete(ctx, h); err != nil {
			c.logger.Warn("failed to delete orphaned blob", "hash", h, "error", err)
			continue
		}
		report.Deleted++
		c.logger.Debug("orphaned blob deleted", "hash", h)
	}

	c.logger.Info("sweep complete", "scanned", report.Scanned, "orphans", report.Orphans, "deleted", report.Deleted)
	return report, nil
}
