// Package compaction runs the scheduled manual-compaction job (spec.md
// §4.9's job table): a full-range RocksDB compaction, run rarely and kept
// out of the hot write path.
package compaction

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/agentmemory/internal/apperr"
	"github.com/nextlevelbuilder/agentmemory/internal/storage"
)

// Job triggers a full compaction of every partition when run.
type Job struct {
	eng *storage.Engine
}

// NewJob returns a Job compacting through eng.
func NewJob(eng *storage.Engine) *Job {
	return &Job{eng: eng}
}

// Run compacts every partition concurrently, canceling the rest as soon as
// one fails. Partitions are independent column families, so there is no
// ordering requirement between them (unlike the rollup levels).
func (j *Job) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range storage.Partitions() {
		p := p
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if err := j.eng.CompactPartition(p); err != nil {
				return err
			}
			slog.Info("compaction.partition_compacted", "partition", p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return apperr.New(apperr.KindStorage, "compaction.Run", err)
	}
	return nil
}
