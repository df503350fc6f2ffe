package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Skryldev/ivr-studio/domain/model"
	"github.com/Skryldev/ivr-studio/pkg/logger"
)

// WorkerPool runs unit pipelines concurrently
type WorkerPool struct {
	pipeline *Pipeline
	workers  int
	log      *logger.Logger
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(p *Pipeline, workers int, log *logger.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 4
	}
	if log == nil {
		log = logger.Nop()
	}
	return &WorkerPool{
		pipeline: p,
		workers:  workers,
		log:      log,
	}
}

// Run fans out one pipeline per unit and returns once every unit has settled.
// results[i] belongs to units[i]. A failed unit never cancels its siblings.
func (wp *WorkerPool) Run(ctx context.Context, job *model.Job, shared *Shared, units []*model.OutputUnit) []model.UnitResult {
	results := make([]model.UnitResult, len(units))

	var g errgroup.Group
	g.SetLimit(wp.workers)

	wp.log.Info("running unit pipelines",
		zap.String("job_id", job.ID),
		zap.Int("units", len(units)),
		zap.Int("workers", wp.workers),
	)

	for i, unit := range units {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = model.UnitResult{Unit: unit.Name, Stage: "queued", Err: err}
				return nil
			}
			results[i] = wp.pipeline.RunUnit(ctx, job, shared, unit)
			return nil
		})
	}

	// barrier: packaging starts only after every unit settled
	_ = g.Wait()
	return results
}
