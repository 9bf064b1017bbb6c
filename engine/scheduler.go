package engine

import (
	"context"
	"fmt"

	"github.com/oarkflow/log"
	"github.com/robfig/cron/v3"

	"github.com/oarkflow/pipeline/pkg/contracts"
)

// Scheduler runs query-sourced (derived stream) pipelines on their cron
// schedule: each tick fetches the next batch from the pipeline's query
// source and feeds it through ProcessBatch.
type Scheduler struct {
	cron   *cron.Cron
	logger *log.Logger
}

func NewScheduler(logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = &log.DefaultLogger
	}
	return &Scheduler{cron: cron.New(), logger: logger}
}

// Add registers a pipeline whose source node carries a schedule. The
// returned id can be used to Remove it later.
func (s *Scheduler) Add(ctx context.Context, p *ExecutablePipeline, source contracts.QuerySource) (cron.EntryID, error) {
	spec, ok := p.QuerySchedule()
	if !ok {
		return 0, fmt.Errorf("pipeline %s: source node has no schedule", p.ID())
	}
	streamHint := p.sourceStream().Name
	return s.cron.AddFunc(spec, func() {
		records, err := source.Fetch(ctx)
		if err != nil {
			s.logger.Error().
				Err(err).
				Str("pipeline_id", p.ID()).
				Msg("derived stream fetch failed")
			return
		}
		if len(records) == 0 {
			return
		}
		if _, err := p.ProcessBatch(ctx, p.Org(), records, streamHint); err != nil {
			s.logger.Error().
				Err(err).
				Str("pipeline_id", p.ID()).
				Int("records", len(records)).
				Msg("derived stream run failed")
		}
	})
}

func (s *Scheduler) Remove(id cron.EntryID) { s.cron.Remove(id) }

func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for any in-flight run to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
