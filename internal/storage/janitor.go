// ABOUTME: Cron-scheduled janitor that sweeps expired cache entries
// ABOUTME: Optionally prunes dedup ledger entries whose lessons were evicted
package storage

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

// Janitor periodically cleans a ContentCache
type Janitor struct {
	cache      *ContentCache
	cron       *cron.Cron
	pruneDedup bool
	logger     *log.Logger
}

// NewJanitor schedules cleanup of cache on spec, a standard cron expression
// or descriptor such as "@every 10m". The janitor does nothing until Start.
func NewJanitor(cache *ContentCache, spec string, pruneDedup bool, logger *log.Logger) (*Janitor, error) {
	if logger == nil {
		logger = log.Default()
	}
	j := &Janitor{
		cache:      cache,
		cron:       cron.New(),
		pruneDedup: pruneDedup,
		logger:     logger,
	}
	if _, err := j.cron.AddFunc(spec, j.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid cache sweep schedule %q: %w", spec, err)
	}
	return j, nil
}

// RunOnce performs one cleanup pass
func (j *Janitor) RunOnce() {
	swept := j.cache.Sweep()
	pruned := 0
	if j.pruneDedup {
		pruned = j.cache.PruneDedup()
	}
	if swept > 0 || pruned > 0 {
		j.logger.Debug("cache janitor pass", "expired", swept, "pruned_hashes", pruned, "remaining", j.cache.Len())
	}
}

// Start begins running the schedule in the background
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running pass to finish
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}
