package cache

import "github.com/rs/zerolog"

// CleanupJob removes expired entries from every durable-tier category
// table. Registered with the cron scheduler to run on a daily tick.
type CleanupJob struct {
	durable *Durable
	log     zerolog.Logger
}

// NewCleanupJob creates a durable-tier cleanup job.
func NewCleanupJob(durable *Durable, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		durable: durable,
		log:     log.With().Str("job", "cache_cleanup").Logger(),
	}
}

// Run satisfies cron.Job and removes every expired row across categories.
func (j *CleanupJob) Run() {
	results, err := j.durable.DeleteAllExpired()
	if err != nil {
		j.log.Error().Err(err).Msg("cache cleanup failed")
		return
	}

	var total int64
	for category, count := range results {
		if count > 0 {
			j.log.Info().Str("category", string(category)).Int64("deleted", count).Msg("swept expired cache entries")
			total += count
		}
	}
	if total > 0 {
		j.log.Info().Int64("total_deleted", total).Msg("cache cleanup completed")
	}
}
