package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// ExpiredInvitationPurger deletes unredeemed invitations that expired before
// olderThan.
type ExpiredInvitationPurger interface {
	DeleteExpiredUnused(ctx context.Context, olderThan time.Time) (int64, error)
}

type CleanupJob struct {
	invitations ExpiredInvitationPurger
	retention   time.Duration
	interval    time.Duration
	now         func() time.Time
	done        chan struct{}
	stopped     chan struct{}
}

func NewCleanupJob(invitations ExpiredInvitationPurger, retention, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		invitations: invitations,
		retention:   retention,
		interval:    interval,
		now:         time.Now,
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("retention", j.retention).Msg("cleanup job started")
}

// Stop ends the loop and waits for an in-progress sweep to return.
func (j *CleanupJob) Stop() {
	close(j.done)
	<-j.stopped
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	defer close(j.stopped)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := j.RunOnce(ctx); err != nil {
		log.Error().Err(err).Msg("failed to cleanup expired invitations")
	}
}

// RunOnce purges invitations that expired more than retention ago.
func (j *CleanupJob) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.retention)
	count, err := j.invitations.DeleteExpiredUnused(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		log.Info().Int64("count", count).Time("cutoff", cutoff).Msg("cleaned up expired invitations")
	}
	return count, nil
}
