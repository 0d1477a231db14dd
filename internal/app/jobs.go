package app

import (
	"context"
	"time"

	"github.com/linecrm/linecrm/internal/session"
	"github.com/linecrm/linecrm/internal/stats"
	log "github.com/sirupsen/logrus"
)

// Job runs fn immediately and then every interval until ctx is done.
type Job struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)
}

// Start launches the job in a goroutine. A nil job is a no-op.
func (t *Job) Start(ctx context.Context) {
	if t == nil || t.fn == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go t.run(ctx)
	log.Infof("%s started (interval=%s)", t.name, t.interval)
}

func (t *Job) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		t.fn(ctx)
		timer := time.NewTimer(t.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

// NewSessionJanitor removes expired sessions and login states from store.
func NewSessionJanitor(store session.Store, interval time.Duration) *Job {
	if store == nil || interval <= 0 {
		return nil
	}
	return &Job{
		name:     "session janitor",
		interval: interval,
		fn: func(ctx context.Context) {
			purged, errPurge := store.PurgeExpired(ctx, time.Now().UTC())
			if errPurge != nil {
				log.WithError(errPurge).Warn("session janitor: purge failed")
				return
			}
			if purged > 0 {
				log.WithField("purged", purged).Debug("session janitor: expired sessions removed")
			}
		},
	}
}

// NewSnapshotJob keeps the daily_stats rows for yesterday and today current.
func NewSnapshotJob(svc *stats.Service, interval time.Duration) *Job {
	if svc == nil || interval <= 0 {
		return nil
	}
	return &Job{
		name:     "daily snapshot job",
		interval: interval,
		fn: func(ctx context.Context) {
			now := time.Now()
			for _, day := range []time.Time{now.AddDate(0, 0, -1), now} {
				if _, errSnap := svc.SnapshotDay(ctx, day); errSnap != nil {
					log.WithError(errSnap).WithField("day", day.Format("2006-01-02")).Warn("daily snapshot failed")
				}
			}
		},
	}
}
