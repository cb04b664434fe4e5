// Package janitor runs the periodic storage maintenance jobs: hard
// purge of rows soft-deleted past the retention window, and
// reconciliation of the denormalized chat-room counters.
package janitor

import (
	"log"
	"time"

	"github.com/studyhall/studyhall/internal/database"
)

const (
	DefaultInterval  = 15 * time.Minute
	DefaultRetention = 30 * 24 * time.Hour
)

type Janitor struct {
	db        database.StudyHallRepository
	log       *log.Logger
	interval  time.Duration
	retention time.Duration
	stop      chan struct{}
	done      chan struct{}
}

func NewJanitor(db database.StudyHallRepository, logger *log.Logger, interval, retention time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if retention <= 0 {
		retention = DefaultRetention
	}

	return &Janitor{
		db:        db,
		log:       logger,
		interval:  interval,
		retention: retention,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (j *Janitor) Run() {
	defer close(j.done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep()
		case <-j.stop:
			return
		}
	}
}

func (j *Janitor) Stop() {
	close(j.stop)
	<-j.done
}

// sweep runs both jobs even if one fails; they are independent.
func (j *Janitor) sweep() {
	cutoff := time.Now().Add(-j.retention)
	purged, err := j.db.PurgeSoftDeletedBefore(cutoff)
	if err != nil {
		j.log.Printf("janitor: purge soft-deleted messages: %v", err)
	} else if purged > 0 {
		j.log.Printf("janitor: purged %d messages soft-deleted before %s", purged, cutoff.Format(time.RFC3339))
	}

	if err := j.db.ReconcileChatRoomCounters(); err != nil {
		j.log.Printf("janitor: reconcile chat room counters: %v", err)
	}
}
