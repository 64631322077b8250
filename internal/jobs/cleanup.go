package jobs

import (
	"log"
	"time"

	"github.com/rapidex-app/whatsapp-gateway/internal/guard"
)

// CleanupJob periodically sweeps expired entries out of the ephemeral
// guard windows so long-running processes don't accumulate one map
// entry per customer forever.
type CleanupJob struct {
	guards   []*guard.Window
	interval time.Duration
	stop     chan struct{}
}

// NewCleanupJob creates the job. A zero interval defaults to an hour.
func NewCleanupJob(interval time.Duration, guards ...*guard.Window) *CleanupJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupJob{
		guards:   guards,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start begins the periodic sweep.
func (j *CleanupJob) Start() {
	log.Println("Starting guard cleanup job...")
	go j.run()
}

// Stop halts the job.
func (j *CleanupJob) Stop() {
	close(j.stop)
	log.Println("Guard cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stop:
			return
		case <-ticker.C:
			removed := 0
			for _, g := range j.guards {
				removed += g.Sweep()
			}
			if removed > 0 {
				log.Printf("Guard cleanup: %d expired entries removed", removed)
			}
		}
	}
}
