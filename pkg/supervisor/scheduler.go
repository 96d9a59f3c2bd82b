package supervisor

import (
	"context"
	"time"

	"github.com/cuemby/autopilot/pkg/log"
)

// Scheduler pokes the supervisor's scan entry point on a fixed cadence.
// An interval of zero disables the loop entirely; scans then only run on
// explicit POST /health/scan requests.
type Scheduler struct {
	supervisor *Supervisor
	interval   time.Duration
	stopCh     chan struct{}
}

// NewScheduler creates a scheduler
func NewScheduler(s *Supervisor, interval time.Duration) *Scheduler {
	return &Scheduler{
		supervisor: s,
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the scan loop
func (sc *Scheduler) Start() {
	if sc.interval <= 0 {
		log.Info("scan scheduler disabled, scans run on demand only")
		return
	}
	go sc.run()
}

// Stop stops the scheduler
func (sc *Scheduler) Stop() {
	close(sc.stopCh)
}

// run is the main scan loop. Each cycle is deadlined to the interval so a
// stuck scan cannot pile up behind the next tick.
func (sc *Scheduler) run() {
	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	log.Logger.Info().Dur("interval", sc.interval).Msg("scan scheduler started")

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), sc.interval)
			sc.supervisor.ScanAll(ctx)
			cancel()
		case <-sc.stopCh:
			return
		}
	}
}
