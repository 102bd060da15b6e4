package referral

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Repairer is the job run by RepairScheduler.
type Repairer interface {
	RepairMissingBalances(ctx context.Context) ([]uuid.UUID, error)
}

// RepairScheduler periodically creates ledger rows for users whose signup
// hook failed.
type RepairScheduler struct {
	sched gocron.Scheduler
}

// NewRepairScheduler registers the repair job every interval. It does not
// start it.
func NewRepairScheduler(repairer Repairer, interval time.Duration) (*RepairScheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("repair interval must be positive, got %s", interval)
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()

			created, err := repairer.RepairMissingBalances(ctx)
			if err != nil {
				log.Error().Err(err).Msg("scheduled balance repair failed")
				return
			}
			log.Debug().Int("created", len(created)).Msg("scheduled balance repair done")
		}),
		gocron.WithName("repair-missing-balances"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("register repair job: %w", err)
	}

	return &RepairScheduler{sched: sched}, nil
}

func (s *RepairScheduler) Start() {
	s.sched.Start()
}

// Stop waits for a running repair to finish.
func (s *RepairScheduler) Stop() error {
	return s.sched.Shutdown()
}
