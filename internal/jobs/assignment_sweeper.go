// README: Cron job expiring overdue assignment offers.
package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"trackas/internal/modules/assignment"
)

const sweepBatchSize = 100

// AssignmentSweeper periodically times out pending assignments whose deadline
// passed without an in-process timer firing, which happens when offers
// outlive a process restart.
type AssignmentSweeper struct {
	assignments *assignment.Service
	cron        *cron.Cron
	log         *zap.Logger
}

func NewAssignmentSweeper(assignments *assignment.Service, log *zap.Logger) *AssignmentSweeper {
	return &AssignmentSweeper{
		assignments: assignments,
		cron:        cron.New(cron.WithSeconds()),
		log:         log.With(zap.String("component", "assignment_sweeper")),
	}
}

// Start runs the sweep every 30 seconds.
func (j *AssignmentSweeper) Start() error {
	_, err := j.cron.AddFunc("*/30 * * * * *", func() {
		ctx := context.Background()
		n, err := j.assignments.ExpireOverdue(ctx, sweepBatchSize)
		if err != nil {
			j.log.Error("sweep failed", zap.Error(err))
			return
		}
		if n > 0 {
			j.log.Info("expired overdue assignments", zap.Int("count", n))
		}
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	j.log.Info("assignment sweeper started")
	return nil
}

func (j *AssignmentSweeper) Stop() {
	j.cron.Stop()
	j.log.Info("assignment sweeper stopped")
}
