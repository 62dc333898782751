package remote

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/gabe/botpool/internal/history"
	"github.com/gabe/botpool/internal/logger"
)

// ReportSchedule pushes the weekly report on a cron schedule
type ReportSchedule struct {
	cron *cron.Cron
}

// ScheduleReports starts pushing the weekly report through c on spec, a
// standard five-field cron expression
func ScheduleReports(ctx context.Context, spec string, c *Controller, log logger.Logger) (*ReportSchedule, error) {
	if log == nil {
		log = logger.NewNop()
	}
	sched := cron.New()
	_, err := sched.AddFunc(spec, func() {
		sent := c.Broadcast(ctx, c.Report(history.WindowWeekly))
		log.Info("Scheduled report sent", logger.Int("deliveries", sent))
	})
	if err != nil {
		return nil, fmt.Errorf("invalid report schedule %q: %w", spec, err)
	}
	sched.Start()
	return &ReportSchedule{cron: sched}, nil
}

// Stop stops the schedule and waits for a running push to finish
func (r *ReportSchedule) Stop() {
	<-r.cron.Stop().Done()
}
