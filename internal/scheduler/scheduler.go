package scheduler

import (
	"context"
	"time"

	"github.com/berfenger/chargepilot/internal/config"
	"github.com/berfenger/chargepilot/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

// Scheduler fires the periodic charge check and report upload by
// sending the corresponding requests to the master actor. Cron
// expressions use the quartz six-field format (seconds first).
type Scheduler struct {
	config    *config.Config
	scheduler quartz.Scheduler
	root      *actor.RootContext
	master    *actor.PID
	logger    *zap.Logger
}

func NewScheduler(config *config.Config, root *actor.RootContext, master *actor.PID, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		config:    config,
		scheduler: quartz.NewStdScheduler(),
		root:      root,
		master:    master,
		logger:    logger.With(zap.String("service", "scheduler")),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.scheduler.Start(ctx)

	if err := s.scheduleChargeCheck(); err != nil {
		return err
	}
	if s.config.Report.Enable {
		if err := s.scheduleReportUpload(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) scheduleChargeCheck() error {
	trigger, err := quartz.NewCronTrigger(s.config.Schedule.ChargeCheckCron)
	if err != nil {
		return err
	}
	chargeCheckJob := job.NewFunctionJob(func(_ context.Context) (bool, error) {
		s.logger.Info("scheduled charge check")
		s.root.Send(s.master, domain.RunChargeCheckRequest{})
		return true, nil
	})
	return s.scheduler.ScheduleJob(quartz.NewJobDetail(chargeCheckJob, quartz.NewJobKey("charge_check")), trigger)
}

func (s *Scheduler) scheduleReportUpload() error {
	trigger, err := quartz.NewCronTrigger(s.config.Schedule.ReportUploadCron)
	if err != nil {
		return err
	}
	uploadDays := s.config.Report.UploadDays
	if uploadDays < 1 {
		uploadDays = 1
	}
	reportJob := job.NewFunctionJob(func(_ context.Context) (bool, error) {
		from, to := reportRange(time.Now(), uploadDays)
		s.logger.Info("scheduled report upload", zap.Time("from", from), zap.Time("to", to))
		s.root.Send(s.master, domain.RunReportUploadRequest{From: from, To: to})
		return true, nil
	})
	return s.scheduler.ScheduleJob(quartz.NewJobDetail(reportJob, quartz.NewJobKey("report_upload")), trigger)
}

// reportRange covers the uploadDays days ending yesterday.
func reportRange(now time.Time, uploadDays int) (time.Time, time.Time) {
	year, month, day := now.Date()
	to := time.Date(year, month, day, 0, 0, 0, 0, now.Location()).AddDate(0, 0, -1)
	from := to.AddDate(0, 0, -(uploadDays - 1))
	return from, to
}
