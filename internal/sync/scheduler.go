package sync

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"offline-sync-service/internal/config"
	"offline-sync-service/internal/logger"
)

// Scheduler drives periodic drains. The reconciler's in-progress guard
// keeps a tick from overlapping an online-transition drain.
type Scheduler struct {
	cfg     config.SchedulerConfig
	manager *Manager
	cron    *cron.Cron
	entryID cron.EntryID
}

func NewScheduler(cfg config.SchedulerConfig, manager *Manager) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		manager: manager,
		cron:    cron.New(),
	}
}

func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		logger.Log.Info("Scheduler is disabled")
		return
	}

	logger.Log.Info("Starting scheduler", zap.String("interval", s.cfg.Interval))

	id, err := s.cron.AddFunc("@every "+s.cfg.Interval, func() {
		s.triggerDrain()
	})

	if err != nil {
		logger.Log.Error("Failed to schedule drain", zap.Error(err))
		return
	}

	s.entryID = id
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	logger.Log.Info("Stopped scheduler")
}

func (s *Scheduler) triggerDrain() {
	if !s.manager.Online() {
		logger.Log.Debug("Offline, skipping scheduled drain")
		return
	}

	s.manager.EvictExpired()

	result := s.manager.DrainNow(s.manager.ctx)
	if result.RunID == "" {
		logger.Log.Debug("Drain already running, skipping scheduled run")
	}
}
