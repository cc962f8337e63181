package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs the periodic quote refresh and the daily portfolio
// snapshot.
type Scheduler struct {
	poller   *QuotePoller
	summary  *SummaryService
	cron     *cron.Cron
	logger   *zap.Logger
	interval time.Duration
	daily    string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates the scheduler in the market timezone.
func NewScheduler(poller *QuotePoller, summary *SummaryService, interval time.Duration, daily, timezone string, logger *zap.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", timezone, err)
	}

	logger = logger.Named("scheduler")
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		poller:   poller,
		summary:  summary,
		cron:     c,
		logger:   logger,
		interval: interval,
		daily:    daily,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start schedules both jobs and kicks off the first refresh, which also
// builds the sparklines.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.refreshQuotes(false)
	}); err != nil {
		return fmt.Errorf("failed to schedule quote refresh: %w", err)
	}

	if s.summary != nil && s.daily != "" {
		if _, err := s.cron.AddFunc(s.daily, s.snapshotPortfolios); err != nil {
			return fmt.Errorf("failed to schedule portfolio snapshots: %w", err)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started", zap.Duration("quoteInterval", s.interval), zap.String("snapshots", s.daily))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.refreshQuotes(true)
	}()
	return nil
}

func (s *Scheduler) refreshQuotes(withSparklines bool) {
	if err := s.poller.Refresh(s.ctx, withSparklines); err != nil {
		s.logger.Warn("quote refresh stopped", zap.Error(err))
	}
}

func (s *Scheduler) snapshotPortfolios() {
	s.logger.Info("starting daily portfolio snapshot")
	count, err := s.summary.SnapshotAll()
	if err != nil {
		s.logger.Error("portfolio snapshot failed", zap.Error(err))
		return
	}
	s.logger.Info("portfolio snapshot completed", zap.Int("portfolios", count))
}

// Stop cancels a running refresh and waits for running jobs, including the
// first refresh started by Start.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}
