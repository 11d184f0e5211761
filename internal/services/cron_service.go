package services

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// PasscodeCleaner removes passcodes past their expiry window
type PasscodeCleaner interface {
	CleanupExpiredPasscodes() (int64, error)
}

// RateLimitCleaner removes rate limit rows outside every window
type RateLimitCleaner interface {
	CleanupExpiredRateLimits() (int64, error)
}

// SessionSweeper drops expired intake sessions from an in-process store
type SessionSweeper interface {
	Sweep() int
}

// CronService manages scheduled background jobs
type CronService struct {
	cron       *cron.Cron
	passcodes  PasscodeCleaner
	rateLimits RateLimitCleaner
	sessions   SessionSweeper
	logger     *logrus.Logger
}

// NewCronService creates a new CronService. sessions may be nil when intake
// sessions live in redis, which expires them itself.
func NewCronService(passcodes PasscodeCleaner, rateLimits RateLimitCleaner, sessions SessionSweeper, logger *logrus.Logger) *CronService {
	return &CronService{
		cron:       cron.New(cron.WithSeconds()),
		passcodes:  passcodes,
		rateLimits: rateLimits,
		sessions:   sessions,
		logger:     logger,
	}
}

// Start schedules all jobs and starts the scheduler
func (s *CronService) Start() error {
	// Cron format: second minute hour day month weekday
	jobs := []struct {
		schedule string
		name     string
		fn       func()
	}{
		{"0 */15 * * * *", "Cleanup expired passcodes (every 15 minutes)", s.cleanupPasscodesJob},
		{"0 5 * * * *", "Cleanup expired rate limits (hourly)", s.cleanupRateLimitsJob},
	}
	if s.sessions != nil {
		jobs = append(jobs, struct {
			schedule string
			name     string
			fn       func()
		}{"0 */10 * * * *", "Sweep expired intake sessions (every 10 minutes)", s.sweepSessionsJob})
	}

	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.schedule, job.fn); err != nil {
			return fmt.Errorf("failed to schedule %q: %w", job.name, err)
		}
		s.logger.WithField("job", job.name).Info("Scheduled cron job")
	}

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) cleanupPasscodesJob() {
	started := time.Now()
	removed, err := s.passcodes.CleanupExpiredPasscodes()
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to clean up expired passcodes")
		return
	}
	s.logger.WithFields(logrus.Fields{"removed": removed, "duration": time.Since(started)}).Info("[CRON] Cleaned up expired passcodes")
}

func (s *CronService) cleanupRateLimitsJob() {
	started := time.Now()
	removed, err := s.rateLimits.CleanupExpiredRateLimits()
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to clean up rate limits")
		return
	}
	s.logger.WithFields(logrus.Fields{"removed": removed, "duration": time.Since(started)}).Info("[CRON] Cleaned up rate limits")
}

func (s *CronService) sweepSessionsJob() {
	removed := s.sessions.Sweep()
	s.logger.WithField("removed", removed).Debug("[CRON] Swept expired intake sessions")
}

// RunCleanupNow runs every job once, outside the schedule
func (s *CronService) RunCleanupNow() {
	s.cleanupPasscodesJob()
	s.cleanupRateLimitsJob()
	if s.sessions != nil {
		s.sweepSessionsJob()
	}
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
