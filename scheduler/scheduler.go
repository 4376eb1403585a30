// Package scheduler runs the lifecycle and backup passes as background tasks
// on independent tickers. Pass outcomes are fanned into a results channel
// consumed by a logging aggregator, so a slow or failing pass never blocks
// the other. Passes run concurrently with user-facing traffic on the same
// containers; a lifecycle delete racing a concurrent read may surface as a
// not-found error to the reader, which is a benign race.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/storage-policy-backend/backup"
	"github.com/ruteri/storage-policy-backend/interfaces"
	"github.com/ruteri/storage-policy-backend/lifecycle"
	"go.uber.org/atomic"
)

// Config holds the schedule. Read-only after startup.
type Config struct {
	// Containers are the container names covered by scheduled passes.
	Containers []string

	// Policies are the lifecycle policies applied on each lifecycle pass.
	// They are validated on Start; a misconfigured policy fails startup.
	Policies []interfaces.LifecyclePolicy

	// LifecycleInterval is the period between lifecycle passes. Zero disables
	// them.
	LifecycleInterval time.Duration

	// BackupInterval is the period between backup passes. Zero disables them.
	BackupInterval time.Duration
}

// passResult carries one finished pass to the aggregator.
type passResult struct {
	kind    string
	reports []lifecycle.ActionReport
	backups []interfaces.BackupResult
	err     error
}

// Scheduler owns the background lifecycle and backup loops.
type Scheduler struct {
	cfg    Config
	engine *lifecycle.Engine
	orch   *backup.Orchestrator
	log    *slog.Logger

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	loops   sync.WaitGroup
}

// New creates a scheduler driving the given engine and orchestrator.
func New(cfg Config, engine *lifecycle.Engine, orch *backup.Orchestrator, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		engine: engine,
		orch:   orch,
		log:    logger.With(slog.String("component", "scheduler")),
	}
}

// RunLifecyclePass evaluates the configured policies once, on demand.
func (s *Scheduler) RunLifecyclePass(ctx context.Context, policies []interfaces.LifecyclePolicy) ([]lifecycle.ActionReport, error) {
	return s.engine.RunPass(ctx, policies, s.cfg.Containers)
}

// RunBackupPass backs up the given containers once, on demand. Per-container
// failures are isolated; every container yields a result.
func (s *Scheduler) RunBackupPass(ctx context.Context, containers []string) []interfaces.BackupResult {
	results := make([]interfaces.BackupResult, 0, len(containers))
	for _, container := range containers {
		result, err := s.orch.CreateBackup(ctx, container)
		if err != nil {
			s.log.Warn("Backup pass failed for container",
				slog.String("container", container), "err", err)
		}
		results = append(results, result)
	}
	return results
}

// Start validates the configured policies and launches the background loops.
// It returns immediately; passes run until Stop or context cancellation.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, policy := range s.cfg.Policies {
		if err := lifecycle.ValidatePolicy(policy); err != nil {
			return err
		}
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	results := make(chan passResult)

	s.wg.Add(1)
	go s.aggregate(results)

	if s.cfg.LifecycleInterval > 0 {
		s.loops.Add(1)
		go s.loop(ctx, s.cfg.LifecycleInterval, results, func(ctx context.Context) passResult {
			reports, err := s.RunLifecyclePass(ctx, s.cfg.Policies)
			return passResult{kind: "lifecycle", reports: reports, err: err}
		})
	}
	if s.cfg.BackupInterval > 0 {
		s.loops.Add(1)
		go s.loop(ctx, s.cfg.BackupInterval, results, func(ctx context.Context) passResult {
			return passResult{kind: "backup", backups: s.RunBackupPass(ctx, s.cfg.Containers)}
		})
	}

	// The aggregator drains until every producer loop has exited.
	go func() {
		s.loops.Wait()
		close(results)
	}()

	s.log.Info("Scheduler started",
		slog.Duration("lifecycle_interval", s.cfg.LifecycleInterval),
		slog.Duration("backup_interval", s.cfg.BackupInterval))
	return nil
}

// Stop cancels the background loops and waits for in-flight passes.
func (s *Scheduler) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.log.Info("Scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, results chan<- passResult, run func(context.Context) passResult) {
	defer s.loops.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case results <- run(ctx):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Scheduler) aggregate(results <-chan passResult) {
	defer s.wg.Done()

	for res := range results {
		s.logResult(res)
	}
}

func (s *Scheduler) logResult(res passResult) {
	if res.err != nil {
		s.log.Error("Scheduled pass failed", slog.String("pass", res.kind), "err", res.err)
		return
	}
	switch res.kind {
	case "lifecycle":
		failed := 0
		for _, r := range res.reports {
			if !r.Executed {
				failed++
			}
		}
		s.log.Info("Scheduled lifecycle pass finished",
			slog.Int("actions", len(res.reports)),
			slog.Int("failed", failed))
	case "backup":
		failed := 0
		for _, b := range res.backups {
			if !b.Success {
				failed++
			}
		}
		s.log.Info("Scheduled backup pass finished",
			slog.Int("backups", len(res.backups)),
			slog.Int("failed", failed))
	}
}
