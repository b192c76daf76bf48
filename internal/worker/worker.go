package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/custodia-labs/agrolink-core/internal/core/domain"
	"github.com/custodia-labs/agrolink-core/internal/core/ports/driven"
	"github.com/custodia-labs/agrolink-core/internal/core/ports/driving"
)

const (
	// DefaultSchedule drains every five minutes
	DefaultSchedule = "@every 5m"

	// DefaultLockTTL bounds how long a crashed worker can block others
	DefaultLockTTL = 2 * time.Minute

	// LockName is the distributed lock guarding a drain
	LockName = "sync-drain"
)

var (
	// ErrDrainLocked is returned when another process holds the drain lock.
	// It matches domain.ErrSyncInProgress.
	ErrDrainLocked = fmt.Errorf("%w: drain lock held by another instance", domain.ErrSyncInProgress)

	// ErrAlreadyRunning is returned by Start on a running worker
	ErrAlreadyRunning = errors.New("worker already running")
)

// Pusher sends queued mutations to the remote
type Pusher interface {
	Push(ctx context.Context, item *domain.SyncQueueItem) (bool, error)
	Ping(ctx context.Context) error
}

// PusherFactory builds a Pusher for the stored cloud config
type PusherFactory func(cfg *domain.CloudSyncConfig) (Pusher, error)

// Worker drains the sync queue on a cron schedule.
// Each cycle checks connectivity, records it in the sync status and, when
// online, pushes every queued mutation through the Pusher.
type Worker struct {
	sync        driving.SyncService
	cloudConfig driving.CloudConfigService
	newPusher   PusherFactory
	logger      *slog.Logger

	// Lock configuration
	lock         driven.DistributedLock
	lockTTL      time.Duration
	lockRequired bool

	schedule   string
	runOnStart bool

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
	cancel  context.CancelFunc
	stopped chan struct{}  // closed once Stop has finished
	wg      sync.WaitGroup // RunOnStart drain, which cron does not track
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	Sync        driving.SyncService
	CloudConfig driving.CloudConfigService
	NewPusher   PusherFactory
	Logger      *slog.Logger

	Lock         driven.DistributedLock // Optional: needed when several processes share a store
	LockTTL      time.Duration          // Default: 2m; extended after every pushed item
	LockRequired bool                   // Skip the cycle when the lock backend errors

	Schedule   string // Cron spec (default: "@every 5m")
	RunOnStart bool   // Drain once immediately on Start
}

// NewWorker creates a new drain worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}

	schedule := cfg.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}

	return &Worker{
		sync:         cfg.Sync,
		cloudConfig:  cfg.CloudConfig,
		newPusher:    cfg.NewPusher,
		logger:       logger,
		lock:         cfg.Lock,
		lockTTL:      lockTTL,
		lockRequired: cfg.LockRequired,
		schedule:     schedule,
		runOnStart:   cfg.RunOnStart,
	}
}

// Start schedules drains until Stop is called or ctx is cancelled.
// Overlapping cycles are skipped rather than queued.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return ErrAlreadyRunning
	}

	clog := cronLogger{logger: w.logger.With("component", "cron")}
	c := cron.New(
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)

	runCtx, cancel := context.WithCancel(ctx)
	id, err := c.AddFunc(w.schedule, func() { w.cycle(runCtx) })
	if err != nil {
		cancel()
		return fmt.Errorf("invalid schedule %q: %w", w.schedule, err)
	}

	c.Start()
	stopped := make(chan struct{})
	w.cron = c
	w.cancel = cancel
	w.stopped = stopped
	w.running = true

	w.logger.Info("worker started", "schedule", w.schedule, "lock", w.lock != nil)

	if w.runOnStart {
		// Through the wrapped job so SkipIfStillRunning applies
		job := c.Entry(id).WrappedJob
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			job.Run()
		}()
	}

	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-stopped:
		}
	}()
	return nil
}

// Stop cancels an in-flight drain between items and waits for it to return.
// Concurrent callers all wait for the same shutdown.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		stopped := w.stopped
		w.mu.Unlock()
		if stopped != nil {
			<-stopped
		}
		return
	}
	w.running = false
	c, cancel, stopped := w.cron, w.cancel, w.stopped
	w.mu.Unlock()

	cancel()
	<-c.Stop().Done()
	w.wg.Wait()
	close(stopped)

	w.logger.Info("worker stopped")
}

// Running reports whether the worker is scheduled
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) cycle(ctx context.Context) {
	result, err := w.RunOnce(ctx)
	switch {
	case err == nil:
		w.logger.Info("drain cycle finished",
			"success", result.Success,
			"failed", result.Failed,
			"abandoned", result.Abandoned,
		)
	case errors.Is(err, ErrDrainLocked), errors.Is(err, domain.ErrSyncInProgress):
		w.logger.Debug("drain cycle skipped", "reason", err)
	case errors.Is(err, domain.ErrNotConfigured), errors.Is(err, domain.ErrOffline):
		w.logger.Info("drain cycle skipped", "reason", err)
	default:
		w.logger.Error("drain cycle failed", "error", err)
	}
}

// RunOnce performs a single drain cycle:
//  1. take the drain lock, if configured
//  2. load the cloud config (domain.ErrNotConfigured when absent)
//  3. ping the remote and record IsOnline; return domain.ErrOffline when unreachable
//  4. drain the queue through the Pusher
func (w *Worker) RunOnce(ctx context.Context) (*domain.DrainResult, error) {
	if w.lock != nil {
		acquired, err := w.lock.Acquire(ctx, LockName, w.lockTTL)
		switch {
		case err != nil && w.lockRequired:
			return nil, fmt.Errorf("acquire drain lock: %w", err)
		case err != nil:
			w.logger.Warn("failed to acquire drain lock, continuing without it", "error", err)
		case !acquired:
			return nil, ErrDrainLocked
		default:
			defer func() {
				// Release even if ctx was cancelled mid-drain
				if err := w.lock.Release(context.WithoutCancel(ctx), LockName); err != nil {
					w.logger.Warn("failed to release drain lock", "error", err)
				}
			}()
		}
	}

	cfg, err := w.cloudConfig.Get(ctx)
	if err != nil {
		return nil, err
	}
	pusher, err := w.newPusher(cfg)
	if err != nil {
		return nil, fmt.Errorf("create pusher: %w", err)
	}

	pingErr := pusher.Ping(ctx)
	online := pingErr == nil
	if _, err := w.sync.UpdateStatus(ctx, domain.SyncStatusPatch{IsOnline: &online}); err != nil {
		w.logger.Warn("failed to record connectivity", "online", online, "error", err)
	}
	if !online {
		if errors.Is(pingErr, domain.ErrOffline) {
			return nil, pingErr
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrOffline, pingErr)
	}

	push := pusher.Push
	if w.lock != nil {
		push = w.extendingLock(pusher.Push)
	}
	return w.sync.Process(ctx, push)
}

// extendingLock refreshes the drain lock after every item so long drains
// keep it.
func (w *Worker) extendingLock(push driving.SyncFunc) driving.SyncFunc {
	return func(ctx context.Context, item *domain.SyncQueueItem) (bool, error) {
		ok, err := push(ctx, item)
		if extErr := w.lock.Extend(ctx, LockName, w.lockTTL); extErr != nil {
			w.logger.Warn("failed to extend drain lock", "error", extErr)
		}
		return ok, err
	}
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
