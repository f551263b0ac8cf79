package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/quizdesk/quizdesk-backend/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SweepLockTTL bounds how long one replica holds the sweep; a crashed
// holder frees the lock after this.
const SweepLockTTL = 30 * time.Second

// expiredLister is the query the sweep needs from the attempt repository.
type expiredLister interface {
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// ExpirySweepWorker finalizes attempts that ran past their deadline and
// were then abandoned. The request path already finalizes on the first
// post-deadline touch; this sweep is the safety net for attempts nobody
// touches again.
type ExpirySweepWorker struct {
	attempts expiredLister
	svc      *service.AttemptService
	rdb      *redis.Client
	cfg      *config.Config
	log      zerolog.Logger
}

func NewExpirySweepWorker(
	attempts expiredLister,
	svc *service.AttemptService,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *ExpirySweepWorker {
	return &ExpirySweepWorker{
		attempts: attempts,
		svc:      svc,
		rdb:      rdb,
		cfg:      cfg,
		log:      log.With().Str("component", "expiry_sweep_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop
// ----------------------------------------------------------------

func (w *ExpirySweepWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.cfg.SweepInterval).Msg("ExpirySweepWorker started")

	ticker := time.NewTicker(w.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. ExpirySweepWorker stopping")
			return
		case <-ticker.C:
			w.sweepSafe(ctx)
		}
	}
}

func (w *ExpirySweepWorker) sweepSafe(ctx context.Context) {
	// One replica sweeps at a time; losing the lock just means another
	// replica is already doing this pass.
	locked, err := w.rdb.SetNX(ctx, config.CacheKey.SweepLockKey(), 1, SweepLockTTL).Result()
	if err != nil {
		w.log.Error().Err(err).Msg("Sweep lock acquisition failed")
		return
	}
	if !locked {
		return
	}
	defer w.rdb.Del(ctx, config.CacheKey.SweepLockKey())

	// Retry ids left over from earlier failed passes before scanning anew.
	ids := w.drainRetryQueue(ctx)

	scanned, err := w.attempts.ListExpiredPending(ctx, time.Now(), w.cfg.SweepBatchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("Expired attempt scan failed")
	} else {
		ids = append(ids, scanned...)
	}
	if len(ids) == 0 {
		return
	}

	finalized := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if err := w.svc.FinalizeExpired(ctx, id); err != nil {
			// The attempt may have been finalized by its owner between
			// the scan and now; that is fine. A real failure gets
			// requeued for the next pass.
			if !errors.Is(err, service.ErrNotCompleted) && !errors.Is(err, service.ErrAttemptNotFound) {
				w.log.Warn().Err(err).Str("attempt_id", id.String()).Msg("Sweep finalize failed — requeueing")
				w.rdb.RPush(ctx, config.WorkerKey.FinalizeAttemptsQueue, id.String())
			}
			continue
		}
		finalized++
	}

	w.log.Info().Int("candidates", len(ids)).Int("finalized", finalized).Msg("Expiry sweep pass done")
}

func (w *ExpirySweepWorker) drainRetryQueue(ctx context.Context) []uuid.UUID {
	var ids []uuid.UUID
	for len(ids) < w.cfg.SweepBatchSize {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.FinalizeAttemptsQueue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				w.log.Error().Err(err).Msg("Retry queue pop failed")
			}
			break
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			w.log.Error().Str("raw", raw).Msg("Invalid attempt id in retry queue")
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
