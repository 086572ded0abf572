// Package sweep implements the scheduled credential refresh sweep that keeps
// stored token pairs alive ahead of expiry.
package sweep

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/your-org/esi-client/internal/auth"
	"github.com/your-org/esi-client/internal/config"
	"github.com/your-org/esi-client/internal/domain"
	"github.com/your-org/esi-client/internal/metrics"
	"github.com/your-org/esi-client/pkg/errors"
	"github.com/your-org/esi-client/pkg/logger"
)

// Result reports one sweep run.
type Result struct {
	Refreshed int
	Failed    int
}

// Sweeper periodically refreshes credential records nearing expiry. Refreshes
// of the same record are serialized through a single-flight group: upstream
// refresh tokens are single-use, so two concurrent refreshes of one record
// would consume the token twice and leave only one winner able to persist.
type Sweeper struct {
	tokens    *auth.TokenService
	directory domain.CredentialDirectory
	cfg       config.SweepConfig
	metrics   *metrics.Metrics
	group     singleflight.Group
}

// NewSweeper creates a sweeper over the given token service and directory.
func NewSweeper(tokens *auth.TokenService, directory domain.CredentialDirectory, cfg config.SweepConfig, m *metrics.Metrics) *Sweeper {
	if m == nil {
		m = metrics.Default
	}
	return &Sweeper{
		tokens:    tokens,
		directory: directory,
		cfg:       cfg,
		metrics:   m,
	}
}

// Run executes sweeps on the configured interval until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				logger.Error("refresh sweep failed", logger.Err(err))
			}
		}
	}
}

// Sweep refreshes every active record whose access token expires within the
// configured window. A failure on one record never aborts the sweep for the
// others; failures are counted and reported, not thrown.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	runID := uuid.NewString()
	start := time.Now()
	s.metrics.SweepRunsTotal.Inc()

	records, err := s.directory.ListExpiring(ctx, s.cfg.ExpiryWindow)
	if err != nil {
		return Result{}, errors.Wrap(err, "failed to list expiring credentials")
	}

	var result Result
	for _, rec := range records {
		if err := s.RefreshRecord(ctx, rec); err != nil {
			result.Failed++
			s.metrics.SweepFailedTotal.Inc()
			logger.Warn("credential refresh failed",
				logger.String("run_id", runID),
				logger.String("record", rec.Key()),
				logger.Err(err))
			continue
		}
		result.Refreshed++
		s.metrics.SweepRefreshedTotal.Inc()
	}

	s.metrics.SweepDurationSeconds.Observe(time.Since(start).Seconds())
	logger.Info("refresh sweep completed",
		logger.String("run_id", runID),
		logger.Int("selected", len(records)),
		logger.Int("refreshed", result.Refreshed),
		logger.Int("failed", result.Failed),
		logger.Duration("duration", time.Since(start)))

	return result, nil
}

// RefreshRecord rotates one record's token pair and persists the result.
// Concurrent calls for the same record share a single refresh. A rejected
// grant marks the record revoked; revoked is terminal and the record is
// never retried.
func (s *Sweeper) RefreshRecord(ctx context.Context, rec *domain.CredentialRecord) error {
	_, err, _ := s.group.Do(rec.Key(), func() (any, error) {
		rotated, err := s.tokens.Refresh(ctx, rec.RefreshTokenCipher)
		if err != nil {
			if errors.IsGrantRevoked(err) {
				if markErr := s.directory.MarkRevoked(ctx, rec.OwnerID, rec.SubjectID); markErr != nil {
					logger.Error("failed to mark credential revoked",
						logger.String("record", rec.Key()),
						logger.Err(markErr))
				}
				rec.Status = domain.StatusRevoked
			}
			return nil, err
		}

		rec.AccessTokenCipher = rotated.AccessTokenCipher
		rec.RefreshTokenCipher = rotated.RefreshTokenCipher
		rec.ExpiresAt = rotated.ExpiresAt
		rec.TokenType = rotated.TokenType
		if len(rotated.Scopes) > 0 {
			rec.Scopes = rotated.Scopes
		}
		rec.Status = domain.StatusActive
		rec.LastRefreshedAt = time.Now()

		if err := s.directory.Save(ctx, rec); err != nil {
			// The old refresh token is already burned upstream; losing the
			// new pair here leaves the record unable to refresh again.
			return nil, errors.Wrap(err, "failed to persist rotated credential")
		}
		return nil, nil
	})
	return err
}
