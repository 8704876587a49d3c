package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/voxhub/notify-engine/internal/domain"
	"github.com/voxhub/notify-engine/internal/repository"
)

const (
	defaultStatsWindow     = 24 * time.Hour
	defaultRetentionPeriod = 90 * 24 * time.Hour
	defaultRetentionTick   = time.Hour
	maxStatsWindow         = 90 * 24 * time.Hour
)

// ChannelStats aggregates attempt outcomes for one channel.
type ChannelStats struct {
	Channel   domain.Channel `json:"channel"`
	Success   int64          `json:"success"`
	Transient int64          `json:"transientFailures"`
	Permanent int64          `json:"permanentFailures"`
	// SuccessRate is successes over all attempts, 0 when no attempts.
	SuccessRate float64 `json:"successRate"`
}

// DeliveryStats is the operator-facing delivery report for a window.
type DeliveryStats struct {
	From     time.Time      `json:"from"`
	To       time.Time      `json:"to"`
	Channels []ChannelStats `json:"channels"`
}

// AnalyticsService reports on the delivery log and enforces its
// retention window.
type AnalyticsService struct {
	attempts  repository.AttemptRepository
	logger    *zap.Logger
	retention time.Duration
	tick      time.Duration
	now       func() time.Time
}

func NewAnalyticsService(attempts repository.AttemptRepository, retention time.Duration, logger *zap.Logger) (*AnalyticsService, error) {
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if retention <= 0 {
		retention = defaultRetentionPeriod
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AnalyticsService{
		attempts:  attempts,
		logger:    logger,
		retention: retention,
		tick:      defaultRetentionTick,
		now:       time.Now,
	}, nil
}

// Stats aggregates per-channel attempt outcomes over [from, to]. A zero
// window defaults to the last day.
func (s *AnalyticsService) Stats(ctx context.Context, from, to time.Time) (*DeliveryStats, error) {
	if to.IsZero() {
		to = s.now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-defaultStatsWindow)
	}
	if from.After(to) {
		return nil, fmt.Errorf("%w: stats window start is after end", domain.ErrValidation)
	}
	if to.Sub(from) > maxStatsWindow {
		return nil, fmt.Errorf("%w: stats window exceeds %s", domain.ErrValidation, maxStatsWindow)
	}

	counts, err := s.attempts.Stats(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate delivery stats: %w", err)
	}

	byChannel := make(map[domain.Channel]*ChannelStats)
	var order []domain.Channel
	for _, c := range counts {
		stats, ok := byChannel[c.Channel]
		if !ok {
			stats = &ChannelStats{Channel: c.Channel}
			byChannel[c.Channel] = stats
			order = append(order, c.Channel)
		}
		switch c.Outcome {
		case domain.OutcomeSuccess:
			stats.Success += c.Count
		case domain.OutcomeTransientFailure:
			stats.Transient += c.Count
		case domain.OutcomePermanentFailure:
			stats.Permanent += c.Count
		}
	}

	report := &DeliveryStats{From: from, To: to}
	for _, ch := range order {
		stats := *byChannel[ch]
		if total := stats.Success + stats.Transient + stats.Permanent; total > 0 {
			stats.SuccessRate = float64(stats.Success) / float64(total)
		}
		report.Channels = append(report.Channels, stats)
	}

	return report, nil
}

// StartRetention deletes attempts older than the retention period on a
// fixed tick until context cancellation.
func (s *AnalyticsService) StartRetention(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cutoff := s.now().UTC().Add(-s.retention)
			deleted, err := s.attempts.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("attempt retention sweep failed", zap.Error(err))
				continue
			}
			if deleted > 0 {
				s.logger.Info("purged old delivery attempts",
					zap.Int64("deleted", deleted),
					zap.Time("cutoff", cutoff),
				)
			}
		}
	}
}
