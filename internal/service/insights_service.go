package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pipemetric/insights-api/internal/domain"
	"github.com/pipemetric/insights-api/internal/pipeline"
	"github.com/pipemetric/insights-api/internal/report"
	"github.com/pipemetric/insights-api/internal/repository"
)

// DealSource pulls raw records from an external system (the warehouse
// client implements it).
type DealSource interface {
	FetchDeals(ctx context.Context) ([]domain.RawRecord, error)
	IsEnabled() bool
}

// Snapshot is one fully materialized refresh result. A refresh replaces
// the snapshot wholesale; nothing is merged incrementally.
type Snapshot struct {
	Deals       []domain.Deal
	Source      domain.RefreshSource
	RefreshedAt time.Time
}

// InsightsService orchestrates ingest, normalization and reporting, and
// holds the latest snapshot for the read endpoints.
type InsightsService struct {
	pipeline    *pipeline.Pipeline
	aggregator  *report.Aggregator
	source      DealSource
	refreshRepo *repository.RefreshRepository
	logger      *zap.Logger
	now         func() time.Time

	mu       sync.RWMutex
	snapshot *Snapshot
}

// InsightsServiceOption customizes the service.
type InsightsServiceOption func(*InsightsService)

// WithClock injects the refresh timestamp source.
func WithClock(now func() time.Time) InsightsServiceOption {
	return func(s *InsightsService) { s.now = now }
}

// NewInsightsService wires the service. source may be nil when no
// warehouse is configured, refreshRepo may be nil when history persistence
// is disabled.
func NewInsightsService(
	p *pipeline.Pipeline,
	aggregator *report.Aggregator,
	source DealSource,
	refreshRepo *repository.RefreshRepository,
	logger *zap.Logger,
	opts ...InsightsServiceOption,
) *InsightsService {
	s := &InsightsService{
		pipeline:    p,
		aggregator:  aggregator,
		source:      source,
		refreshRepo: refreshRepo,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh runs the pipeline over one raw batch and installs the result as
// the current snapshot. Each call builds an entirely new dataset; the old
// snapshot stays readable until the swap.
func (s *InsightsService) Refresh(ctx context.Context, records []domain.RawRecord, source domain.RefreshSource) (*domain.RefreshRecord, error) {
	startedAt := s.now()

	deals, err := s.pipeline.Run(records)
	if err != nil {
		s.recordHistory(ctx, source, len(records), nil, startedAt, err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	snapshot := &Snapshot{
		Deals:       deals,
		Source:      source,
		RefreshedAt: startedAt,
	}

	s.mu.Lock()
	s.snapshot = snapshot
	s.mu.Unlock()

	record := s.recordHistory(ctx, source, len(records), deals, startedAt, nil)

	s.logger.Info("Dataset refreshed",
		zap.String("source", string(source)),
		zap.Int("raw_records", len(records)),
		zap.Int("deals", len(deals)),
	)
	return record, nil
}

// RefreshFromWarehouse pulls the configured deal query and refreshes.
func (s *InsightsService) RefreshFromWarehouse(ctx context.Context) (*domain.RefreshRecord, error) {
	if s.source == nil || !s.source.IsEnabled() {
		return nil, ErrWarehouseDisabled
	}

	records, err := s.source.FetchDeals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch warehouse deals: %w", err)
	}
	return s.Refresh(ctx, records, domain.RefreshSourceWarehouse)
}

// recordHistory persists one refresh run. Persistence is best effort: a
// history write failure is logged, never surfaced to the caller.
func (s *InsightsService) recordHistory(ctx context.Context, source domain.RefreshSource, rawCount int, deals []domain.Deal, startedAt time.Time, runErr error) *domain.RefreshRecord {
	completedAt := s.now()
	record := &domain.RefreshRecord{
		ID:          uuid.New(),
		Source:      source,
		RawCount:    rawCount,
		DealCount:   len(deals),
		DurationMs:  completedAt.Sub(startedAt).Milliseconds(),
		StartedAt:   startedAt,
		CompletedAt: completedAt,
	}
	if runErr != nil {
		record.Error = runErr.Error()
	}

	classifier := s.pipeline.Classifier()
	for i := range deals {
		switch classifier.Classify(deals[i].Stage) {
		case domain.StageClassWon:
			record.WonCount++
		case domain.StageClassLost:
			record.LostCount++
		default:
			record.OpenCount++
		}
	}

	if s.refreshRepo != nil {
		if err := s.refreshRepo.Create(ctx, record); err != nil {
			s.logger.Warn("Failed to persist refresh history",
				zap.Error(err),
				zap.String("source", string(source)),
			)
		}
	}
	return record
}

// currentSnapshot returns the latest snapshot or ErrNoData.
func (s *InsightsService) currentSnapshot() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return nil, ErrNoData
	}
	return s.snapshot, nil
}

// Deals returns the canonical dataset of the latest refresh.
func (s *InsightsService) Deals() ([]domain.Deal, error) {
	snap, err := s.currentSnapshot()
	if err != nil {
		return nil, err
	}
	return snap.Deals, nil
}

// Summary returns the KPI headline plus funnel for the latest refresh.
func (s *InsightsService) Summary() (*domain.SummaryReportDTO, error) {
	snap, err := s.currentSnapshot()
	if err != nil {
		return nil, err
	}
	return &domain.SummaryReportDTO{
		KPIs:        s.aggregator.KPIs(snap.Deals),
		Funnel:      s.aggregator.Funnel(snap.Deals),
		RefreshedAt: snap.RefreshedAt.UTC().Format("2006-01-02T15:04:05Z"),
		DealCount:   len(snap.Deals),
	}, nil
}

// Funnel returns the milestone funnel for the latest refresh.
func (s *InsightsService) Funnel() ([]domain.FunnelStep, error) {
	snap, err := s.currentSnapshot()
	if err != nil {
		return nil, err
	}
	return s.aggregator.Funnel(snap.Deals), nil
}

// Transitions returns the stage-transition duration series.
func (s *InsightsService) Transitions() ([]domain.TransitionDuration, error) {
	snap, err := s.currentSnapshot()
	if err != nil {
		return nil, err
	}
	return s.aggregator.Transitions(snap.Deals), nil
}

// AELeaderboard returns the account-executive leaderboard.
func (s *InsightsService) AELeaderboard() ([]domain.AELeaderboardRow, error) {
	snap, err := s.currentSnapshot()
	if err != nil {
		return nil, err
	}
	return s.aggregator.AELeaderboard(snap.Deals), nil
}

// BDRLeaderboard returns the development-rep leaderboard.
func (s *InsightsService) BDRLeaderboard() ([]domain.BDRLeaderboardRow, error) {
	snap, err := s.currentSnapshot()
	if err != nil {
		return nil, err
	}
	return s.aggregator.BDRLeaderboard(snap.Deals), nil
}

// StaleDeals returns the stale-deal report.
func (s *InsightsService) StaleDeals() (*domain.StaleDealReport, error) {
	snap, err := s.currentSnapshot()
	if err != nil {
		return nil, err
	}
	rep := s.aggregator.StaleDeals(snap.Deals)
	return &rep, nil
}

// ClosingSoon returns open deals closing within the configured window.
func (s *InsightsService) ClosingSoon() ([]domain.ClosingDeal, error) {
	snap, err := s.currentSnapshot()
	if err != nil {
		return nil, err
	}
	return s.aggregator.ClosingSoon(snap.Deals), nil
}

// TopOpenDeals returns the largest open deals.
func (s *InsightsService) TopOpenDeals() ([]domain.Deal, error) {
	snap, err := s.currentSnapshot()
	if err != nil {
		return nil, err
	}
	return s.aggregator.TopOpenDeals(snap.Deals), nil
}

// ContractSent returns open deals awaiting a decision after contract send.
func (s *InsightsService) ContractSent() ([]domain.SentDeal, error) {
	snap, err := s.currentSnapshot()
	if err != nil {
		return nil, err
	}
	return s.aggregator.ContractSent(snap.Deals), nil
}

// History lists persisted refresh runs, newest first.
func (s *InsightsService) History(ctx context.Context, limit int) ([]domain.RefreshRecord, error) {
	if s.refreshRepo == nil {
		return []domain.RefreshRecord{}, nil
	}
	records, err := s.refreshRepo.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list refresh history: %w", err)
	}
	return records, nil
}

// LatestRefresh returns the most recent persisted refresh run.
func (s *InsightsService) LatestRefresh(ctx context.Context) (*domain.RefreshRecord, error) {
	if s.refreshRepo == nil {
		return nil, ErrNoData
	}
	record, err := s.refreshRepo.Latest(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoData
		}
		return nil, fmt.Errorf("failed to load latest refresh: %w", err)
	}
	return record, nil
}

// Classifier exposes stage classification for the transport layer.
func (s *InsightsService) Classifier() domain.StageClassifier {
	return s.pipeline.Classifier()
}
