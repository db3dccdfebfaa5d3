package jobs

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pipemetric/insights-api/internal/domain"
	"github.com/pipemetric/insights-api/internal/service"
)

// WarehouseRefreshJobName is the name of the scheduled warehouse refresh job
const WarehouseRefreshJobName = "warehouse_refresh"

// DefaultRefreshTimeout bounds how long a scheduled refresh may run
const DefaultRefreshTimeout = 5 * time.Minute

// WarehouseRefresher defines the interface for pulling a fresh snapshot from
// the warehouse. It lets the job call the service without importing its
// concrete wiring.
type WarehouseRefresher interface {
	RefreshFromWarehouse(ctx context.Context) (*domain.RefreshRecord, error)
}

// WarehouseRefreshJob periodically rebuilds the snapshot from the warehouse.
type WarehouseRefreshJob struct {
	refresher WarehouseRefresher
	logger    *zap.Logger
	timeout   time.Duration
}

// NewWarehouseRefreshJob creates a new warehouse refresh job.
// The timeout controls how long a single refresh is allowed to run.
func NewWarehouseRefreshJob(refresher WarehouseRefresher, logger *zap.Logger, timeout time.Duration) *WarehouseRefreshJob {
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	return &WarehouseRefreshJob{
		refresher: refresher,
		logger:    logger,
		timeout:   timeout,
	}
}

// Run executes the warehouse refresh.
// This is called by the scheduler according to the cron expression.
func (j *WarehouseRefreshJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	j.logger.Info("starting warehouse refresh job")

	record, err := j.refresher.RefreshFromWarehouse(ctx)
	if err != nil {
		if errors.Is(err, service.ErrWarehouseDisabled) {
			j.logger.Warn("warehouse refresh skipped: warehouse integration disabled")
			return
		}
		j.logger.Error("warehouse refresh job failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return
	}

	j.logger.Info("warehouse refresh job completed",
		zap.String("refresh_id", record.ID.String()),
		zap.Int("raw_count", record.RawCount),
		zap.Int("deal_count", record.DealCount),
		zap.Duration("duration", time.Since(start)))
}
