package services

import (
	// Go Internal Packages
	"context"
	"time"

	// Local Packages
	"github.com/markjakearzadon/momopay-gobackend/internal/config"

	// External Packages
	"go.uber.org/zap"
)

// Reconciler polls transactions that stayed PENDING longer than MinAge, for
// payments whose callback never arrived and whose client stopped polling.
type Reconciler struct {
	service  *PaymentService
	store    TransactionStore
	interval time.Duration
	minAge   time.Duration
	batch    int
	logger   *zap.Logger
	now      func() time.Time
}

func NewReconciler(service *PaymentService, store TransactionStore, cfg config.Reconciler, logger *zap.Logger) *Reconciler {
	batch := cfg.BatchSize
	if batch < 1 {
		batch = 50
	}
	return &Reconciler{
		service:  service,
		store:    store,
		interval: cfg.Interval,
		minAge:   cfg.MinAge,
		batch:    batch,
		logger:   logger,
		now:      time.Now,
	}
}

// Run reconciles every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started", zap.Duration("interval", r.interval), zap.Duration("min_age", r.minAge))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce polls one batch and reports how many transactions settled.
func (r *Reconciler) RunOnce(ctx context.Context) int {
	pending, err := r.store.ListPending(ctx, r.now().Add(-r.minAge), r.batch)
	if err != nil {
		r.logger.Error("failed to list pending transactions", zap.Error(err))
		return 0
	}

	settled := 0
	for _, tx := range pending {
		if ctx.Err() != nil {
			break
		}
		updated, err := r.service.GetStatus(ctx, tx.RequestID)
		if err != nil {
			r.logger.Warn("reconcile failed", zap.String("request_id", tx.RequestID), zap.Error(err))
			continue
		}
		if updated.IsTerminal() {
			settled++
		}
	}

	if len(pending) > 0 {
		r.logger.Info("reconciled pending transactions", zap.Int("checked", len(pending)), zap.Int("settled", settled))
	}
	return settled
}
