package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markjakearzadon/momopay-gobackend/internal/config"
	"github.com/markjakearzadon/momopay-gobackend/internal/models"
)

func newTestReconciler(f *paymentFixture, batch int) *Reconciler {
	r := NewReconciler(f.svc, f.store, config.Reconciler{
		Enabled:   true,
		Interval:  10 * time.Millisecond,
		MinAge:    2 * time.Minute,
		BatchSize: batch,
	}, zap.NewNop())
	r.now = func() time.Time { return time.Now().Add(time.Hour) }
	return r
}

func TestReconcilerSettlesStalePending(t *testing.T) {
	f := newPaymentFixture(t)
	ok := f.initiate(t)
	failed := f.initiate(t)
	still := f.initiate(t)
	f.fake.SetStatus(ok.RequestID, models.StatusSuccessful, "")
	f.fake.SetStatus(failed.RequestID, models.StatusFailed, "PAYER_LIMIT_REACHED")

	settled := newTestReconciler(f, 10).RunOnce(context.Background())
	assert.Equal(t, 2, settled)

	ctx := context.Background()
	tx, err := f.store.Get(ctx, ok.RequestID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccessful, tx.Status)

	tx, err = f.store.Get(ctx, failed.RequestID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, tx.Status)
	assert.Equal(t, "PAYER_LIMIT_REACHED", tx.Reason)

	tx, err = f.store.Get(ctx, still.RequestID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, tx.Status)

	for _, ev := range f.publisher.Events() {
		assert.Equal(t, models.SourcePoll, ev.Source)
	}
}

func TestReconcilerSkipsFreshTransactions(t *testing.T) {
	f := newPaymentFixture(t)
	res := f.initiate(t)
	f.fake.SetStatus(res.RequestID, models.StatusSuccessful, "")

	r := newTestReconciler(f, 10)
	r.now = time.Now
	assert.Equal(t, 0, r.RunOnce(context.Background()))
	assert.Equal(t, 0, f.fake.StatusCalls())
}

func TestReconcilerRespectsBatchSize(t *testing.T) {
	f := newPaymentFixture(t)
	for i := 0; i < 3; i++ {
		f.initiate(t)
	}

	newTestReconciler(f, 2).RunOnce(context.Background())
	assert.Equal(t, 2, f.fake.StatusCalls())
}

func TestReconcilerContinuesPastErrors(t *testing.T) {
	f := newPaymentFixture(t)
	f.initiate(t)
	f.initiate(t)
	f.fake.FailStatus(http.StatusServiceUnavailable)

	assert.Equal(t, 0, newTestReconciler(f, 10).RunOnce(context.Background()))
	assert.Equal(t, 2, f.fake.StatusCalls())
}

func TestReconcilerRunStopsOnCancel(t *testing.T) {
	f := newPaymentFixture(t)
	res := f.initiate(t)
	f.fake.SetStatus(res.RequestID, models.StatusSuccessful, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		newTestReconciler(f, 10).Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		tx, err := f.store.Get(context.Background(), res.RequestID)
		return err == nil && tx.Status == models.StatusSuccessful
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler did not stop")
	}
}
