package events

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/markjakearzadon/momopay-gobackend/internal/models"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
	closed  bool
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	var results kgo.ProduceResults
	for _, r := range rs {
		f.records = append(f.records, r)
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func (f *fakeProducer) Close() { f.closed = true }

func TestPublishStatusRecord(t *testing.T) {
	fp := &fakeProducer{}
	p := &StatusPublisher{client: fp, topic: "momo-transaction-status", logger: zap.NewNop()}

	ev := models.StatusEvent{
		RequestID:  "req-1",
		Reference:  "TX_1_1",
		Status:     models.StatusSuccessful,
		Source:     models.SourceCallback,
		OccurredAt: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.PublishStatus(context.Background(), ev))

	require.Len(t, fp.records, 1)
	r := fp.records[0]
	assert.Equal(t, "momo-transaction-status", r.Topic)
	assert.Equal(t, "req-1", string(r.Key))
	require.Len(t, r.Headers, 1)
	assert.Equal(t, "callback", string(r.Headers[0].Value))

	var got models.StatusEvent
	require.NoError(t, json.Unmarshal(r.Value, &got))
	assert.Equal(t, ev, got)
}

func TestPublishStatusError(t *testing.T) {
	fp := &fakeProducer{err: stderrors.New("broker unreachable")}
	p := &StatusPublisher{client: fp, topic: "t", logger: zap.NewNop()}

	err := p.PublishStatus(context.Background(), models.StatusEvent{RequestID: "r"})
	assert.EqualError(t, err, "broker unreachable")
}

func TestCloseAndMetricsWithoutHooks(t *testing.T) {
	fp := &fakeProducer{}
	p := &StatusPublisher{client: fp, topic: "t", logger: zap.NewNop()}

	rec := httptest.NewRecorder()
	p.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	p.Close()
	assert.True(t, fp.closed)
}
