package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"tw-tick-api/src/format"
	"tw-tick-api/src/helpers"
	"tw-tick-api/src/logger"
	"tw-tick-api/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errClosed = errors.New("connection closed")

// recordingSender keeps every message as decoded JSON and can fail after a
// given number of sends.
type recordingSender struct {
	mu       sync.Mutex
	messages []map[string]interface{}
	failAt   int
}

func (r *recordingSender) SendJSON(v interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failAt > 0 && len(r.messages) >= r.failAt {
		return errClosed
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	r.messages = append(r.messages, m)
	return nil
}

func (r *recordingSender) all() []map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]interface{}(nil), r.messages...)
}

type staticFetcher struct {
	records []*models.MTickRecord
	err     error
	block   bool
}

func (f *staticFetcher) FetchForStream(ctx context.Context, stockID string, date time.Time) ([]*models.MTickRecord, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.records, f.err
}

func ticks(t *testing.T, n int) []*models.MTickRecord {
	t.Helper()
	out := make([]*models.MTickRecord, n)
	for i := range out {
		rec, err := models.NewTickRecord(models.MFields{
			{Key: models.FieldCode, Value: json.RawMessage(`"2330"`)},
			{Key: models.FieldDisplayDate, Value: json.RawMessage(`20230426`)},
			{Key: models.FieldDisplayTime, Value: json.RawMessage(`90000123000`)},
			{Key: models.FieldTradePrice, Value: json.RawMessage(`123.45`)},
		})
		require.NoError(t, err)
		out[i] = rec
	}
	return out
}

type releaseCounter struct {
	mu sync.Mutex
	n  int
}

func (c *releaseCounter) release() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *releaseCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func newSession(sender *recordingSender, fetcher Fetcher, rel *releaseCounter, interval time.Duration) *Session {
	day, _ := time.Parse("2006-01-02", "2023-04-26")
	return NewSession("2330", day, sender, fetcher, format.NewRecordTransformer(format.PrecisionMicrosecond), rel.release,
		Options{Interval: interval, FetchTimeout: time.Second, ConvertFormats: true}, logger.NewNopLogger("stream"))
}

func TestSessionEmitsInfoRecordsCompleted(t *testing.T) {
	sender := &recordingSender{}
	rel := &releaseCounter{}
	s := newSession(sender, &staticFetcher{records: ticks(t, 5)}, rel, time.Millisecond)

	assert.Equal(t, StateCompleted, s.Run(context.Background()))
	assert.Equal(t, 1, rel.count())

	msgs := sender.all()
	require.Len(t, msgs, 7)
	assert.Equal(t, "info", msgs[0]["type"])
	assert.Equal(t, float64(5), msgs[0]["total_records"])

	lastProgress := 0.0
	for i, m := range msgs[1:6] {
		meta := m["_meta"].(map[string]interface{})
		assert.Equal(t, float64(i+1), meta["record_number"])
		assert.Equal(t, float64(5), meta["total_records"])
		progress := meta["progress"].(float64)
		assert.GreaterOrEqual(t, progress, lastProgress)
		lastProgress = progress

		assert.Equal(t, "2023-04-26", m[models.FieldDisplayDate])
		assert.Equal(t, "09:00:00.123000", m[models.FieldDisplayTime])
		assert.Equal(t, 123.5, m[models.FieldTradePrice])
	}
	assert.Equal(t, 1.0, lastProgress)

	done := msgs[6]
	assert.Equal(t, "completed", done["type"])
	stats := done["stats"].(map[string]interface{})
	assert.Equal(t, float64(5), stats["total_records"])
	assert.Greater(t, stats["elapsed_seconds"].(float64), 0.0)
}

func TestSessionWithNoRecords(t *testing.T) {
	sender := &recordingSender{}
	rel := &releaseCounter{}
	s := newSession(sender, &staticFetcher{}, rel, time.Millisecond)

	assert.Equal(t, StateCompleted, s.Run(context.Background()))
	msgs := sender.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, float64(0), msgs[0]["total_records"])
	stats := msgs[1]["stats"].(map[string]interface{})
	assert.Equal(t, float64(0), stats["records_per_second"])
	assert.Equal(t, 1, rel.count())
}

func TestSessionFetchErrorSendsErrorMessage(t *testing.T) {
	sender := &recordingSender{}
	rel := &releaseCounter{}
	s := newSession(sender, &staticFetcher{err: helpers.NewDataSourceError("tick backend unreachable", nil)}, rel, 0)

	assert.Equal(t, StateErrored, s.Run(context.Background()))
	msgs := sender.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "tick backend unreachable", msgs[0]["error"])
	assert.Equal(t, 1, rel.count())
}

func TestSessionFetchTimeout(t *testing.T) {
	sender := &recordingSender{}
	rel := &releaseCounter{}
	s := newSession(sender, &staticFetcher{block: true}, rel, 0)
	s.opts.FetchTimeout = 20 * time.Millisecond

	assert.Equal(t, StateErrored, s.Run(context.Background()))
	msgs := sender.all()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0]["error"], "did not answer")
}

func TestSessionAbortsOnSendFailure(t *testing.T) {
	sender := &recordingSender{failAt: 3}
	rel := &releaseCounter{}
	s := newSession(sender, &staticFetcher{records: ticks(t, 10)}, rel, 0)

	assert.Equal(t, StateAborted, s.Run(context.Background()))
	assert.Len(t, sender.all(), 3)
	assert.Equal(t, 1, rel.count())
}

func TestSessionAbortsOnCancel(t *testing.T) {
	sender := &recordingSender{}
	rel := &releaseCounter{}
	s := newSession(sender, &staticFetcher{records: ticks(t, 1000)}, rel, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	assert.Equal(t, StateAborted, s.Run(ctx))
	assert.Equal(t, 1, rel.count())
	msgs := sender.all()
	assert.Less(t, len(msgs), 10)
	for _, m := range msgs {
		assert.NotContains(t, m, "error")
	}
}

func TestHeartbeatEmitter(t *testing.T) {
	sender := &recordingSender{}
	h := NewHeartbeatEmitter(10*time.Millisecond, sender, logger.NewNopLogger("heartbeat"))

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	require.NoError(t, h.Run(ctx))

	msgs := sender.all()
	require.GreaterOrEqual(t, len(msgs), 3)
	for _, m := range msgs {
		assert.Equal(t, "heartbeat", m["type"])
		_, err := time.Parse(time.RFC3339Nano, m["timestamp"].(string))
		assert.NoError(t, err)
	}

	broken := NewHeartbeatEmitter(time.Millisecond, &recordingSender{failAt: 2}, logger.NewNopLogger("heartbeat"))
	assert.ErrorIs(t, broken.Run(context.Background()), errClosed)
}
