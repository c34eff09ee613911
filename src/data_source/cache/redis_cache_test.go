package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"tw-tick-api/src/logger"
	"tw-tick-api/src/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls   int
	records []*models.MTickRecord
	err     error
}

func (s *countingSource) Name() string { return "fake" }

func (s *countingSource) FetchTicks(ctx context.Context, stockID string, date time.Time) ([]*models.MTickRecord, error) {
	s.calls++
	return s.records, s.err
}

func sampleRecords(t *testing.T) []*models.MTickRecord {
	t.Helper()
	var recs []*models.MTickRecord
	require.NoError(t, json.Unmarshal([]byte(`[
		{"code":"2330","display_date":20230426,"display_time":90000000000,"trade_price":515,"vendor":"a"},
		{"code":"2330","display_date":20230426,"display_time":90000100000,"trade_price":516}]`), &recs))
	return recs
}

func day(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func newCached(t *testing.T, inner *countingSource) (*CachedSource, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewCachedSource(inner, redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour, logger.NewNopLogger("cache"))
	c.now = func() time.Time { return time.Date(2023, 5, 10, 3, 0, 0, 0, time.UTC) }
	return c, mr
}

func TestCacheReadThrough(t *testing.T) {
	inner := &countingSource{records: sampleRecords(t)}
	c, mr := newCached(t, inner)
	ctx := context.Background()

	first, err := c.FetchTicks(ctx, "2330", day("2023-04-26"))
	require.NoError(t, err)
	second, err := c.FetchTicks(ctx, "2330", day("2023-04-26"))
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	require.Len(t, second, 2)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.Equal(t, string(a), string(b))

	assert.True(t, mr.Exists("ticks:2330:20230426"))
	assert.Equal(t, time.Hour, mr.TTL("ticks:2330:20230426"))
}

func TestCacheSkipsToday(t *testing.T) {
	inner := &countingSource{records: sampleRecords(t)}
	c, mr := newCached(t, inner)

	for i := 0; i < 2; i++ {
		_, err := c.FetchTicks(context.Background(), "2330", day("2023-05-10"))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, inner.calls)
	assert.False(t, mr.Exists("ticks:2330:20230510"))
}

func TestCacheDoesNotStoreEmptyOrErrors(t *testing.T) {
	inner := &countingSource{}
	c, mr := newCached(t, inner)

	recs, err := c.FetchTicks(context.Background(), "2330", day("2023-04-29"))
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.False(t, mr.Exists("ticks:2330:20230429"))

	inner.err = errors.New("boom")
	_, err = c.FetchTicks(context.Background(), "2330", day("2023-04-28"))
	assert.Error(t, err)
}

func TestCacheBypassesRedisOutage(t *testing.T) {
	inner := &countingSource{records: sampleRecords(t)}
	c, mr := newCached(t, inner)
	mr.Close()

	recs, err := c.FetchTicks(context.Background(), "2330", day("2023-04-26"))
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}
