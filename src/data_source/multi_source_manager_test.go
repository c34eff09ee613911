package datasource

import (
	"context"
	"errors"
	"testing"
	"time"

	"tw-tick-api/src/helpers"
	"tw-tick-api/src/interfaces"
	"tw-tick-api/src/logger"
	"tw-tick-api/src/models"
	"tw-tick-api/src/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name  string
	err   error
	days  []time.Time
	codes []string
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchTicks(ctx context.Context, stockID string, date time.Time) ([]*models.MTickRecord, error) {
	f.days = append(f.days, date)
	if f.err != nil {
		return nil, f.err
	}
	rec, err := models.NewTickRecord(models.MFields{
		{Key: models.FieldCode, Value: []byte(`"` + stockID + `"`)},
		{Key: models.FieldDisplayDate, Value: []byte(date.Format("20060102"))},
		{Key: models.FieldDisplayTime, Value: []byte("90000000000")},
	})
	if err != nil {
		return nil, err
	}
	return []*models.MTickRecord{rec}, nil
}

func (f *fakeSource) ListStocks(ctx context.Context, date time.Time) ([]string, error) {
	return f.codes, f.err
}

func (f *fakeSource) Ping(ctx context.Context) error { return f.err }

func weekdays() *utils.TradingCalendar {
	return &utils.TradingCalendar{Fallback: true, Timezone: utils.TaipeiLocation}
}

func newManager(sources ...interfaces.ITickSource) *MultiSourceManager {
	return NewMultiSourceManager(sources, weekdays(), logger.NewNopLogger("sources"))
}

func day(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func TestFallsThroughUnavailableSource(t *testing.T) {
	down := &fakeSource{name: "down", err: helpers.NewDataSourceError("backend unreachable", nil)}
	up := &fakeSource{name: "up"}
	m := newManager(down, up)

	recs, err := m.FetchTicks(context.Background(), "2330", day("2023-04-26"))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Len(t, down.days, 1)
	assert.Len(t, up.days, 1)
	assert.NoError(t, m.Ping(context.Background()))
}

func TestStopsOnNotFound(t *testing.T) {
	first := &fakeSource{name: "first", err: helpers.NewNotFoundError("unknown stock", nil)}
	second := &fakeSource{name: "second"}
	m := newManager(first, second)

	_, err := m.FetchTicks(context.Background(), "9999", day("2023-04-26"))
	var nf *helpers.NotFoundError
	assert.True(t, errors.As(err, &nf))
	assert.Empty(t, second.days)
}

func TestAllSourcesUnavailable(t *testing.T) {
	m := newManager(
		&fakeSource{name: "a", err: helpers.NewDataSourceError("a down", nil)},
		&fakeSource{name: "b", err: helpers.NewDataSourceError("b down", nil)},
	)
	_, err := m.FetchTicks(context.Background(), "2330", day("2023-04-26"))
	require.Error(t, err)
	assert.True(t, helpers.IsDataSourceUnavailable(err))
	assert.Contains(t, err.Error(), "b down")

	_, err = newManager().FetchTicks(context.Background(), "2330", day("2023-04-26"))
	assert.True(t, helpers.IsDataSourceUnavailable(err))
}

func TestRangeWalksTradingDays(t *testing.T) {
	src := &fakeSource{name: "daily"}
	m := newManager(src)

	// Friday to Tuesday: the weekend is skipped
	recs, err := m.FetchTickRange(context.Background(), "2330", day("2023-04-28"), day("2023-05-02"))
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []int{20230428, 20230501, 20230502}, []int{recs[0].Date, recs[1].Date, recs[2].Date})
}

func TestListStocks(t *testing.T) {
	m := newManager(&fakeSource{name: "db", codes: []string{"0050", "2330"}})
	codes, err := m.ListStocks(context.Background(), day("2023-04-26"))
	require.NoError(t, err)
	assert.Equal(t, []string{"0050", "2330"}, codes)
}

func TestAddSourceRejectsDuplicates(t *testing.T) {
	m := newManager(&fakeSource{name: "a"})
	assert.Error(t, m.AddSource(&fakeSource{name: "a"}))
	require.NoError(t, m.AddSource(&fakeSource{name: "b"}))
	assert.Equal(t, []string{"a", "b"}, m.SourceNames())
}
