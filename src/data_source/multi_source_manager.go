package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tw-tick-api/src/helpers"
	"tw-tick-api/src/interfaces"
	"tw-tick-api/src/logger"
	"tw-tick-api/src/models"
	"tw-tick-api/src/utils"
)

// Compile-time checks
var (
	_ interfaces.IRangeTickSource = (*MultiSourceManager)(nil)
	_ interfaces.IStockLister     = (*MultiSourceManager)(nil)
	_ interfaces.IPinger          = (*MultiSourceManager)(nil)
)

// MultiSourceManager chains tick sources in priority order. A source that is
// unavailable hands the request to the next one; any other answer, including
// an empty result or NotFound, is final.
type MultiSourceManager struct {
	Sources  []interfaces.ITickSource
	Calendar *utils.TradingCalendar
	Logger   *logger.Logger
	mu       sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMultiSourceManager(sources []interfaces.ITickSource, cal *utils.TradingCalendar, log *logger.Logger) *MultiSourceManager {
	return &MultiSourceManager{
		Sources:  sources,
		Calendar: cal,
		Logger:   log,
	}
}

// -----------------------------------------------------------------------------

// AddSource appends a source at the lowest priority
func (m *MultiSourceManager) AddSource(source interfaces.ITickSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.Sources {
		if s.Name() == source.Name() {
			return fmt.Errorf("source %s already exists", source.Name())
		}
	}
	m.Sources = append(m.Sources, source)
	m.Logger.Info("Added source: %s", source.Name())
	return nil
}

// -----------------------------------------------------------------------------

// GetAllSources returns a snapshot in priority order
func (m *MultiSourceManager) GetAllSources() []interfaces.ITickSource {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]interfaces.ITickSource, len(m.Sources))
	copy(list, m.Sources)
	return list
}

// -----------------------------------------------------------------------------

func (m *MultiSourceManager) SourceNames() []string {
	sources := m.GetAllSources()
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name()
	}
	return names
}

// -----------------------------------------------------------------------------

// Name returns "MultiSourceManager"
func (m *MultiSourceManager) Name() string {
	return "MultiSourceManager"
}

// -----------------------------------------------------------------------------

// firstAvailable runs fn against each source until one is not unavailable.
func (m *MultiSourceManager) firstAvailable(op string, fn func(interfaces.ITickSource) error) error {
	sources := m.GetAllSources()
	if len(sources) == 0 {
		return helpers.NewDataSourceError("no tick source configured", nil)
	}

	var lastErr error
	for _, src := range sources {
		err := fn(src)
		if err == nil || !helpers.IsDataSourceUnavailable(err) {
			return err
		}
		m.Logger.Warning("%s via %s unavailable, trying next source: %v", op, src.Name(), err)
		lastErr = err
	}
	return lastErr
}

// -----------------------------------------------------------------------------

func (m *MultiSourceManager) FetchTicks(ctx context.Context, stockID string, date time.Time) ([]*models.MTickRecord, error) {
	var out []*models.MTickRecord
	err := m.firstAvailable("fetch ticks", func(src interfaces.ITickSource) error {
		recs, err := src.FetchTicks(ctx, stockID, date)
		out = recs
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// -----------------------------------------------------------------------------

func (m *MultiSourceManager) FetchTickRange(ctx context.Context, stockID string, start, end time.Time) ([]*models.MTickRecord, error) {
	var out []*models.MTickRecord
	err := m.firstAvailable("fetch tick range", func(src interfaces.ITickSource) error {
		recs, err := FetchRange(ctx, src, m.Calendar, stockID, start, end)
		out = recs
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// -----------------------------------------------------------------------------

func (m *MultiSourceManager) ListStocks(ctx context.Context, date time.Time) ([]string, error) {
	var out []string
	err := m.firstAvailable("list stocks", func(src interfaces.ITickSource) error {
		lister, ok := src.(interfaces.IStockLister)
		if !ok {
			return helpers.NewDataSourceError(fmt.Sprintf("source %s cannot list stocks", src.Name()), nil)
		}
		codes, err := lister.ListStocks(ctx, date)
		out = codes
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// -----------------------------------------------------------------------------

// Ping succeeds when any source answers.
func (m *MultiSourceManager) Ping(ctx context.Context) error {
	return m.firstAvailable("ping", func(src interfaces.ITickSource) error {
		return PingSource(ctx, src)
	})
}

// -----------------------------------------------------------------------------

// PingSource probes src; sources without a probe count as healthy.
func PingSource(ctx context.Context, src interfaces.ITickSource) error {
	pinger, ok := src.(interfaces.IPinger)
	if !ok {
		return nil
	}
	if err := pinger.Ping(ctx); err != nil {
		if helpers.IsDataSourceUnavailable(err) {
			return err
		}
		return helpers.NewDataSourceError(fmt.Sprintf("source %s ping failed", src.Name()), err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// FetchRange uses the source's ranged query when it has one, otherwise it asks
// day by day over trading days. Results are ordered by date, then sequence.
func FetchRange(ctx context.Context, src interfaces.ITickSource, cal *utils.TradingCalendar, stockID string, start, end time.Time) ([]*models.MTickRecord, error) {
	if ranged, ok := src.(interfaces.IRangeTickSource); ok {
		return ranged.FetchTickRange(ctx, stockID, start, end)
	}

	if cal == nil {
		cal = utils.GetCalendar()
	}

	var out []*models.MTickRecord
	for _, day := range cal.TradingDays(start, end) {
		if err := ctx.Err(); err != nil {
			return nil, helpers.NewDataSourceError("range fetch cancelled", err)
		}
		recs, err := src.FetchTicks(ctx, stockID, day)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}
