package interfaces

import (
	"context"
	"time"

	"tw-tick-api/src/models"
)

// -----------------------------------------------------------------------------
// ITickSource yields raw tick records for one stock and one trading day.
// -----------------------------------------------------------------------------

type ITickSource interface {

	// Name returns the unique identifier of the source
	Name() string

	// -----------------------------------------------------------------------------

	// FetchTicks returns the day's records in exchange sequence order.
	// A day without records is an empty slice, not an error.
	FetchTicks(ctx context.Context, stockID string, date time.Time) ([]*models.MTickRecord, error)
}

// -----------------------------------------------------------------------------
// IRangeTickSource is implemented by sources that answer a date range in one call.
// -----------------------------------------------------------------------------

type IRangeTickSource interface {
	ITickSource

	// FetchTickRange returns records ordered by date, then exchange sequence. Bounds are inclusive.
	FetchTickRange(ctx context.Context, stockID string, start, end time.Time) ([]*models.MTickRecord, error)
}

// -----------------------------------------------------------------------------
// IStockLister is implemented by sources that can enumerate traded stocks.
// -----------------------------------------------------------------------------

type IStockLister interface {
	ListStocks(ctx context.Context, date time.Time) ([]string, error)
}

// -----------------------------------------------------------------------------
// IPinger is implemented by sources with a cheap liveness probe.
// -----------------------------------------------------------------------------

type IPinger interface {
	Ping(ctx context.Context) error
}
