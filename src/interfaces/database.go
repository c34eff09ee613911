package interfaces

import (
	"context"
	"io"

	"tw-tick-api/src/models"
)

// -----------------------------------------------------------------------------
// ITickStore defines the contract for the SQL tick store.
// -----------------------------------------------------------------------------

type ITickStore interface {
	IRangeTickSource
	IStockLister
	IPinger

	// -----------------------------------------------------------------------------

	// Initialize opens the connection and creates the schema when missing.
	Initialize() error

	// -----------------------------------------------------------------------------

	// ImportTicks replaces the stored days of every (stock, date) present in records.
	ImportTicks(ctx context.Context, records []*models.MTickRecord) (int, error)

	// -----------------------------------------------------------------------------

	// ImportCSV reads tick rows with a header line and stores them through ImportTicks.
	ImportCSV(ctx context.Context, r io.Reader) (int, error)

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
