package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tw-tick-api/src/format"
	"tw-tick-api/src/helpers"
	"tw-tick-api/src/logger"
	"tw-tick-api/src/models"

	"github.com/shopspring/decimal"
)

// bookColumns are the typed columns after code/date/time/seq, in row order.
var bookColumns = func() []string {
	cols := []string{models.FieldTradePrice, models.FieldTradeVolume}
	for i := 0; i < 5; i++ {
		cols = append(cols, models.BidPriceFields[i], models.BidVolumeFields[i])
	}
	for i := 0; i < 5; i++ {
		cols = append(cols, models.AskPriceFields[i], models.AskVolumeFields[i])
	}
	return cols
}()

// dialect hides placeholder syntax and table naming.
type dialect interface {
	placeholder(n int) string
	table() string
	bigint() string
}

// -----------------------------------------------------------------------------

// tickStore is the database/sql implementation shared by SQLite and Postgres.
type tickStore struct {
	name    string
	db      *sql.DB
	dialect dialect
	Logger  *logger.Logger
}

// -----------------------------------------------------------------------------

func (s *tickStore) Name() string {
	return s.name
}

// -----------------------------------------------------------------------------

// bind rewrites ? placeholders for the dialect.
func (s *tickStore) bind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(s.dialect.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// -----------------------------------------------------------------------------

func (s *tickStore) createSchema() error {
	cols := make([]string, 0, len(bookColumns))
	for _, c := range bookColumns {
		cols = append(cols, c+" TEXT")
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			code TEXT NOT NULL,
			display_date INTEGER NOT NULL,
			display_time %s NOT NULL,
			seq INTEGER NOT NULL,
			%s,
			extra TEXT,
			PRIMARY KEY (code, display_date, seq)
		);
	`, s.dialect.table(), s.dialect.bigint(), strings.Join(cols, ",\n\t\t\t"))
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create ticks table: %w", err)
	}

	index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS ticks_date_idx ON %s (display_date, code)", s.dialect.table())
	if _, err := s.db.Exec(index); err != nil {
		return fmt.Errorf("failed to create ticks index: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *tickStore) selectColumns() string {
	return "code, display_date, display_time, " + strings.Join(bookColumns, ", ") + ", extra"
}

// -----------------------------------------------------------------------------

func (s *tickStore) FetchTicks(ctx context.Context, stockID string, date time.Time) ([]*models.MTickRecord, error) {
	return s.FetchTickRange(ctx, stockID, date, date)
}

// -----------------------------------------------------------------------------

func (s *tickStore) FetchTickRange(ctx context.Context, stockID string, start, end time.Time) ([]*models.MTickRecord, error) {
	query := s.bind(fmt.Sprintf(
		"SELECT %s FROM %s WHERE code = ? AND display_date BETWEEN ? AND ? ORDER BY display_date, seq",
		s.selectColumns(), s.dialect.table()))

	rows, err := s.db.QueryContext(ctx, query, stockID, format.DateKey(start), format.DateKey(end))
	if err != nil {
		return nil, helpers.NewDataSourceError(fmt.Sprintf("%s query failed", s.name), err)
	}
	defer rows.Close()

	var records []*models.MTickRecord
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, helpers.NewDataSourceError(fmt.Sprintf("%s returned a bad row", s.name), err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, helpers.NewDataSourceError(fmt.Sprintf("%s query failed", s.name), err)
	}

	if len(records) == 0 {
		known, err := s.hasStock(ctx, stockID)
		if err != nil {
			return nil, err
		}
		if !known {
			return nil, helpers.NewNotFoundError(fmt.Sprintf("unknown stock id %s", stockID), nil)
		}
	}
	return records, nil
}

// -----------------------------------------------------------------------------

func (s *tickStore) hasStock(ctx context.Context, stockID string) (bool, error) {
	query := s.bind(fmt.Sprintf("SELECT 1 FROM %s WHERE code = ? LIMIT 1", s.dialect.table()))
	var one int
	err := s.db.QueryRowContext(ctx, query, stockID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, helpers.NewDataSourceError(fmt.Sprintf("%s query failed", s.name), err)
	}
	return true, nil
}

// -----------------------------------------------------------------------------

func (s *tickStore) scanRecord(rows *sql.Rows) (*models.MTickRecord, error) {
	var (
		code       string
		date       int64
		clock      int64
		book       = make([]sql.NullString, len(bookColumns))
		extra      sql.NullString
		scanTarget = []interface{}{&code, &date, &clock}
	)
	for i := range book {
		scanTarget = append(scanTarget, &book[i])
	}
	scanTarget = append(scanTarget, &extra)

	if err := rows.Scan(scanTarget...); err != nil {
		return nil, err
	}

	fields := models.MFields{
		{Key: models.FieldCode, Value: mustJSON(code)},
		{Key: models.FieldDisplayDate, Value: json.RawMessage(strconv.FormatInt(date, 10))},
		{Key: models.FieldDisplayTime, Value: json.RawMessage(strconv.FormatInt(clock, 10))},
	}
	for i, col := range bookColumns {
		value := json.RawMessage("null")
		if book[i].Valid {
			value = json.RawMessage(book[i].String)
		}
		fields = append(fields, models.MField{Key: col, Value: value})
	}

	if extra.Valid && extra.String != "" {
		var rest models.MFields
		if err := json.Unmarshal([]byte(extra.String), &rest); err != nil {
			return nil, fmt.Errorf("bad extra column: %w", err)
		}
		fields = append(fields, rest...)
	}

	return models.NewTickRecord(fields)
}

// -----------------------------------------------------------------------------

func (s *tickStore) ListStocks(ctx context.Context, date time.Time) ([]string, error) {
	query := s.bind(fmt.Sprintf("SELECT DISTINCT code FROM %s WHERE display_date = ? ORDER BY code", s.dialect.table()))
	rows, err := s.db.QueryContext(ctx, query, format.DateKey(date))
	if err != nil {
		return nil, helpers.NewDataSourceError(fmt.Sprintf("%s query failed", s.name), err)
	}
	defer rows.Close()

	codes := []string{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, helpers.NewDataSourceError(fmt.Sprintf("%s returned a bad row", s.name), err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// -----------------------------------------------------------------------------

func (s *tickStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return helpers.NewDataSourceError(fmt.Sprintf("%s unreachable", s.name), err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// ImportTicks replaces every (code, date) present in records with the given
// rows, keeping their order as the sequence.
func (s *tickStore) ImportTicks(ctx context.Context, records []*models.MTickRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	type dayKey struct {
		code string
		date int
	}
	seq := make(map[dayKey]int)

	del, err := tx.PrepareContext(ctx, s.bind(fmt.Sprintf("DELETE FROM %s WHERE code = ? AND display_date = ?", s.dialect.table())))
	if err != nil {
		return 0, err
	}
	defer del.Close()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", 5+len(bookColumns)), ", ")
	insert, err := tx.PrepareContext(ctx, s.bind(fmt.Sprintf(
		"INSERT INTO %s (code, display_date, display_time, seq, %s, extra) VALUES (%s)",
		s.dialect.table(), strings.Join(bookColumns, ", "), placeholders)))
	if err != nil {
		return 0, err
	}
	defer insert.Close()

	for _, rec := range records {
		key := dayKey{rec.StockID, rec.Date}
		n, seen := seq[key]
		if !seen {
			if _, err := del.ExecContext(ctx, rec.StockID, rec.Date); err != nil {
				return 0, fmt.Errorf("failed to clear %s/%d: %w", rec.StockID, rec.Date, err)
			}
		}
		seq[key] = n + 1

		args := []interface{}{rec.StockID, rec.Date, rec.Time, n}
		for _, v := range bookValues(rec) {
			args = append(args, v)
		}

		extra, err := json.Marshal(rec.Extra())
		if err != nil {
			return 0, err
		}
		args = append(args, string(extra))

		if _, err := insert.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("failed to insert %s/%d: %w", rec.StockID, rec.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	s.Logger.Info("Imported %d tick records into %s", len(records), s.name)
	return len(records), nil
}

// -----------------------------------------------------------------------------

// bookValues lines up the typed columns with bookColumns; decimals stay exact text.
func bookValues(rec *models.MTickRecord) []sql.NullString {
	vals := []decimal.NullDecimal{rec.TradePrice, rec.TradeVolume}
	for i := 0; i < 5; i++ {
		vals = append(vals, rec.BidPrices[i], rec.BidVolumes[i])
	}
	for i := 0; i < 5; i++ {
		vals = append(vals, rec.AskPrices[i], rec.AskVolumes[i])
	}

	out := make([]sql.NullString, len(vals))
	for i, v := range vals {
		if v.Valid {
			out[i] = sql.NullString{String: v.Decimal.String(), Valid: true}
		}
	}
	return out
}

// -----------------------------------------------------------------------------

func (s *tickStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// -----------------------------------------------------------------------------

func mustJSON(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
