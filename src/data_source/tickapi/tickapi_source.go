package tickapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"tw-tick-api/src/format"
	"tw-tick-api/src/helpers"
	"tw-tick-api/src/interfaces"
	"tw-tick-api/src/logger"
	"tw-tick-api/src/models"
	"tw-tick-api/src/network"
)

const SourceName = "tick_api"

// Backend answers that only mean "no parquet file for that day".
var missingFileMarkers = []string{"no files found", "no such file", "does not exist"}

type queryRequest struct {
	SQL  string `json:"sql"`
	Type string `json:"type"`
}

// TickAPISource queries the SQL-over-HTTP service that fronts the daily
// order-book parquet files.
type TickAPISource struct {
	Config  *models.MTickAPIConfig
	Network interfaces.INetworkManager
	Logger  *logger.Logger
	baseURL string
}

// -----------------------------------------------------------------------------

func NewTickAPISource(cfg *models.MTickAPIConfig, nm interfaces.INetworkManager, log *logger.Logger) *TickAPISource {
	return &TickAPISource{
		Config:  cfg,
		Network: nm,
		Logger:  log,
		baseURL: fmt.Sprintf("http://%s:%d/", cfg.Host, cfg.Port),
	}
}

// -----------------------------------------------------------------------------

// WithBaseURL overrides the endpoint derived from host and port.
func (s *TickAPISource) WithBaseURL(url string) *TickAPISource {
	s.baseURL = url
	return s
}

// -----------------------------------------------------------------------------

func (s *TickAPISource) Name() string {
	return SourceName
}

// -----------------------------------------------------------------------------

// FetchTicks returns the stock's rows from the day's parquet file.
func (s *TickAPISource) FetchTicks(ctx context.Context, stockID string, date time.Time) ([]*models.MTickRecord, error) {
	sql := fmt.Sprintf("SELECT * FROM read_parquet('%s') WHERE code = '%s' ORDER BY display_time",
		s.parquetPath(date), quoteLiteral(stockID))

	s.Logger.Info("Requesting tick data for stock %s on %s", stockID, date.Format(format.DisplayDateLayout))
	rows, err := s.query(ctx, sql)
	if err != nil {
		return nil, err
	}

	records := make([]*models.MTickRecord, 0, len(rows))
	for i, row := range rows {
		rec, err := models.NewTickRecord(row)
		if err != nil {
			return nil, helpers.NewDataSourceError(fmt.Sprintf("malformed row %d from tick backend", i), err)
		}
		records = append(records, rec)
	}

	s.Logger.Info("Retrieved %d records for %s on %s", len(records), stockID, date.Format(format.DisplayDateLayout))
	return records, nil
}

// -----------------------------------------------------------------------------

// ListStocks returns the distinct codes of the day's file.
func (s *TickAPISource) ListStocks(ctx context.Context, date time.Time) ([]string, error) {
	sql := fmt.Sprintf("SELECT DISTINCT code FROM read_parquet('%s') ORDER BY code", s.parquetPath(date))
	rows, err := s.query(ctx, sql)
	if err != nil {
		return nil, err
	}

	codes := make([]string, 0, len(rows))
	for _, row := range rows {
		raw, ok := row.Get(models.FieldCode)
		if !ok {
			continue
		}
		var code interface{}
		if err := json.Unmarshal(raw, &code); err != nil || code == nil {
			continue
		}
		codes = append(codes, strings.TrimSpace(fmt.Sprint(code)))
	}
	sort.Strings(codes)
	return codes, nil
}

// -----------------------------------------------------------------------------

func (s *TickAPISource) Ping(ctx context.Context) error {
	_, err := s.query(ctx, "SELECT 1 AS ok")
	return err
}

// -----------------------------------------------------------------------------

func (s *TickAPISource) parquetPath(date time.Time) string {
	root := strings.TrimRight(s.Config.DataRoot, `/\`)
	return fmt.Sprintf("%s/tw_orderbook_%s.parquet", root, date.Format(format.CompactDateLayout))
}

// -----------------------------------------------------------------------------

// query runs sql and decodes the row array. A missing day file yields no rows.
func (s *TickAPISource) query(ctx context.Context, sql string) ([]models.MFields, error) {
	headers := map[string]string{"X-API-Key": s.Config.APIKey}
	s.Logger.Debug("Sending query: %s", sql)

	body, err := s.Network.PostJSON(ctx, s.baseURL, headers, queryRequest{SQL: sql, Type: "json"})
	if err != nil {
		var statusErr *network.StatusError
		if errors.As(err, &statusErr) && isMissingFile(statusErr.Body) {
			return nil, nil
		}
		return nil, helpers.NewDataSourceError("tick backend request failed", err)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		s.Logger.Warning("Tick backend returned an empty response")
		return nil, nil
	}

	if trimmed[0] == '{' {
		// error envelope with a 200 status
		if isMissingFile(trimmed) {
			return nil, nil
		}
		return nil, helpers.NewDataSourceError("tick backend returned an error", errors.New(preview(trimmed)))
	}

	var rows []models.MFields
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		s.Logger.Error("JSON parse error: %v. Response preview: %s", err, preview(trimmed))
		return nil, helpers.NewDataSourceError("tick backend returned malformed JSON", err)
	}
	return rows, nil
}

// -----------------------------------------------------------------------------

func isMissingFile(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, marker := range missingFileMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

func quoteLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// -----------------------------------------------------------------------------

func preview(body []byte) string {
	if len(body) > 100 {
		return string(body[:100]) + "..."
	}
	return string(body)
}
