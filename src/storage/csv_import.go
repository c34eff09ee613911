package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"tw-tick-api/src/models"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
)

// csvTickRow is the seed file layout; column names match the backend's.
type csvTickRow struct {
	Code           string `csv:"code"`
	DisplayDate    string `csv:"display_date"`
	DisplayTime    string `csv:"display_time"`
	TradePrice     string `csv:"trade_price"`
	TradeVolume    string `csv:"trade_volume"`
	BpBest1        string `csv:"bp_best_1"`
	BvBest1        string `csv:"bv_best_1"`
	BpBest2        string `csv:"bp_best_2"`
	BvBest2        string `csv:"bv_best_2"`
	BpBest3        string `csv:"bp_best_3"`
	BvBest3        string `csv:"bv_best_3"`
	BpBest4        string `csv:"bp_best_4"`
	BvBest4        string `csv:"bv_best_4"`
	BpBest5        string `csv:"bp_best_5"`
	BvBest5        string `csv:"bv_best_5"`
	SpBest1        string `csv:"sp_best_1"`
	SvBest1        string `csv:"sv_best_1"`
	SpBest2        string `csv:"sp_best_2"`
	SvBest2        string `csv:"sv_best_2"`
	SpBest3        string `csv:"sp_best_3"`
	SvBest3        string `csv:"sv_best_3"`
	SpBest4        string `csv:"sp_best_4"`
	SvBest4        string `csv:"sv_best_4"`
	SpBest5        string `csv:"sp_best_5"`
	SvBest5        string `csv:"sv_best_5"`
	MatchFlag      string `csv:"match_flag"`
	AccTradeVolume string `csv:"acc_transaction_volume"`
}

// -----------------------------------------------------------------------------

func (r *csvTickRow) fields() (models.MFields, error) {
	numeric := []struct {
		key, value string
	}{
		{models.FieldDisplayDate, r.DisplayDate},
		{models.FieldDisplayTime, r.DisplayTime},
		{models.FieldTradePrice, r.TradePrice},
		{models.FieldTradeVolume, r.TradeVolume},
		{"bp_best_1", r.BpBest1}, {"bv_best_1", r.BvBest1},
		{"bp_best_2", r.BpBest2}, {"bv_best_2", r.BvBest2},
		{"bp_best_3", r.BpBest3}, {"bv_best_3", r.BvBest3},
		{"bp_best_4", r.BpBest4}, {"bv_best_4", r.BvBest4},
		{"bp_best_5", r.BpBest5}, {"bv_best_5", r.BvBest5},
		{"sp_best_1", r.SpBest1}, {"sv_best_1", r.SvBest1},
		{"sp_best_2", r.SpBest2}, {"sv_best_2", r.SvBest2},
		{"sp_best_3", r.SpBest3}, {"sv_best_3", r.SvBest3},
		{"sp_best_4", r.SpBest4}, {"sv_best_4", r.SvBest4},
		{"sp_best_5", r.SpBest5}, {"sv_best_5", r.SvBest5},
	}

	out := models.MFields{{Key: models.FieldCode, Value: mustJSON(strings.TrimSpace(r.Code))}}
	for _, col := range numeric {
		value, err := numberJSON(col.value)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.key, err)
		}
		out = append(out, models.MField{Key: col.key, Value: value})
	}

	if flag := strings.TrimSpace(r.MatchFlag); flag != "" {
		out = append(out, models.MField{Key: models.FieldMatchFlag, Value: mustJSON(flag)})
	}
	if strings.TrimSpace(r.AccTradeVolume) != "" {
		value, err := numberJSON(r.AccTradeVolume)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", models.FieldAccTradeVolume, err)
		}
		out = append(out, models.MField{Key: models.FieldAccTradeVolume, Value: value})
	}
	return out, nil
}

// -----------------------------------------------------------------------------

func numberJSON(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return json.RawMessage("null"), nil
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return nil, fmt.Errorf("%q is not a number", text)
	}
	return json.RawMessage(d.String()), nil
}

// -----------------------------------------------------------------------------

// ImportCSV seeds the store from a CSV export of the backend's parquet files.
func (s *tickStore) ImportCSV(ctx context.Context, r io.Reader) (int, error) {
	var rows []*csvTickRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return 0, fmt.Errorf("failed to parse csv: %w", err)
	}

	records := make([]*models.MTickRecord, 0, len(rows))
	for i, row := range rows {
		fields, err := row.fields()
		if err != nil {
			return 0, fmt.Errorf("csv line %d: %w", i+2, err)
		}
		rec, err := models.NewTickRecord(fields)
		if err != nil {
			return 0, fmt.Errorf("csv line %d: %w", i+2, err)
		}
		records = append(records, rec)
	}

	return s.ImportTicks(ctx, records)
}
