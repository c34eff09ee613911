package service

import (
	"encoding/json"

	"tw-tick-api/src/models"

	"github.com/shopspring/decimal"
)

const matchedFlag = "Y"

// tradeVolumes derives per-trade volume from the accumulated day volume.
// Matched rows (match_flag "Y", or no flag at all) get the difference to the
// previous matched row, the first one its accumulated volume; unmatched rows
// get zero. The running total restarts on every new date. Returns nil when no
// record carries an accumulated volume column.
func tradeVolumes(records []*models.MTickRecord) []decimal.Decimal {
	present := false
	for _, rec := range records {
		if rec.Has(models.FieldAccTradeVolume) {
			present = true
			break
		}
	}
	if !present {
		return nil
	}

	out := make([]decimal.Decimal, len(records))
	last := decimal.Zero
	date := 0
	for i, rec := range records {
		if rec.Date != date {
			date, last = rec.Date, decimal.Zero
		}
		if flag, ok := rec.StringField(models.FieldMatchFlag); ok && flag != matchedFlag {
			continue
		}

		acc, err := rec.DecimalField(models.FieldAccTradeVolume)
		if err != nil || !acc.Valid {
			continue
		}
		if last.IsZero() {
			out[i] = acc.Decimal
		} else {
			out[i] = acc.Decimal.Sub(last)
		}
		last = acc.Decimal
	}
	return out
}

// -----------------------------------------------------------------------------

// applyVolumes overwrites trade_volume in rows, which must be aligned with the
// records the volumes were derived from.
func applyVolumes(rows []models.MFields, volumes []decimal.Decimal) {
	if volumes == nil {
		return
	}
	for i := range rows {
		rows[i] = rows[i].With(models.FieldTradeVolume, json.RawMessage(volumes[i].String()))
	}
}
