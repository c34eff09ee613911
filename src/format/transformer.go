package format

import (
	"encoding/json"
	"strconv"

	"tw-tick-api/src/models"

	"github.com/shopspring/decimal"
)

const (
	PrecisionMicrosecond = "microsecond"
	PrecisionMillisecond = "millisecond"
)

// RecordTransformer derives the display view of a tick record.
// It never touches the record itself; every call returns a fresh MFields.
type RecordTransformer struct {
	TimePrecision string
}

// -----------------------------------------------------------------------------

func NewRecordTransformer(timePrecision string) *RecordTransformer {
	if timePrecision == "" {
		timePrecision = PrecisionMicrosecond
	}
	return &RecordTransformer{TimePrecision: timePrecision}
}

// -----------------------------------------------------------------------------

// Apply returns the raw row when convert is false. Otherwise prices are rounded
// to their tick, the date and time are rendered for display and volumes become
// integers. A field that cannot be converted is passed through as delivered.
func (t *RecordTransformer) Apply(rec *models.MTickRecord, convert bool) models.MFields {
	out := rec.Fields()
	if !convert {
		return out
	}

	prices := map[string]decimal.NullDecimal{models.FieldTradePrice: rec.TradePrice}
	volumes := map[string]decimal.NullDecimal{models.FieldTradeVolume: rec.TradeVolume}
	for i := 0; i < 5; i++ {
		prices[models.BidPriceFields[i]] = rec.BidPrices[i]
		prices[models.AskPriceFields[i]] = rec.AskPrices[i]
		volumes[models.BidVolumeFields[i]] = rec.BidVolumes[i]
		volumes[models.AskVolumeFields[i]] = rec.AskVolumes[i]
	}

	for i := range out {
		key := out[i].Key
		switch {
		case key == models.FieldDisplayDate:
			if s, err := NormalizeDate(rec.Date); err == nil {
				out[i].Value = quote(s)
			}
		case key == models.FieldDisplayTime:
			if s, err := t.formatTime(rec.Time); err == nil {
				out[i].Value = quote(s)
			}
		default:
			if p, ok := prices[key]; ok {
				if !p.Valid {
					continue
				}
				if s, err := FormatRoundedPrice(p.Decimal); err == nil {
					out[i].Value = json.RawMessage(s)
				}
			} else if v, ok := volumes[key]; ok && v.Valid {
				out[i].Value = json.RawMessage(strconv.FormatInt(v.Decimal.IntPart(), 10))
			}
		}
	}
	return out
}

// -----------------------------------------------------------------------------

func (t *RecordTransformer) formatTime(raw int64) (string, error) {
	if t.TimePrecision == PrecisionMillisecond {
		return NormalizeTimeMillis(raw, FracDigitsFor(raw))
	}
	return NormalizeTime(raw, FracDigitsFor(raw))
}

// -----------------------------------------------------------------------------

func quote(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
