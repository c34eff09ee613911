package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Column names used by the tick backends.
const (
	FieldCode           = "code"
	FieldDisplayDate    = "display_date"
	FieldDisplayTime    = "display_time"
	FieldTradePrice     = "trade_price"
	FieldTradeVolume    = "trade_volume"
	FieldMatchFlag      = "match_flag"
	FieldAccTradeVolume = "acc_transaction_volume"
	FieldMeta           = "_meta"
)

// Five-level book columns, best level first.
var (
	BidPriceFields  = [5]string{"bp_best_1", "bp_best_2", "bp_best_3", "bp_best_4", "bp_best_5"}
	BidVolumeFields = [5]string{"bv_best_1", "bv_best_2", "bv_best_3", "bv_best_4", "bv_best_5"}
	AskPriceFields  = [5]string{"sp_best_1", "sp_best_2", "sp_best_3", "sp_best_4", "sp_best_5"}
	AskVolumeFields = [5]string{"sv_best_1", "sv_best_2", "sv_best_3", "sv_best_4", "sv_best_5"}
)

// PriceFields lists every column that goes through price rounding.
func PriceFields() []string {
	out := []string{FieldTradePrice}
	out = append(out, BidPriceFields[:]...)
	return append(out, AskPriceFields[:]...)
}

// VolumeFields lists every column rendered as an integer share count.
func VolumeFields() []string {
	out := []string{FieldTradeVolume}
	out = append(out, BidVolumeFields[:]...)
	return append(out, AskVolumeFields[:]...)
}

// MTickRecord is one exchange snapshot as the backend delivered it.
// The typed members are parsed once for filtering, ordering and storage;
// the raw row is kept verbatim and never changes after construction.
type MTickRecord struct {
	StockID     string
	Date        int   // YYYYMMDD
	Time        int64 // HHMMSS followed by sub-second digits
	TradePrice  decimal.NullDecimal
	TradeVolume decimal.NullDecimal
	BidPrices   [5]decimal.NullDecimal
	BidVolumes  [5]decimal.NullDecimal
	AskPrices   [5]decimal.NullDecimal
	AskVolumes  [5]decimal.NullDecimal

	fields MFields
}

// -----------------------------------------------------------------------------

// NewTickRecord parses a raw backend row. code, display_date and display_time
// are required; every other column is optional.
func NewTickRecord(fields MFields) (*MTickRecord, error) {
	rec := &MTickRecord{fields: fields.Clone()}

	code, ok := fields.Get(FieldCode)
	if !ok {
		return nil, fmt.Errorf("tick row is missing %s", FieldCode)
	}
	text, isNull, err := scalarText(code)
	if err != nil || isNull {
		return nil, fmt.Errorf("tick row has invalid %s: %s", FieldCode, string(code))
	}
	rec.StockID = text

	date, err := requiredInt(fields, FieldDisplayDate, true)
	if err != nil {
		return nil, err
	}
	rec.Date = int(date)

	if rec.Time, err = requiredInt(fields, FieldDisplayTime, false); err != nil {
		return nil, err
	}

	if rec.TradePrice, err = optionalDecimal(fields, FieldTradePrice); err != nil {
		return nil, err
	}
	if rec.TradeVolume, err = optionalDecimal(fields, FieldTradeVolume); err != nil {
		return nil, err
	}
	for i := 0; i < 5; i++ {
		if rec.BidPrices[i], err = optionalDecimal(fields, BidPriceFields[i]); err != nil {
			return nil, err
		}
		if rec.BidVolumes[i], err = optionalDecimal(fields, BidVolumeFields[i]); err != nil {
			return nil, err
		}
		if rec.AskPrices[i], err = optionalDecimal(fields, AskPriceFields[i]); err != nil {
			return nil, err
		}
		if rec.AskVolumes[i], err = optionalDecimal(fields, AskVolumeFields[i]); err != nil {
			return nil, err
		}
	}

	return rec, nil
}

// -----------------------------------------------------------------------------

// Fields returns a private copy of the raw row.
func (r *MTickRecord) Fields() MFields {
	return r.fields.Clone()
}

// -----------------------------------------------------------------------------

// Extra returns the columns this package does not interpret.
func (r *MTickRecord) Extra() MFields {
	known := make(map[string]struct{})
	for _, k := range append(append(PriceFields(), VolumeFields()...), FieldCode, FieldDisplayDate, FieldDisplayTime) {
		known[k] = struct{}{}
	}

	out := MFields{}
	for _, field := range r.fields {
		if _, ok := known[field.Key]; ok {
			continue
		}
		out = append(out, MField{Key: field.Key, Value: append(json.RawMessage(nil), field.Value...)})
	}
	return out
}

// -----------------------------------------------------------------------------

// HHMMSS drops the sub-second digits from the raw time. Raw times longer than
// six digits carry a microsecond suffix.
func (r *MTickRecord) HHMMSS() int {
	if r.Time > 999999 {
		return int(r.Time / 1_000_000)
	}
	return int(r.Time)
}

// -----------------------------------------------------------------------------

// Has reports whether the raw row carries the column, even as null.
func (r *MTickRecord) Has(key string) bool {
	return r.fields.Has(key)
}

// -----------------------------------------------------------------------------

// StringField returns a text column, treating numbers as their literal text.
func (r *MTickRecord) StringField(key string) (string, bool) {
	raw, ok := r.fields.Get(key)
	if !ok {
		return "", false
	}
	text, isNull, err := scalarText(raw)
	if err != nil || isNull {
		return "", false
	}
	return text, true
}

// -----------------------------------------------------------------------------

// DecimalField parses a numeric column that the typed members do not cover.
func (r *MTickRecord) DecimalField(key string) (decimal.NullDecimal, error) {
	return optionalDecimal(r.fields, key)
}

// -----------------------------------------------------------------------------

func (r *MTickRecord) MarshalJSON() ([]byte, error) {
	return r.fields.MarshalJSON()
}

// -----------------------------------------------------------------------------

func (r *MTickRecord) UnmarshalJSON(data []byte) error {
	var fields MFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	rec, err := NewTickRecord(fields)
	if err != nil {
		return err
	}
	*r = *rec
	return nil
}

// -----------------------------------------------------------------------------
// Raw value helpers
// -----------------------------------------------------------------------------

// scalarText renders a JSON string or number as text. Empty strings count as null.
func scalarText(raw json.RawMessage) (string, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", true, nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", false, err
		}
		s = strings.TrimSpace(s)
		return s, s == "", nil
	}

	if trimmed[0] == '{' || trimmed[0] == '[' || trimmed[0] == 't' || trimmed[0] == 'f' {
		return "", false, fmt.Errorf("not a scalar: %s", string(trimmed))
	}
	return string(trimmed), false, nil
}

// -----------------------------------------------------------------------------

func optionalDecimal(fields MFields, key string) (decimal.NullDecimal, error) {
	raw, ok := fields.Get(key)
	if !ok {
		return decimal.NullDecimal{}, nil
	}
	text, isNull, err := scalarText(raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("tick row has invalid %s: %w", key, err)
	}
	if isNull {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("tick row has invalid %s: %q", key, text)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

// -----------------------------------------------------------------------------

// requiredInt reads an integer column. Dates may arrive as "2023-04-26" or
// "2023/04/26" from some backends; the separators are dropped.
func requiredInt(fields MFields, key string, isDate bool) (int64, error) {
	raw, ok := fields.Get(key)
	if !ok {
		return 0, fmt.Errorf("tick row is missing %s", key)
	}
	text, isNull, err := scalarText(raw)
	if err != nil || isNull {
		return 0, fmt.Errorf("tick row has invalid %s: %s", key, string(raw))
	}
	if isDate {
		text = strings.NewReplacer("-", "", "/", "").Replace(text)
	}

	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n, nil
	}

	// numeric columns exported through float pipelines come back as 93000123000.0
	d, err := decimal.NewFromString(text)
	if err != nil || !d.IsInteger() {
		return 0, fmt.Errorf("tick row has invalid %s: %q", key, text)
	}
	return d.IntPart(), nil
}
