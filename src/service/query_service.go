package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	datasource "tw-tick-api/src/data_source"
	"tw-tick-api/src/format"
	"tw-tick-api/src/helpers"
	"tw-tick-api/src/interfaces"
	"tw-tick-api/src/logger"
	"tw-tick-api/src/models"
	"tw-tick-api/src/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrInvalidRange   = errors.New("invalid date range")
	ErrInvalidStockID = errors.New("invalid stock id")
)

var stockIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,10}$`)

// timeWindow is an inclusive HHMMSS filter; unset bounds are open.
type timeWindow struct {
	from, to       int
	hasFrom, hasTo bool
}

// QueryService answers the REST read paths on top of a tick source.
type QueryService struct {
	Source      interfaces.ITickSource
	Calendar    *utils.TradingCalendar
	Transformer *format.RecordTransformer
	Logger      *logger.Logger

	minDate      time.Time
	maxDate      time.Time // zero: today in Taipei
	maxRangeDays int       // zero: no cap
	tracer       trace.Tracer
	now          func() time.Time
}

// -----------------------------------------------------------------------------

func NewQueryService(cfg *models.MConfig, source interfaces.ITickSource, cal *utils.TradingCalendar, log *logger.Logger) (*QueryService, error) {
	s := &QueryService{
		Source:       source,
		Calendar:     cal,
		Transformer:  format.NewRecordTransformer(cfg.WebSocket.TimePrecision),
		Logger:       log,
		tracer:       otel.Tracer("tw-tick-api/service"),
		now:          time.Now,
		maxRangeDays: cfg.Limits.MaxRangeDays,
	}

	if cfg.Limits.MinDate != "" {
		d, err := format.ParseDate(cfg.Limits.MinDate)
		if err != nil {
			return nil, helpers.NewConfigurationError("limits.min_date", err)
		}
		s.minDate = d
	}
	if cfg.Limits.MaxDate != "" {
		d, err := format.ParseDate(cfg.Limits.MaxDate)
		if err != nil {
			return nil, helpers.NewConfigurationError("limits.max_date", err)
		}
		s.maxDate = d
	}
	return s, nil
}

// -----------------------------------------------------------------------------

// ValidateStockID accepts 1 to 10 ASCII letters or digits.
func ValidateStockID(stockID string) error {
	if !stockIDPattern.MatchString(stockID) {
		return helpers.NewValidationError("", fmt.Errorf("%w: %q", ErrInvalidStockID, stockID))
	}
	return nil
}

// -----------------------------------------------------------------------------

// ParseRequestDate parses a path date and checks it against the earliest
// supported day.
func (s *QueryService) ParseRequestDate(text string) (time.Time, error) {
	d, err := format.ParseDate(text)
	if err != nil {
		return time.Time{}, helpers.NewValidationError("", err)
	}
	if d.Before(s.minDate) {
		return time.Time{}, helpers.NewValidationError("", fmt.Errorf("%w: %s precedes the earliest supported date %s",
			format.ErrInvalidDate, d.Format(format.DisplayDateLayout), s.minDate.Format(format.DisplayDateLayout)))
	}
	return d, nil
}

// -----------------------------------------------------------------------------

// FetchSingleDate returns one day of ticks. A day without ticks is an empty
// success.
func (s *QueryService) FetchSingleDate(ctx context.Context, stockID, dateText string, opts models.MQueryOptions) (*models.MTickDataResponse, error) {
	if err := ValidateStockID(stockID); err != nil {
		return nil, err
	}
	date, err := s.ParseRequestDate(dateText)
	if err != nil {
		return nil, err
	}
	window, err := parseWindow(opts)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "QueryService.FetchSingleDate", trace.WithAttributes(
		attribute.String("stock_id", stockID),
		attribute.String("date", date.Format(format.DisplayDateLayout)),
	))
	defer span.End()

	records, err := s.Source.FetchTicks(ctx, stockID, date)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}

	rows := s.present(records, opts, window)
	span.SetAttributes(attribute.Int("count", len(rows)))
	return &models.MTickDataResponse{
		Status:           "success",
		Message:          resultMessage(len(rows)),
		Data:             rows,
		Count:            len(rows),
		StockID:          stockID,
		Date:             date.Format(format.DisplayDateLayout),
		ConvertFormats:   opts.ConvertFormats,
		CalculateVolumes: opts.CalculateVolumes,
		Timestamp:        s.timestamp(),
	}, nil
}

// -----------------------------------------------------------------------------

// FetchRange returns ticks for [start, end], ordered by date then sequence.
// An inverted range fails before the source is asked anything.
func (s *QueryService) FetchRange(ctx context.Context, stockID, startText, endText string, opts models.MQueryOptions) (*models.MTickDataResponse, error) {
	if err := ValidateStockID(stockID); err != nil {
		return nil, err
	}
	start, err := parseRangeBound(startText)
	if err != nil {
		return nil, err
	}
	end, err := parseRangeBound(endText)
	if err != nil {
		return nil, err
	}
	if start.After(end) {
		return nil, helpers.NewValidationError("", fmt.Errorf("%w: start date %s is after end date %s",
			ErrInvalidRange, start.Format(format.DisplayDateLayout), end.Format(format.DisplayDateLayout)))
	}
	for _, d := range []time.Time{start, end} {
		if d.Before(s.minDate) {
			return nil, helpers.NewValidationError("", fmt.Errorf("%w: %s precedes the earliest supported date %s",
				ErrInvalidRange, d.Format(format.DisplayDateLayout), s.minDate.Format(format.DisplayDateLayout)))
		}
	}
	if latest := s.latestDate(); end.After(latest) {
		s.Logger.Info("Clamping range end %s to latest available date %s",
			end.Format(format.DisplayDateLayout), latest.Format(format.DisplayDateLayout))
		end = latest
		if start.After(end) {
			return nil, helpers.NewValidationError("", fmt.Errorf("%w: start date %s is after the latest available date %s",
				ErrInvalidRange, start.Format(format.DisplayDateLayout), end.Format(format.DisplayDateLayout)))
		}
	}
	if days := int(end.Sub(start).Hours()/24) + 1; s.maxRangeDays > 0 && days > s.maxRangeDays {
		return nil, helpers.NewValidationError("", fmt.Errorf("%w: %d days requested, at most %d allowed",
			ErrInvalidRange, days, s.maxRangeDays))
	}
	window, err := parseWindow(opts)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "QueryService.FetchRange", trace.WithAttributes(
		attribute.String("stock_id", stockID),
		attribute.String("start_date", start.Format(format.DisplayDateLayout)),
		attribute.String("end_date", end.Format(format.DisplayDateLayout)),
	))
	defer span.End()

	records, err := datasource.FetchRange(ctx, s.Source, s.Calendar, stockID, start, end)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}

	rows := s.present(records, opts, window)
	span.SetAttributes(attribute.Int("count", len(rows)))
	return &models.MTickDataResponse{
		Status:           "success",
		Message:          resultMessage(len(rows)),
		Data:             rows,
		Count:            len(rows),
		StockID:          stockID,
		StartDate:        start.Format(format.DisplayDateLayout),
		EndDate:          end.Format(format.DisplayDateLayout),
		ConvertFormats:   opts.ConvertFormats,
		CalculateVolumes: opts.CalculateVolumes,
		Timestamp:        s.timestamp(),
	}, nil
}

// -----------------------------------------------------------------------------

// LatestTick returns the last tick of a day; an empty dateText means today in
// Taipei. A day without ticks is NotFound here since there is no record to return.
func (s *QueryService) LatestTick(ctx context.Context, stockID, dateText string, opts models.MQueryOptions) (*models.MLatestTickResponse, error) {
	if err := ValidateStockID(stockID); err != nil {
		return nil, err
	}
	date := utils.TodayInTaipei(s.now())
	if dateText != "" {
		d, err := s.ParseRequestDate(dateText)
		if err != nil {
			return nil, err
		}
		date = d
	}
	window, err := parseWindow(opts)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "QueryService.LatestTick", trace.WithAttributes(
		attribute.String("stock_id", stockID),
		attribute.String("date", date.Format(format.DisplayDateLayout)),
	))
	defer span.End()

	records, err := s.Source.FetchTicks(ctx, stockID, date)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}
	rows := s.present(records, opts, window)
	if len(rows) == 0 {
		return nil, helpers.NewNotFoundError(fmt.Sprintf("no tick data for %s on %s", stockID, date.Format(format.DisplayDateLayout)), nil)
	}

	return &models.MLatestTickResponse{
		Status:    "success",
		Message:   "latest tick retrieved",
		Data:      rows[len(rows)-1],
		StockID:   stockID,
		Date:      date.Format(format.DisplayDateLayout),
		Timestamp: s.timestamp(),
	}, nil
}

// -----------------------------------------------------------------------------

// ListStocks lists the stock ids that traded on a day; an empty dateText means
// today in Taipei.
func (s *QueryService) ListStocks(ctx context.Context, dateText string) (*models.MStockListResponse, error) {
	date := utils.TodayInTaipei(s.now())
	if dateText != "" {
		d, err := s.ParseRequestDate(dateText)
		if err != nil {
			return nil, err
		}
		date = d
	}

	lister, ok := s.Source.(interfaces.IStockLister)
	if !ok {
		return nil, helpers.NewDataSourceError(fmt.Sprintf("source %s cannot list stocks", s.Source.Name()), nil)
	}

	ctx, span := s.tracer.Start(ctx, "QueryService.ListStocks")
	defer span.End()

	stocks, err := lister.ListStocks(ctx, date)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, err
	}
	if stocks == nil {
		stocks = []string{}
	}
	return &models.MStockListResponse{
		Status:    "success",
		Message:   resultMessage(len(stocks)),
		Data:      stocks,
		Count:     len(stocks),
		Date:      date.Format(format.DisplayDateLayout),
		Timestamp: s.timestamp(),
	}, nil
}

// -----------------------------------------------------------------------------

// RoundPrice applies the exchange tick table to a price given as text.
func (s *QueryService) RoundPrice(text string) (*models.MPriceRoundResponse, error) {
	price, err := format.ParsePrice(text)
	if err != nil {
		return nil, helpers.NewValidationError("", err)
	}
	rounded, err := format.FormatRoundedPrice(price)
	if err != nil {
		return nil, helpers.NewValidationError("", err)
	}
	return &models.MPriceRoundResponse{
		OriginalPrice: json.Number(price.String()),
		RoundedPrice:  json.Number(rounded),
		Message:       fmt.Sprintf("price %s rounds to %s", price.String(), rounded),
	}, nil
}

// -----------------------------------------------------------------------------

// FetchForStream loads one day for a stream session. Ticks are returned raw;
// the session transforms each one as it goes out.
func (s *QueryService) FetchForStream(ctx context.Context, stockID string, date time.Time) ([]*models.MTickRecord, error) {
	ctx, span := s.tracer.Start(ctx, "QueryService.FetchForStream", trace.WithAttributes(
		attribute.String("stock_id", stockID),
		attribute.String("date", date.Format(format.DisplayDateLayout)),
	))
	defer span.End()

	records, err := s.Source.FetchTicks(ctx, stockID, date)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("count", len(records)))
	return records, nil
}

// -----------------------------------------------------------------------------

// present filters by time of day, derives volumes and renders the rows.
func (s *QueryService) present(records []*models.MTickRecord, opts models.MQueryOptions, window timeWindow) []models.MFields {
	if window.hasFrom || window.hasTo {
		kept := records[:0:0]
		for _, rec := range records {
			if window.contains(rec.HHMMSS()) {
				kept = append(kept, rec)
			}
		}
		records = kept
	}

	rows := make([]models.MFields, len(records))
	for i, rec := range records {
		rows[i] = s.Transformer.Apply(rec, opts.ConvertFormats)
	}
	if opts.CalculateVolumes {
		applyVolumes(rows, tradeVolumes(records))
	}
	return rows
}

// -----------------------------------------------------------------------------

// latestDate is the last day a range may reach: limits.max_date when set,
// otherwise today in Taipei.
func (s *QueryService) latestDate() time.Time {
	if !s.maxDate.IsZero() {
		return s.maxDate
	}
	return utils.TodayInTaipei(s.now())
}

// -----------------------------------------------------------------------------

func (s *QueryService) timestamp() string {
	return s.now().Format(time.RFC3339)
}

// -----------------------------------------------------------------------------

func (w timeWindow) contains(hhmmss int) bool {
	return (!w.hasFrom || hhmmss >= w.from) && (!w.hasTo || hhmmss <= w.to)
}

// -----------------------------------------------------------------------------

func parseWindow(opts models.MQueryOptions) (timeWindow, error) {
	var w timeWindow
	if opts.StartTime != "" {
		from, err := format.ParseClock(opts.StartTime)
		if err != nil {
			return w, helpers.NewValidationError("", err)
		}
		w.from, w.hasFrom = from, true
	}
	if opts.EndTime != "" {
		to, err := format.ParseClock(opts.EndTime)
		if err != nil {
			return w, helpers.NewValidationError("", err)
		}
		w.to, w.hasTo = to, true
	}
	if w.hasFrom && w.hasTo && w.from > w.to {
		return w, helpers.NewValidationError("", fmt.Errorf("%w: start_time %s is after end_time %s", format.ErrInvalidTime, opts.StartTime, opts.EndTime))
	}
	return w, nil
}

// -----------------------------------------------------------------------------

func parseRangeBound(text string) (time.Time, error) {
	d, err := format.ParseDate(text)
	if err != nil {
		return time.Time{}, helpers.NewValidationError("", err)
	}
	return d, nil
}

// -----------------------------------------------------------------------------

func resultMessage(n int) string {
	if n == 0 {
		return "no data found"
	}
	return "data retrieved"
}
