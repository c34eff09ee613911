package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"tw-tick-api/src/format"
	"tw-tick-api/src/helpers"
	"tw-tick-api/src/interfaces"
	"tw-tick-api/src/logger"
	"tw-tick-api/src/models"

	"github.com/google/uuid"
)

// State of a stream session.
type State int32

const (
	StateAdmitted State = iota
	StateFetching
	StateStreaming
	StateCompleted
	StateErrored
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateAdmitted:
		return "admitted"
	case StateFetching:
		return "fetching"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// progressLogEvery controls how often a running stream logs its rate.
const progressLogEvery = 1000

// Fetcher loads the full record set of one day.
type Fetcher interface {
	FetchForStream(ctx context.Context, stockID string, date time.Time) ([]*models.MTickRecord, error)
}

// Options tune one session.
type Options struct {
	Interval       time.Duration // pause after each record
	FetchTimeout   time.Duration
	ConvertFormats bool
}

// Session replays one day of ticks to one connection. It is driven by a single
// goroutine and shares nothing with other sessions.
type Session struct {
	ID      string
	StockID string
	Date    time.Time

	sender      interfaces.IMessageSender
	fetcher     Fetcher
	transformer *format.RecordTransformer
	release     func()
	opts        Options
	errHandler  *helpers.ErrorHandler
	Logger      *logger.Logger

	state atomic.Int32
	now   func() time.Time
}

// -----------------------------------------------------------------------------

// NewSession takes ownership of an admitted slot; release runs exactly once
// when Run returns, whatever the outcome.
func NewSession(stockID string, date time.Time, sender interfaces.IMessageSender, fetcher Fetcher,
	transformer *format.RecordTransformer, release func(), opts Options, log *logger.Logger) *Session {
	if release == nil {
		release = func() {}
	}
	return &Session{
		ID:          uuid.NewString(),
		StockID:     stockID,
		Date:        date,
		sender:      sender,
		fetcher:     fetcher,
		transformer: transformer,
		release:     release,
		opts:        opts,
		errHandler:  helpers.NewErrorHandler(log),
		Logger:      log,
		now:         time.Now,
	}
}

// -----------------------------------------------------------------------------

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// -----------------------------------------------------------------------------

// Run drives the session to a terminal state and returns it. Cancelling ctx is
// how a client disconnect reaches the session.
func (s *Session) Run(ctx context.Context) State {
	defer s.release()

	day := s.Date.Format(format.DisplayDateLayout)
	start := s.now()

	s.setState(StateFetching)
	records, err := s.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			s.Logger.Info("[%s] client left while fetching %s %s", s.ID, s.StockID, day)
			return s.finish(StateAborted)
		}
		_, msg := s.errHandler.Translate(err)
		if sendErr := s.sender.SendJSON(models.MErrorMessage{Error: msg}); sendErr != nil {
			s.Logger.Debug("[%s] could not deliver error: %v", s.ID, sendErr)
		}
		return s.finish(StateErrored)
	}

	total := len(records)
	s.setState(StateStreaming)
	s.Logger.Info("[%s] streaming %d records of %s on %s", s.ID, total, s.StockID, day)

	if err := s.sender.SendJSON(models.MInfoMessage{
		Type:         models.MessageTypeInfo,
		Message:      fmt.Sprintf("stream starting, %d records", total),
		TotalRecords: total,
	}); err != nil {
		return s.abort(0, total, err)
	}

	var pause *time.Timer
	if s.opts.Interval > 0 {
		pause = time.NewTimer(s.opts.Interval)
		pause.Stop()
		defer pause.Stop()
	}

	for i, rec := range records {
		n := i + 1
		row, err := s.render(rec, n, total)
		if err != nil {
			s.Logger.Error("[%s] record %d: %v", s.ID, n, err)
			_ = s.sender.SendJSON(models.MErrorMessage{Error: fmt.Sprintf("failed to encode record %d", n)})
			return s.finish(StateErrored)
		}
		if err := s.sender.SendJSON(row); err != nil {
			return s.abort(n-1, total, err)
		}

		if n%progressLogEvery == 0 {
			elapsed := s.now().Sub(start).Seconds()
			s.Logger.Debug("[%s] sent %d/%d (%.1f records/s)", s.ID, n, total, rate(n, elapsed))
		}

		if pause != nil && n < total {
			pause.Reset(s.opts.Interval)
			select {
			case <-ctx.Done():
				return s.abort(n, total, ctx.Err())
			case <-pause.C:
			}
		}
	}

	elapsed := s.now().Sub(start).Seconds()
	stats := models.MStreamStats{
		TotalRecords:     total,
		ElapsedSeconds:   elapsed,
		RecordsPerSecond: rate(total, elapsed),
	}
	if err := s.sender.SendJSON(models.MCompletedMessage{
		Type:    models.MessageTypeCompleted,
		Message: "all tick data sent",
		Stats:   stats,
	}); err != nil {
		return s.abort(total, total, err)
	}

	s.Logger.Info("[%s] completed %s %s: %d records in %.3fs (%.1f records/s)",
		s.ID, s.StockID, day, total, elapsed, stats.RecordsPerSecond)
	return s.finish(StateCompleted)
}

// -----------------------------------------------------------------------------

func (s *Session) fetch(ctx context.Context) ([]*models.MTickRecord, error) {
	fetchCtx := ctx
	if s.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.opts.FetchTimeout)
		defer cancel()
	}

	records, err := s.fetcher.FetchForStream(fetchCtx, s.StockID, s.Date)
	if err != nil && ctx.Err() == nil && errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
		return nil, helpers.NewDataSourceError(fmt.Sprintf("tick source did not answer within %s", s.opts.FetchTimeout), err)
	}
	return records, err
}

// -----------------------------------------------------------------------------

func (s *Session) render(rec *models.MTickRecord, n, total int) (models.MFields, error) {
	meta, err := json.Marshal(models.MRecordMeta{
		RecordNumber: n,
		TotalRecords: total,
		Progress:     float64(n) / float64(total),
	})
	if err != nil {
		return nil, err
	}
	return s.transformer.Apply(rec, s.opts.ConvertFormats).With(models.FieldMeta, meta), nil
}

// -----------------------------------------------------------------------------

func (s *Session) abort(sent, total int, cause error) State {
	s.Logger.Info("[%s] client gone after %d/%d records: %v", s.ID, sent, total, cause)
	return s.finish(StateAborted)
}

// -----------------------------------------------------------------------------

func (s *Session) finish(st State) State {
	s.setState(st)
	return st
}

// -----------------------------------------------------------------------------

func rate(n int, elapsedSeconds float64) float64 {
	if n == 0 || elapsedSeconds <= 0 {
		return 0
	}
	return float64(n) / elapsedSeconds
}
