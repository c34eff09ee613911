package models

import "encoding/json"

// WebSocket message types.
const (
	MessageTypeInfo      = "info"
	MessageTypeCompleted = "completed"
	MessageTypeHeartbeat = "heartbeat"
)

// MRecordMeta is appended to every streamed record under "_meta".
type MRecordMeta struct {
	RecordNumber int     `json:"record_number"`
	TotalRecords int     `json:"total_records"`
	Progress     float64 `json:"progress"`
}

// MInfoMessage opens a stream before any record is sent.
type MInfoMessage struct {
	Type         string `json:"type"`
	Message      string `json:"message"`
	TotalRecords int    `json:"total_records"`
}

type MStreamStats struct {
	TotalRecords     int     `json:"total_records"`
	ElapsedSeconds   float64 `json:"elapsed_seconds"`
	RecordsPerSecond float64 `json:"records_per_second"`
}

// MCompletedMessage closes a stream after the last record.
type MCompletedMessage struct {
	Type    string       `json:"type"`
	Message string       `json:"message"`
	Stats   MStreamStats `json:"stats"`
}

type MErrorMessage struct {
	Error string `json:"error"`
}

type MHeartbeatMessage struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// -----------------------------------------------------------------------------
// REST payloads
// -----------------------------------------------------------------------------

// MTickDataResponse answers both read paths; a single-date read fills Date,
// a range read fills StartDate and EndDate.
type MTickDataResponse struct {
	Status           string    `json:"status"`
	Message          string    `json:"message"`
	Data             []MFields `json:"data"`
	Count            int       `json:"count"`
	StockID          string    `json:"stock_id"`
	Date             string    `json:"date,omitempty"`
	StartDate        string    `json:"start_date,omitempty"`
	EndDate          string    `json:"end_date,omitempty"`
	ConvertFormats   bool      `json:"convert_formats"`
	CalculateVolumes bool      `json:"calculate_volumes"`
	Timestamp        string    `json:"timestamp"`
}

type MLatestTickResponse struct {
	Status    string  `json:"status"`
	Message   string  `json:"message"`
	Data      MFields `json:"data"`
	StockID   string  `json:"stock_id"`
	Date      string  `json:"date"`
	Timestamp string  `json:"timestamp"`
}

type MStockListResponse struct {
	Status    string   `json:"status"`
	Message   string   `json:"message"`
	Data      []string `json:"data"`
	Count     int      `json:"count"`
	Date      string   `json:"date"`
	Timestamp string   `json:"timestamp"`
}

type MPriceRoundResponse struct {
	OriginalPrice json.Number `json:"original_price"`
	RoundedPrice  json.Number `json:"rounded_price"`
	Message       string      `json:"message"`
}

// MErrorResponse is the body of every failed REST call.
type MErrorResponse struct {
	Detail MErrorDetail `json:"detail"`
}

type MErrorDetail struct {
	Message string `json:"message"`
}

// MHealthStatus is served on /api/health.
type MHealthStatus struct {
	Status             string         `json:"status"`
	Timestamp          string         `json:"timestamp"`
	Sources            []string       `json:"sources"`
	ActiveWebSockets   int            `json:"active_websockets"`
	WebSocketsPerIP    map[string]int `json:"websockets_per_ip"`
	TrackedRateClients int            `json:"tracked_rate_clients"`
}

// -----------------------------------------------------------------------------

// MQueryOptions carries the query-string switches of the REST read paths.
type MQueryOptions struct {
	ConvertFormats   bool
	CalculateVolumes bool
	StartTime        string // optional HH:MM:SS, HHMMSS, HH:MM, HHMM or HH
	EndTime          string
}
