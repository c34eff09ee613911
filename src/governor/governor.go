package governor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tw-tick-api/src/helpers"
	"tw-tick-api/src/logger"
	"tw-tick-api/src/models"
)

var (
	ErrMaxConnectionsExceeded = errors.New("max websocket connections exceeded")
	ErrRateLimitExceeded      = errors.New("rate limit exceeded")
)

// ConnectionGovernor is the process-wide admission control: concurrent
// WebSocket sessions per client IP and REST requests per IP over a sliding
// window. One mutex guards both tables; nothing blocks while holding it.
type ConnectionGovernor struct {
	MaxConnectionsPerIP int
	RequestsPerWindow   int
	Window              time.Duration
	Logger              *logger.Logger

	mu       sync.Mutex
	active   map[string]int
	requests map[string][]time.Time
	now      func() time.Time
}

// Slot is one admitted WebSocket session. Release is safe to call any number
// of times; only the first call frees the slot.
type Slot struct {
	IP   string
	gov  *ConnectionGovernor
	once sync.Once
}

// -----------------------------------------------------------------------------

func NewConnectionGovernor(cfg *models.MLimitsConfig, log *logger.Logger) *ConnectionGovernor {
	return &ConnectionGovernor{
		MaxConnectionsPerIP: cfg.MaxWSConnectionsPerIP,
		RequestsPerWindow:   cfg.RestRequestsPerWindow,
		Window:              time.Duration(cfg.RestWindowSeconds) * time.Second,
		Logger:              log,
		active:              make(map[string]int),
		requests:            make(map[string][]time.Time),
		now:                 time.Now,
	}
}

// -----------------------------------------------------------------------------

// TryAdmitWebSocket reserves a session slot for ip.
func (g *ConnectionGovernor) TryAdmitWebSocket(ip string) (*Slot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n := g.active[ip]; n >= g.MaxConnectionsPerIP {
		g.Logger.Warning("Rejecting WebSocket from %s: %d connections open", ip, n)
		return nil, helpers.NewConnectionLimitError("", fmt.Errorf("%w: %s already has %d open connections",
			ErrMaxConnectionsExceeded, ip, n))
	}
	g.active[ip]++
	return &Slot{IP: ip, gov: g}, nil
}

// -----------------------------------------------------------------------------

func (s *Slot) Release() {
	s.once.Do(func() {
		s.gov.release(s.IP)
	})
}

// -----------------------------------------------------------------------------

func (g *ConnectionGovernor) release(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active[ip] <= 1 {
		delete(g.active, ip)
		return
	}
	g.active[ip]--
}

// -----------------------------------------------------------------------------

// CheckRestRate records one request from ip, or rejects it when ip already
// made RequestsPerWindow requests inside the trailing window.
func (g *ConnectionGovernor) CheckRestRate(ip string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	log := prune(g.requests[ip], now.Add(-g.Window))
	if len(log) >= g.RequestsPerWindow {
		g.requests[ip] = log
		retry := log[0].Add(g.Window).Sub(now)
		return helpers.NewRateLimitError("", fmt.Errorf("%w: %d requests per %s, retry in %s",
			ErrRateLimitExceeded, g.RequestsPerWindow, g.Window, retry.Round(time.Second)))
	}
	g.requests[ip] = append(log, now)
	return nil
}

// -----------------------------------------------------------------------------

// prune drops timestamps at or before cutoff; log is oldest first.
func prune(log []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return log
	}
	return append(log[:0], log[i:]...)
}

// -----------------------------------------------------------------------------

// Sweep forgets clients whose requests all fell out of the window.
func (g *ConnectionGovernor) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().Add(-g.Window)
	removed := 0
	for ip, log := range g.requests {
		if log = prune(log, cutoff); len(log) == 0 {
			delete(g.requests, ip)
			removed++
			continue
		}
		g.requests[ip] = log
	}
	return removed
}

// -----------------------------------------------------------------------------

// Run sweeps idle rate-limit entries until ctx is done.
func (g *ConnectionGovernor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := g.Sweep(); n > 0 {
				g.Logger.Debug("Swept %d idle rate-limit clients", n)
			}
		}
	}
}

// -----------------------------------------------------------------------------

// Stats is a consistent snapshot of the governor's tables.
type Stats struct {
	ActiveWebSockets   int
	WebSocketsPerIP    map[string]int
	TrackedRateClients int
}

func (g *ConnectionGovernor) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := Stats{WebSocketsPerIP: make(map[string]int, len(g.active)), TrackedRateClients: len(g.requests)}
	for ip, n := range g.active {
		st.WebSocketsPerIP[ip] = n
		st.ActiveWebSockets += n
	}
	return st
}
