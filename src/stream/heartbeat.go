package stream

import (
	"context"
	"time"

	"tw-tick-api/src/interfaces"
	"tw-tick-api/src/logger"
	"tw-tick-api/src/models"
)

const defaultHeartbeatInterval = 30 * time.Second

// HeartbeatEmitter keeps an otherwise idle connection alive.
type HeartbeatEmitter struct {
	Interval time.Duration
	sender   interfaces.IMessageSender
	Logger   *logger.Logger
	now      func() time.Time
}

// -----------------------------------------------------------------------------

func NewHeartbeatEmitter(interval time.Duration, sender interfaces.IMessageSender, log *logger.Logger) *HeartbeatEmitter {
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	return &HeartbeatEmitter{
		Interval: interval,
		sender:   sender,
		Logger:   log,
		now:      time.Now,
	}
}

// -----------------------------------------------------------------------------

// Run sends one heartbeat right away and then one per interval. It returns nil
// when ctx ends and the send error when the connection breaks.
func (h *HeartbeatEmitter) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	for {
		if err := h.sender.SendJSON(models.MHeartbeatMessage{
			Type:      models.MessageTypeHeartbeat,
			Timestamp: h.now().Format(time.RFC3339Nano),
		}); err != nil {
			h.Logger.Debug("Heartbeat send failed: %v", err)
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
