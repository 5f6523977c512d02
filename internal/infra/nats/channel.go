package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Stockmasterflex/legendwatch/internal/usecase"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const ChannelName = "nats"

type publisher interface {
	Publish(subject string, data []byte) error
}

type alertMessage struct {
	AlertEventID uint      `json:"alert_event_id"`
	OwnerID      uint      `json:"owner_id"`
	Symbol       string    `json:"symbol"`
	TriggerType  string    `json:"trigger_type"`
	TriggerValue string    `json:"trigger_value"`
	Message      string    `json:"message"`
	TriggeredAt  time.Time `json:"triggered_at"`
}

type Channel struct {
	conn   publisher
	prefix string
	logger *zap.Logger
}

func Connect(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name(name), nats.MaxReconnects(-1), nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return conn, nil
}

func NewChannel(conn publisher, prefix string, logger *zap.Logger) *Channel {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "alerts"
	}
	return &Channel{conn: conn, prefix: prefix, logger: logger}
}

func (c *Channel) Name() string {
	return ChannelName
}

func (c *Channel) Send(ctx context.Context, notification usecase.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	event := notification.Event
	data, err := json.Marshal(alertMessage{
		AlertEventID: event.ID,
		OwnerID:      event.OwnerID,
		Symbol:       event.Symbol,
		TriggerType:  string(event.TriggerType),
		TriggerValue: event.TriggerValue.String(),
		Message:      event.Message,
		TriggeredAt:  event.TriggeredAt.UTC(),
	})
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("%s.%d", c.prefix, event.OwnerID)
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	c.logger.Debug("alert published", zap.String("subject", subject), zap.Uint("alert_event_id", event.ID))
	return nil
}
