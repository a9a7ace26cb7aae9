// Package events defines the event subjects published by the Host-Elite core
// and provides the event bus backend selection.
package events

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/config"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/logger"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/events/bus"
)

// Event types published by the core.
const (
	BotDeployed      = "bot.deployed"
	BotStatusChanged = "bot.status_changed"
	BotStarted       = "bot.started"
	BotStopped       = "bot.stopped"
	BotExited        = "bot.exited"
	BotDeleted       = "bot.deleted"
)

// StatusSubject returns the per-bot status subject for a bot id.
// Front ends subscribe to "bot.status.*" for all bots.
func StatusSubject(botID string) string {
	return fmt.Sprintf("bot.status.%s", botID)
}

// PublishStatus emits a status-change event on the bot's status subject.
// Delivery is best effort; a bus failure never fails the operation that
// caused the transition.
func PublishStatus(ctx context.Context, b bus.EventBus, log *logger.Logger, botID string, status string) {
	event := bus.NewEvent(BotStatusChanged, "hostelite", map[string]interface{}{
		"bot_id": botID,
		"status": status,
	})
	if err := b.Publish(ctx, StatusSubject(botID), event); err != nil {
		log.Warn("failed to publish status event", zap.String("bot_id", botID), zap.Error(err))
	}
}

// Provide selects the event bus backend from configuration.
// An empty NATS URL selects the in-memory bus.
func Provide(cfg *config.Config, log *logger.Logger) (bus.EventBus, func(), error) {
	if cfg.NATS.URL == "" {
		b := bus.NewMemoryEventBus(log)
		return b, b.Close, nil
	}

	b, err := bus.NewNATSEventBus(cfg.NATS, log)
	if err != nil {
		return nil, nil, err
	}
	return b, b.Close, nil
}
