package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/Stockmasterflex/legendwatch/internal/usecase"
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const ChannelName = "telegram"

type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api         *tgbotapi.BotAPI
	handlers    *Handlers
	pollTimeout int
}

func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	return tgbotapi.NewBotAPI(token)
}

func NewBot(api *tgbotapi.BotAPI, handlers *Handlers, pollTimeout int) *Bot {
	return &Bot{api: api, handlers: handlers, pollTimeout: pollTimeout}
}

func (b *Bot) Start(ctx context.Context) error {
	config := tgbotapi.NewUpdate(0)
	config.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(config)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handlers.HandleUpdate(ctx, b.api, update)
		}
	}
}

type Channel struct {
	api    Sender
	logger *zap.Logger
}

func NewChannel(api Sender, logger *zap.Logger) *Channel {
	return &Channel{api: api, logger: logger}
}

func (c *Channel) Name() string {
	return ChannelName
}

func (c *Channel) Send(ctx context.Context, notification usecase.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID := notification.Recipient.TelegramUserID
	if chatID == 0 {
		return errors.New("recipient has no telegram chat")
	}

	text := fmt.Sprintf("%s\n\nAlert #%d · /ack %d", notification.Event.Message, notification.Event.ID, notification.Event.ID)
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := c.api.Send(msg); err != nil {
		c.logger.Warn("failed to notify", zap.Int64("telegram_user_id", chatID), zap.Error(err))
		return err
	}
	c.logger.Info("telegram notify sent", zap.Int64("telegram_user_id", chatID), zap.Uint("alert_event_id", notification.Event.ID))
	return nil
}
