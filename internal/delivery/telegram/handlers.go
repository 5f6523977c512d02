package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Stockmasterflex/legendwatch/internal/domain"
	"github.com/Stockmasterflex/legendwatch/internal/usecase"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxMessageLen = 3800

type SchedulerControl interface {
	Status() usecase.SchedulerStatus
	RunOnce(ctx context.Context) usecase.CycleReport
}

type Handlers struct {
	userUC      *usecase.UserUsecase
	watchlistUC *usecase.WatchlistUsecase
	ruleUC      *usecase.RuleUsecase
	historyUC   *usecase.HistoryUsecase
	scheduler   SchedulerControl
	logger      *zap.Logger
}

func NewHandlers(
	userUC *usecase.UserUsecase,
	watchlistUC *usecase.WatchlistUsecase,
	ruleUC *usecase.RuleUsecase,
	historyUC *usecase.HistoryUsecase,
	scheduler SchedulerControl,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		userUC:      userUC,
		watchlistUC: watchlistUC,
		ruleUC:      ruleUC,
		historyUC:   historyUC,
		scheduler:   scheduler,
		logger:      logger,
	}
}

func (h *Handlers) HandleUpdate(ctx context.Context, api Sender, update tgbotapi.Update) {
	if update.Message == nil {
		return
	}
	if update.Message.From == nil {
		return
	}
	if update.Message.IsCommand() {
		chatID := update.Message.Chat.ID
		h.reply(api, chatID, h.handleCommand(ctx, update.Message))
	}
}

func (h *Handlers) handleCommand(ctx context.Context, message *tgbotapi.Message) string {
	command := message.Command()
	args := message.CommandArguments()
	userID := message.From.ID
	username := message.From.UserName

	logger := h.logger.With(zap.Int64("telegram_user_id", userID), zap.String("command", command))
	logger.Info("telegram command received", zap.String("username", username), zap.String("args", args))

	switch command {
	case "start":
		if _, err := h.userUC.StartOrGetUser(ctx, userID, username); err != nil {
			logger.Warn("start command failed", zap.Error(err))
			return "Failed to register. Please try again."
		}
		return "Welcome to Legendwatch.\n\n" + HelpText
	case "help":
		return HelpText
	case "watch":
		req, err := ParseWatchArgs(args)
		if err != nil {
			return "Usage: /watch <SYMBOL> <entry> <stop> <target> [frequency]"
		}
		subject, err := h.watchlistUC.Watch(ctx, userID, req)
		if err != nil {
			return h.errorMessage(logger, err)
		}
		logger.Info("watch complete", zap.Uint("subject_id", subject.ID))
		return "Watching " + formatSubject(*subject, time.Now())
	case "watchlist":
		subjects, err := h.watchlistUC.List(ctx, userID)
		if err != nil {
			return h.errorMessage(logger, err)
		}
		if len(subjects) == 0 {
			return "Your watchlist is empty. Use /watch to add a symbol."
		}
		now := time.Now()
		lines := make([]string, 0, len(subjects))
		for _, subject := range subjects {
			lines = append(lines, formatSubject(subject, now))
		}
		return truncate("Your watchlist:\n", lines)
	case "unwatch":
		return h.withID(logger, args, "/unwatch <id>", func(id uint) (string, error) {
			return fmt.Sprintf("Subject #%d removed.", id), h.watchlistUC.Unwatch(ctx, userID, id)
		})
	case "rearm":
		return h.withID(logger, args, "/rearm <id>", func(id uint) (string, error) {
			return fmt.Sprintf("Subject #%d re-armed.", id), h.watchlistUC.Rearm(ctx, userID, id)
		})
	case "close":
		return h.withID(logger, args, "/close <id>", func(id uint) (string, error) {
			return fmt.Sprintf("Subject #%d completed.", id), h.watchlistUC.Close(ctx, userID, id)
		})
	case "mute":
		id, d, err := ParseIDAndDuration(args)
		if err != nil {
			return "Usage: /mute <id> <duration>"
		}
		until, err := h.watchlistUC.Mute(ctx, userID, id, d)
		if err != nil {
			return h.errorMessage(logger, err)
		}
		return fmt.Sprintf("Subject #%d muted until %s.", id, until.UTC().Format(time.RFC822))
	case "unmute":
		return h.withID(logger, args, "/unmute <id>", func(id uint) (string, error) {
			return fmt.Sprintf("Subject #%d unmuted.", id), h.watchlistUC.Unmute(ctx, userID, id)
		})
	case "rule":
		req, err := ParseRuleArgs(args)
		if err != nil {
			if errors.Is(err, usecase.ErrInvalidDuration) {
				return h.errorMessage(logger, err)
			}
			return "Usage: /rule <SYMBOL> <AND|OR> <frequency> [every=<dur>] [cooldown=<dur>] <condition>; <condition>..."
		}
		rule, err := h.ruleUC.CreateRule(ctx, userID, req)
		if err != nil {
			return h.errorMessage(logger, err)
		}
		logger.Info("rule created", zap.Uint("rule_id", rule.ID))
		return "Rule created: " + formatRule(*rule)
	case "rules":
		rules, err := h.ruleUC.List(ctx, userID)
		if err != nil {
			return h.errorMessage(logger, err)
		}
		if len(rules) == 0 {
			return "No rules yet. Use /rule to create one."
		}
		lines := make([]string, 0, len(rules))
		for _, rule := range rules {
			lines = append(lines, formatRule(rule))
		}
		return truncate("Your rules:\n", lines)
	case "rule_enable", "rule_disable":
		enabled := command == "rule_enable"
		return h.withID(logger, args, "/"+command+" <id>", func(id uint) (string, error) {
			state := "disabled"
			if enabled {
				state = "enabled"
			}
			return fmt.Sprintf("Rule #%d %s.", id, state), h.ruleUC.SetEnabled(ctx, userID, id, enabled)
		})
	case "rule_delete":
		return h.withID(logger, args, "/rule_delete <id>", func(id uint) (string, error) {
			return fmt.Sprintf("Rule #%d deleted.", id), h.ruleUC.Delete(ctx, userID, id)
		})
	case "snooze":
		id, d, err := ParseIDAndDuration(args)
		if err != nil {
			return "Usage: /snooze <rule_id> <duration>"
		}
		until, err := h.ruleUC.Snooze(ctx, userID, id, d)
		if err != nil {
			return h.errorMessage(logger, err)
		}
		return fmt.Sprintf("Rule #%d snoozed until %s.", id, until.UTC().Format(time.RFC822))
	case "history":
		limit, err := ParseLimit(args)
		if err != nil {
			return "Usage: /history [n]"
		}
		items, err := h.historyUC.History(ctx, userID, limit)
		if err != nil {
			return h.errorMessage(logger, err)
		}
		if len(items) == 0 {
			return "No alerts yet."
		}
		lines := make([]string, 0, len(items))
		for _, item := range items {
			lines = append(lines, formatHistoryItem(item))
		}
		return truncate("Recent alerts:\n", lines)
	case "ack":
		return h.withID(logger, args, "/ack <alert_id>", func(id uint) (string, error) {
			return fmt.Sprintf("Alert #%d acknowledged.", id), h.historyUC.Acknowledge(ctx, userID, id)
		})
	case "status":
		return formatStatus(h.scheduler.Status())
	case "run":
		report := h.scheduler.RunOnce(ctx)
		return fmt.Sprintf("Cycle %s: %d symbols, %d alerts, %d suppressed, %d errors.", shortID(report.ID), report.Symbols, report.Alerts, report.Suppressed, report.Errors)
	default:
		logger.Warn("unknown command")
		return "Unknown command.\n\n" + HelpText
	}
}

func (h *Handlers) withID(logger *zap.Logger, args, usage string, fn func(id uint) (string, error)) string {
	id, err := ParseID(args)
	if err != nil {
		return "Usage: " + usage
	}
	text, err := fn(id)
	if err != nil {
		return h.errorMessage(logger, err)
	}
	logger.Info("command complete", zap.Uint("id", id))
	return text
}

func (h *Handlers) errorMessage(logger *zap.Logger, err error) string {
	switch {
	case errors.Is(err, usecase.ErrUserNotRegistered):
		return "Please /start to register first."
	case errors.Is(err, usecase.ErrSubjectNotFound):
		return "Watched subject not found."
	case errors.Is(err, usecase.ErrRuleNotFound):
		return "Rule not found."
	case errors.Is(err, usecase.ErrAlertNotFound):
		return "Alert not found."
	case errors.Is(err, usecase.ErrInvalidSymbol):
		return "Invalid symbol."
	case errors.Is(err, usecase.ErrInvalidDuration):
		return "Invalid duration. Use e.g. 30m, 2h or 1d."
	case errors.Is(err, domain.ErrEmptyConditions):
		return "A rule needs at least one condition."
	case errors.Is(err, domain.ErrInvalidPrice):
		return "Invalid price levels: " + err.Error()
	case errors.Is(err, domain.ErrInvalidFrequency):
		return "Invalid frequency. Use once, hourly, daily, always or disabled."
	case errors.Is(err, domain.ErrInvalidLogic):
		return "Invalid logic. Use AND or OR."
	case errors.Is(err, domain.ErrInvalidField),
		errors.Is(err, domain.ErrInvalidOperator),
		errors.Is(err, domain.ErrInvalidValue),
		errors.Is(err, domain.ErrInvalidWindow),
		errors.Is(err, domain.ErrInvalidRule):
		return "Invalid rule: " + err.Error()
	}

	logger.Warn("unhandled error", zap.Error(err))
	return "Something went wrong. Please try again."
}

func formatSubject(subject domain.WatchedSubject, now time.Time) string {
	text := fmt.Sprintf("#%d %s [%s] entry %s stop %s target %s (%s)",
		subject.ID, subject.Symbol, subject.Status,
		formatLevel(subject.TargetEntry), formatLevel(subject.TargetStop), formatLevel(subject.TargetPrice),
		subject.Frequency)
	if subject.Muted(now) {
		text += " muted until " + subject.MutedUntil.UTC().Format(time.RFC822)
	}
	return text
}

func formatLevel(level *decimal.Decimal) string {
	if level == nil {
		return "-"
	}
	return level.String()
}

func formatRule(rule domain.Rule) string {
	conditions := make([]string, 0, len(rule.Conditions))
	for _, cond := range rule.Conditions {
		conditions = append(conditions, cond.String())
	}
	status := "disabled"
	if rule.Enabled {
		status = "enabled"
	}
	text := fmt.Sprintf("#%d %s [%s] %s: %s (%s, fired %d)", rule.ID, rule.Symbol, status, rule.Logic, strings.Join(conditions, "; "), rule.Frequency, rule.TriggerCount)
	if rule.SnoozedUntil != nil && time.Now().Before(*rule.SnoozedUntil) {
		text += " snoozed until " + rule.SnoozedUntil.UTC().Format(time.RFC822)
	}
	return text
}

func formatHistoryItem(item usecase.AlertHistoryItem) string {
	channels := make([]string, 0, len(item.Deliveries))
	for _, attempt := range item.Deliveries {
		channels = append(channels, fmt.Sprintf("%s:%s", attempt.Channel, attempt.Status))
	}
	ack := ""
	if item.Event.Acknowledged {
		ack = " ✓"
	}
	return fmt.Sprintf("#%d %s %s%s\n  %s [%s]",
		item.Event.ID, item.Event.TriggeredAt.UTC().Format("Jan 02 15:04"), item.Event.TriggerType, ack,
		item.Event.Message, strings.Join(channels, ", "))
}

func formatStatus(status usecase.SchedulerStatus) string {
	state := "stopped"
	if status.Running {
		state = "running"
	}
	market := "closed"
	if status.MarketOpen {
		market = "open"
	}
	text := fmt.Sprintf("Scheduler %s, market %s, %d cycles.", state, market, status.Cycles)
	if last := status.LastCycle; last != nil {
		text += fmt.Sprintf("\nLast cycle %s at %s: %d symbols, %d alerts, %d errors.",
			shortID(last.ID), last.FinishedAt.UTC().Format(time.RFC822), last.Symbols, last.Alerts, last.Errors)
	}
	return text
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(header string, lines []string) string {
	var builder strings.Builder
	builder.WriteString(header)
	for i, line := range lines {
		if builder.Len()+len(line)+1 > maxMessageLen {
			builder.WriteString(fmt.Sprintf("...and %d more", len(lines)-i))
			break
		}
		builder.WriteString(line)
		builder.WriteString("\n")
	}
	return builder.String()
}

func (h *Handlers) reply(api Sender, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := api.Send(msg); err != nil {
		h.logger.Warn("failed to send message", zap.Error(err))
	}
}
