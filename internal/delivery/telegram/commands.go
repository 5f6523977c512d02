package telegram

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Stockmasterflex/legendwatch/internal/usecase"
)

const HelpText = `Commands:
/start - register
/help - show this help
/watch <SYMBOL> <entry> <stop> <target> [once|hourly|daily|always|disabled]
/watchlist - list watched symbols
/unwatch <id>
/rearm <id> - reset a triggered subject to watching
/close <id> - mark a subject completed
/mute <id> <duration>
/unmute <id>
/rule <SYMBOL> <AND|OR> <frequency> [every=<dur>] [cooldown=<dur>] <condition>; <condition>...
/rules - list your rules
/rule_enable <id>
/rule_disable <id>
/rule_delete <id>
/snooze <rule_id> <duration>
/history [n] - recent alerts
/ack <alert_id>
/status - scheduler status
/run - run one evaluation cycle now

Notes:
- Use - for a level you do not want, e.g. /watch AAPL 100 90 -
- Conditions: <field> <op> <value> [window]; fields price, volume, avg_volume, relative_volume;
  ops >, <, >=, <=, ==, crosses_above, crosses_below.
- Durations: 30m, 2h, 1d.
Example:
/watch AAPL 100 90 130 once
/rule NVDA AND daily cooldown=1h price > 50; relative_volume >= 2 15m
`

var ErrInvalidArguments = errors.New("invalid arguments")

func ParseWatchArgs(args string) (usecase.WatchRequest, error) {
	parts := strings.Fields(args)
	if len(parts) < 4 || len(parts) > 5 {
		return usecase.WatchRequest{}, ErrInvalidArguments
	}
	req := usecase.WatchRequest{
		Symbol: parts[0],
		Entry:  parts[1],
		Stop:   parts[2],
		Target: parts[3],
	}
	if len(parts) == 5 {
		req.Frequency = parts[4]
	}
	return req, nil
}

// ParseRuleArgs splits "<SYMBOL> <AND|OR> <freq> [every=..] [cooldown=..] c1; c2".
func ParseRuleArgs(args string) (usecase.RuleRequest, error) {
	parts := strings.Fields(args)
	if len(parts) < 4 {
		return usecase.RuleRequest{}, ErrInvalidArguments
	}
	req := usecase.RuleRequest{Symbol: parts[0], Logic: parts[1], Frequency: parts[2]}

	rest := parts[3:]
	for len(rest) > 0 {
		key, value, ok := strings.Cut(rest[0], "=")
		if !ok || (key != "every" && key != "cooldown") {
			break
		}
		d, err := usecase.ParseDuration(value)
		if err != nil {
			return usecase.RuleRequest{}, err
		}
		if key == "every" {
			req.CheckFrequency = d
		} else {
			req.Cooldown = d
		}
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return usecase.RuleRequest{}, ErrInvalidArguments
	}

	for _, cond := range strings.Split(strings.Join(rest, " "), ";") {
		if cond = strings.TrimSpace(cond); cond != "" {
			req.Conditions = append(req.Conditions, cond)
		}
	}
	if len(req.Conditions) == 0 {
		return usecase.RuleRequest{}, ErrInvalidArguments
	}
	return req, nil
}

func ParseID(args string) (uint, error) {
	idStr := strings.TrimPrefix(strings.TrimSpace(args), "#")
	if idStr == "" {
		return 0, ErrInvalidArguments
	}
	value, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil || value == 0 {
		return 0, ErrInvalidArguments
	}
	return uint(value), nil
}

func ParseIDAndDuration(args string) (uint, time.Duration, error) {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		return 0, 0, ErrInvalidArguments
	}
	id, err := ParseID(parts[0])
	if err != nil {
		return 0, 0, err
	}
	d, err := usecase.ParseDuration(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return id, d, nil
}

func ParseLimit(args string) (int, error) {
	trimmed := strings.TrimSpace(args)
	if trimmed == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil || value <= 0 {
		return 0, ErrInvalidArguments
	}
	return value, nil
}
