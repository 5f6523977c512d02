package usecase

import (
	"fmt"
	"time"
)

type MarketHours struct {
	location *time.Location
	open     time.Duration
	close    time.Duration
}

func NewMarketHours(timezone, open, close string) (MarketHours, error) {
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return MarketHours{}, fmt.Errorf("load market timezone %q: %w", timezone, err)
	}
	openAt, err := parseClock(open)
	if err != nil {
		return MarketHours{}, err
	}
	closeAt, err := parseClock(close)
	if err != nil {
		return MarketHours{}, err
	}
	if closeAt <= openAt {
		return MarketHours{}, fmt.Errorf("market close %s must be after open %s", close, open)
	}
	return MarketHours{location: location, open: openAt, close: closeAt}, nil
}

func parseClock(value string) (time.Duration, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", value, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (m MarketHours) IsOpen(t time.Time) bool {
	local := t.In(m.location)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	offset := sinceMidnight(local)
	return offset >= m.open && offset < m.close
}

func (m MarketHours) NextOpen(t time.Time) time.Time {
	if m.IsOpen(t) {
		return t
	}
	local := t.In(m.location)
	for day := 0; day < 8; day++ {
		date := local.AddDate(0, 0, day)
		openAt := time.Date(date.Year(), date.Month(), date.Day(), int(m.open/time.Hour), int(m.open%time.Hour/time.Minute), 0, 0, m.location)
		if openAt.Weekday() == time.Saturday || openAt.Weekday() == time.Sunday {
			continue
		}
		if !openAt.Before(local) {
			return openAt
		}
	}
	return t
}

func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
}
