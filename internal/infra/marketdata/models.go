package marketdata

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/Stockmasterflex/legendwatch/internal/domain"
	"github.com/shopspring/decimal"
)

type quotePayload struct {
	Symbol    string          `json:"symbol"`
	Price     NullableDecimal `json:"price"`
	Volume    NullableDecimal `json:"volume"`
	AvgVolume NullableDecimal `json:"avg_volume"`
	Timestamp *time.Time      `json:"timestamp"`
}

type streamMessage struct {
	Type   string         `json:"type"`
	Quotes []quotePayload `json:"quotes"`
	quotePayload
}

type subscribeRequest struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

type NullableDecimal struct {
	Decimal decimal.Decimal
	Valid   bool
}

func (n *NullableDecimal) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		n.Valid = false
		return nil
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == `""` {
		n.Valid = false
		return nil
	}
	trimmed = strings.Trim(trimmed, `"`)
	dec, err := decimal.NewFromString(trimmed)
	if err != nil {
		n.Valid = false
		return err
	}
	n.Decimal = dec
	n.Valid = true
	return nil
}

func (n NullableDecimal) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Decimal.String())
}

func (n NullableDecimal) ptr() *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	value := n.Decimal
	return &value
}

func (p quotePayload) toDomain(fallbackSymbol string, now time.Time) domain.Quote {
	quote := domain.Quote{
		Symbol:    strings.ToUpper(p.Symbol),
		Price:     p.Price.ptr(),
		Volume:    p.Volume.ptr(),
		AvgVolume: p.AvgVolume.ptr(),
		Timestamp: now,
	}
	if quote.Symbol == "" {
		quote.Symbol = fallbackSymbol
	}
	if p.Timestamp != nil && !p.Timestamp.IsZero() {
		quote.Timestamp = *p.Timestamp
	}
	return quote
}
