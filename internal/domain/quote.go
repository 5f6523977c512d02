package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Quote struct {
	Symbol    string
	Price     *decimal.Decimal
	Volume    *decimal.Decimal
	AvgVolume *decimal.Decimal
	Timestamp time.Time
}

func (q Quote) Valid() bool {
	return q.Price != nil && q.Price.IsPositive()
}

func (q Quote) RelativeVolume() *decimal.Decimal {
	if q.Volume == nil || q.AvgVolume == nil || q.AvgVolume.IsZero() {
		return nil
	}
	ratio := q.Volume.Div(*q.AvgVolume)
	return &ratio
}

func (q Quote) Value(field Field) (decimal.Decimal, bool) {
	var value *decimal.Decimal
	switch field {
	case FieldPrice:
		value = q.Price
	case FieldVolume:
		value = q.Volume
	case FieldAvgVolume:
		value = q.AvgVolume
	case FieldRelativeVolume:
		value = q.RelativeVolume()
	}
	if value == nil {
		return decimal.Decimal{}, false
	}
	return *value, true
}

// MarketDataGateway returns the current quote for a symbol. A nil quote with a
// nil error means no data is available and the symbol is skipped this cycle.
type MarketDataGateway interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
}
