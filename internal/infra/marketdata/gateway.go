package marketdata

import (
	"context"
	"strings"

	"github.com/Stockmasterflex/legendwatch/internal/domain"
	"go.uber.org/zap"
)

type Gateway struct {
	stream *StreamCache
	rest   domain.MarketDataGateway
	logger *zap.Logger
}

func NewGateway(stream *StreamCache, rest domain.MarketDataGateway, logger *zap.Logger) *Gateway {
	return &Gateway{stream: stream, rest: rest, logger: logger}
}

func (g *Gateway) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if g.stream != nil {
		if quote, ok := g.stream.Latest(symbol); ok {
			return &quote, nil
		}
	}
	return g.rest.GetQuote(ctx, symbol)
}
