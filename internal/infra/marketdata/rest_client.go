package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Stockmasterflex/legendwatch/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type RESTClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewRESTClient(baseURL string, timeout time.Duration, perSecond float64, logger *zap.Logger) *RESTClient {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

func (c *RESTClient) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/quotes/%s", c.baseURL, url.PathEscape(symbol))
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Accept", "application/json")

	start := time.Now()
	response, err := c.client.Do(request)
	if err != nil {
		c.logger.Warn("quote request failed", zap.String("symbol", symbol), zap.Error(err))
		return nil, err
	}
	defer response.Body.Close()

	c.logger.Debug(
		"quote request complete",
		zap.String("symbol", symbol),
		zap.Int("status", response.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if response.StatusCode == http.StatusNotFound || response.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("quote service error: status %d", response.StatusCode)
	}

	var payload quotePayload
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode quote for %s: %w", symbol, err)
	}
	quote := payload.toDomain(symbol, time.Now())
	return &quote, nil
}
