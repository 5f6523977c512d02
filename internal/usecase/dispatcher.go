package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Stockmasterflex/legendwatch/internal/domain"
	"go.uber.org/zap"
)

var ErrUnknownChannel = errors.New("unknown delivery channel")

const (
	DefaultMaxAttempts = 3
	drainBatchSize     = 100
)

type Notification struct {
	Recipient domain.User
	Event     domain.AlertEvent
}

type Channel interface {
	Name() string
	Send(ctx context.Context, notification Notification) error
}

type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = 30 * time.Second
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if b.Max > 0 && delay >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && delay > b.Max {
		return b.Max
	}
	return delay
}

type DeliveryStats struct {
	Sent           uint64 `json:"sent"`
	Failed         uint64 `json:"failed"`
	TerminalFailed uint64 `json:"terminal_failed"`
	Retried        uint64 `json:"retried"`
}

type DispatcherConfig struct {
	MaxAttempts int
	Backoff     Backoff
}

type DeliveryDispatcher struct {
	deliveries domain.DeliveryRepository
	events     domain.AlertEventRepository
	users      domain.UserRepository
	channels   map[string]Channel
	order      []string
	cfg        DispatcherConfig
	now        func() time.Time
	logger     *zap.Logger

	// background sends outlive the caller that dispatched them
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	inflight map[uint]struct{}
	wg       sync.WaitGroup

	sent           atomic.Uint64
	failed         atomic.Uint64
	terminalFailed atomic.Uint64
	retried        atomic.Uint64
}

func NewDeliveryDispatcher(
	deliveries domain.DeliveryRepository,
	events domain.AlertEventRepository,
	users domain.UserRepository,
	channels []Channel,
	cfg DispatcherConfig,
	now func() time.Time,
	logger *zap.Logger,
) *DeliveryDispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &DeliveryDispatcher{
		ctx:        ctx,
		cancel:     cancel,
		deliveries: deliveries,
		events:     events,
		users:      users,
		channels:   make(map[string]Channel, len(channels)),
		cfg:        cfg,
		now:        now,
		logger:     logger,
		inflight:   make(map[uint]struct{}),
	}
	for _, ch := range channels {
		d.channels[ch.Name()] = ch
		d.order = append(d.order, ch.Name())
	}
	return d
}

func (d *DeliveryDispatcher) Channels() []string {
	return append([]string(nil), d.order...)
}

func (d *DeliveryDispatcher) Dispatch(ctx context.Context, event domain.AlertEvent) error {
	recipient, err := d.users.GetByID(ctx, event.OwnerID)
	if err != nil {
		return fmt.Errorf("load alert owner %d: %w", event.OwnerID, err)
	}

	var errs []error
	for _, name := range d.order {
		attempt, created, err := d.enqueue(ctx, event, name)
		if err != nil {
			d.logger.Error("failed to enqueue delivery", zap.Uint("alert_event_id", event.ID), zap.String("channel", name), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if !created {
			d.logger.Debug("delivery already enqueued", zap.Uint("alert_event_id", event.ID), zap.String("channel", name), zap.String("status", string(attempt.Status)))
			continue
		}

		d.wg.Add(1)
		go func(ch Channel, attempt domain.DeliveryAttempt) {
			defer d.wg.Done()
			d.attempt(d.ctx, ch, attempt, Notification{Recipient: *recipient, Event: event})
		}(d.channels[name], *attempt)
	}
	return errors.Join(errs...)
}

func (d *DeliveryDispatcher) Wait() {
	d.wg.Wait()
}

// Close waits for background sends, then cancels the context they ran on.
func (d *DeliveryDispatcher) Close() {
	d.wg.Wait()
	d.cancel()
}

func (d *DeliveryDispatcher) enqueue(ctx context.Context, event domain.AlertEvent, channel string) (*domain.DeliveryAttempt, bool, error) {
	existing, err := d.deliveries.GetByEventAndChannel(ctx, event.ID, channel)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	// due immediately so a crash before the first send is resumed by the drainer
	now := d.now()
	attempt := &domain.DeliveryAttempt{
		AlertEventID: event.ID,
		Channel:      channel,
		Status:       domain.DeliveryPending,
		Attempts:     0,
		MaxAttempts:  d.cfg.MaxAttempts,
		NextRetryAt:  &now,
	}
	if err := d.deliveries.Create(ctx, attempt); err != nil {
		return nil, false, err
	}
	return attempt, true, nil
}

func (d *DeliveryDispatcher) DrainDue(ctx context.Context) (int, error) {
	due, err := d.deliveries.ListDue(ctx, d.now(), drainBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list due deliveries: %w", err)
	}

	tried := 0
	for _, attempt := range due {
		if ctx.Err() != nil {
			return tried, ctx.Err()
		}
		ch, ok := d.channels[attempt.Channel]
		if !ok {
			d.logger.Warn("due delivery for unconfigured channel", zap.Uint("delivery_id", attempt.ID), zap.String("channel", attempt.Channel))
			continue
		}
		event, err := d.events.GetByID(ctx, attempt.AlertEventID)
		if err != nil {
			d.logger.Warn("failed to load alert for retry", zap.Uint("delivery_id", attempt.ID), zap.Uint("alert_event_id", attempt.AlertEventID), zap.Error(err))
			continue
		}
		recipient, err := d.users.GetByID(ctx, event.OwnerID)
		if err != nil {
			d.logger.Warn("failed to load recipient for retry", zap.Uint("delivery_id", attempt.ID), zap.Uint("owner_id", event.OwnerID), zap.Error(err))
			continue
		}
		if attempt.Attempts > 0 {
			d.retried.Add(1)
		}
		if d.attempt(ctx, ch, attempt, Notification{Recipient: *recipient, Event: *event}) {
			tried++
		}
	}
	return tried, nil
}

func (d *DeliveryDispatcher) attempt(ctx context.Context, ch Channel, attempt domain.DeliveryAttempt, notification Notification) bool {
	if !d.claim(attempt.ID) {
		return false
	}
	defer d.release(attempt.ID)

	// the copy may be stale if the drainer and Dispatch raced for it
	current, err := d.deliveries.GetByEventAndChannel(ctx, attempt.AlertEventID, attempt.Channel)
	if err != nil {
		d.logger.Warn("failed to reload delivery attempt", zap.Uint("delivery_id", attempt.ID), zap.Error(err))
		return false
	}
	if current.Attempts != attempt.Attempts || current.Terminal() {
		return false
	}
	attempt = *current

	sendErr := d.send(ctx, ch, notification)
	now := d.now()
	attempt.Attempts++
	attempt.LastAttemptAt = &now

	logger := d.logger.With(
		zap.Uint("delivery_id", attempt.ID),
		zap.Uint("alert_event_id", attempt.AlertEventID),
		zap.String("channel", attempt.Channel),
		zap.Int("attempt", attempt.Attempts),
		zap.Int("max_attempts", attempt.MaxAttempts),
	)

	if sendErr == nil {
		attempt.Status = domain.DeliverySent
		attempt.DeliveredAt = &now
		attempt.NextRetryAt = nil
		attempt.Error = nil
		d.sent.Add(1)
		logger.Info("alert delivered")
	} else {
		message := sendErr.Error()
		attempt.Status = domain.DeliveryFailed
		attempt.Error = &message
		d.failed.Add(1)
		if attempt.Attempts < attempt.MaxAttempts {
			next := now.Add(d.cfg.Backoff.Delay(attempt.Attempts))
			attempt.NextRetryAt = &next
			logger.Warn("alert delivery failed, retry scheduled", zap.Time("next_retry_at", next), zap.Error(sendErr))
		} else {
			attempt.NextRetryAt = nil
			attempt.FailedAt = &now
			d.terminalFailed.Add(1)
			logger.Error("alert delivery failed permanently", zap.Error(sendErr))
		}
	}

	if err := d.deliveries.Update(ctx, &attempt); err != nil {
		logger.Error("failed to record delivery attempt", zap.Error(err))
	}
	return true
}

func (d *DeliveryDispatcher) send(ctx context.Context, ch Channel, notification Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel %s panicked: %v", ch.Name(), r)
		}
	}()
	return ch.Send(ctx, notification)
}

func (d *DeliveryDispatcher) claim(id uint) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[id]; busy {
		return false
	}
	d.inflight[id] = struct{}{}
	return true
}

func (d *DeliveryDispatcher) release(id uint) {
	d.mu.Lock()
	delete(d.inflight, id)
	d.mu.Unlock()
}

func (d *DeliveryDispatcher) Stats() DeliveryStats {
	return DeliveryStats{
		Sent:           d.sent.Load(),
		Failed:         d.failed.Load(),
		TerminalFailed: d.terminalFailed.Load(),
		Retried:        d.retried.Load(),
	}
}
