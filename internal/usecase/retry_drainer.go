package usecase

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

type RetryDrainer struct {
	cron       *gocron.Scheduler
	dispatcher *DeliveryDispatcher
	interval   time.Duration
	logger     *zap.Logger
}

func NewRetryDrainer(dispatcher *DeliveryDispatcher, interval time.Duration, logger *zap.Logger) *RetryDrainer {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &RetryDrainer{
		cron:       gocron.NewScheduler(time.UTC),
		dispatcher: dispatcher,
		interval:   interval,
		logger:     logger,
	}
}

func (r *RetryDrainer) Start(ctx context.Context) error {
	_, err := r.cron.Every(r.interval).SingletonMode().Do(func() {
		r.drain(ctx)
	})
	if err != nil {
		return err
	}
	r.cron.StartAsync()
	r.logger.Info("delivery retry drainer started", zap.Duration("interval", r.interval))
	return nil
}

func (r *RetryDrainer) Stop() {
	r.cron.Stop()
	r.logger.Info("delivery retry drainer stopped")
}

func (r *RetryDrainer) drain(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	tried, err := r.dispatcher.DrainDue(ctx)
	if err != nil {
		r.logger.Warn("delivery drain failed", zap.Error(err))
		return
	}
	if tried > 0 {
		r.logger.Info("delivery drain complete", zap.Int("tried", tried))
	}
}
