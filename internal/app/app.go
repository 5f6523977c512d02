package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Stockmasterflex/legendwatch/internal/config"
	"github.com/Stockmasterflex/legendwatch/internal/delivery/httpapi"
	"github.com/Stockmasterflex/legendwatch/internal/delivery/telegram"
	"github.com/Stockmasterflex/legendwatch/internal/infra/db"
	"github.com/Stockmasterflex/legendwatch/internal/infra/log"
	"github.com/Stockmasterflex/legendwatch/internal/infra/marketdata"
	natsinfra "github.com/Stockmasterflex/legendwatch/internal/infra/nats"
	"github.com/Stockmasterflex/legendwatch/internal/usecase"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type App struct {
	bot        *telegram.Bot
	scheduler  *usecase.Scheduler
	dispatcher *usecase.DeliveryDispatcher
	drainer    *usecase.RetryDrainer
	stream     *marketdata.StreamCache
	httpServer *httpapi.Server
	logger     *zap.Logger
	cleanupFn  func() error

	cancel        context.CancelFunc
	schedulerDone chan struct{}
	wg            sync.WaitGroup
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := log.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	hours, err := usecase.NewMarketHours(cfg.MarketTimezone, cfg.MarketOpen, cfg.MarketClose)
	if err != nil {
		return nil, err
	}

	dbConn, err := db.Open(cfg, logger)
	if err != nil {
		return nil, err
	}

	userRepo := db.NewUserRepository(dbConn)
	ruleRepo := db.NewRuleRepository(dbConn)
	subjectRepo := db.NewSubjectRepository(dbConn)
	eventRepo := db.NewAlertEventRepository(dbConn)
	deliveryRepo := db.NewDeliveryRepository(dbConn)

	restClient := marketdata.NewRESTClient(cfg.MarketDataBaseURL, cfg.MarketDataTimeout, cfg.MarketDataRate, logger.Named("marketdata"))
	var stream *marketdata.StreamCache
	if cfg.MarketWSURL != "" {
		stream = marketdata.NewStreamCache(cfg.MarketWSURL, cfg.MarketWSReadTimeout, cfg.MarketWSMaxAge, logger.Named("stream"))
	}
	gateway := marketdata.NewGateway(stream, restClient, logger)

	api, err := telegram.NewAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, err
	}

	var natsConn *nats.Conn
	channels := make([]usecase.Channel, 0, len(cfg.DeliveryChannels))
	for _, name := range cfg.DeliveryChannels {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case telegram.ChannelName:
			channels = append(channels, telegram.NewChannel(api, logger.Named("telegram")))
		case natsinfra.ChannelName:
			if cfg.NATSURL == "" {
				return nil, fmt.Errorf("%w: nats requires NATS_URL", usecase.ErrUnknownChannel)
			}
			natsConn, err = natsinfra.Connect(cfg.NATSURL, "legendwatch")
			if err != nil {
				return nil, err
			}
			channels = append(channels, natsinfra.NewChannel(natsConn, cfg.NATSSubjectPrefix, logger.Named("nats")))
		case "":
		default:
			return nil, fmt.Errorf("%w: %q", usecase.ErrUnknownChannel, name)
		}
	}

	dispatcher := usecase.NewDeliveryDispatcher(
		deliveryRepo,
		eventRepo,
		userRepo,
		channels,
		usecase.DispatcherConfig{
			MaxAttempts: cfg.DeliveryMaxAttempts,
			Backoff:     usecase.Backoff{Base: cfg.DeliveryBackoffBase, Max: cfg.DeliveryBackoffMax},
		},
		time.Now,
		logger.Named("dispatcher"),
	)
	drainer := usecase.NewRetryDrainer(dispatcher, cfg.DeliveryRetryInterval, logger.Named("drainer"))

	tracker := usecase.NewStateTracker(subjectRepo, cfg.HistoryRetention, logger.Named("tracker"))
	scheduler := usecase.NewScheduler(
		usecase.SchedulerDeps{
			Subjects:   subjectRepo,
			Rules:      ruleRepo,
			Events:     eventRepo,
			Gateway:    gateway,
			Evaluator:  usecase.NewConditionEvaluator(),
			Tracker:    tracker,
			Throttle:   usecase.NewThrottlePolicy(deliveryRepo, time.Now),
			Dispatcher: dispatcher,
		},
		usecase.SchedulerConfig{
			PollInterval:      cfg.PollInterval,
			MarketHoursOnly:   cfg.MarketHoursOnly,
			Hours:             hours,
			InterSubjectDelay: cfg.InterSubjectDelay,
			CycleTimeout:      cfg.CycleTimeout,
		},
		time.Now,
		logger.Named("scheduler"),
	)

	userUC := usecase.NewUserUsecase(userRepo)
	watchlistUC := usecase.NewWatchlistUsecase(userRepo, subjectRepo, time.Now)
	ruleUC := usecase.NewRuleUsecase(userRepo, ruleRepo, tracker, time.Now)
	historyUC := usecase.NewHistoryUsecase(userRepo, eventRepo, deliveryRepo, time.Now)

	handlers := telegram.NewHandlers(userUC, watchlistUC, ruleUC, historyUC, scheduler, logger.Named("bot"))
	bot := telegram.NewBot(api, handlers, cfg.TelegramPollTimeout)

	var httpServer *httpapi.Server
	if cfg.HTTPAddr != "" {
		httpServer = httpapi.NewServer(cfg.HTTPAddr, httpapi.Deps{
			Scheduler:  scheduler,
			History:    historyUC,
			Subjects:   watchlistUC,
			Deliveries: dispatcher,
		}, logger.Named("http"))
	}

	cleanup := func() error {
		if natsConn != nil {
			if err := natsConn.Drain(); err != nil {
				logger.Warn("failed to drain nats", zap.Error(err))
			}
		}
		sqlDB, err := dbConn.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}

	return &App{
		bot:        bot,
		scheduler:  scheduler,
		dispatcher: dispatcher,
		drainer:    drainer,
		stream:     stream,
		httpServer: httpServer,
		logger:     logger,
		cleanupFn:  cleanup,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("legendwatch service starting")
	ctx, a.cancel = context.WithCancel(ctx)

	if a.stream != nil {
		a.goRun(func() { a.stream.Run(ctx) })
	}
	if err := a.drainer.Start(ctx); err != nil {
		return fmt.Errorf("start retry drainer: %w", err)
	}
	a.schedulerDone = make(chan struct{})
	go func() {
		defer close(a.schedulerDone)
		if err := a.scheduler.Run(ctx); err != nil {
			a.logger.Error("scheduler exited", zap.Error(err))
		}
	}()
	if a.httpServer != nil {
		a.goRun(func() {
			if err := a.httpServer.Run(ctx); err != nil {
				a.logger.Error("http server exited", zap.Error(err))
			}
		})
	}

	a.logger.Info("legendwatch service started")
	return a.bot.Start(ctx)
}

func (a *App) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

func (a *App) Shutdown() {
	a.logger.Info("legendwatch service shutting down")
	a.scheduler.Stop()
	if a.schedulerDone != nil {
		<-a.schedulerDone
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.drainer.Stop()
	a.wg.Wait()
	a.dispatcher.Close()
	if a.cleanupFn != nil {
		if err := a.cleanupFn(); err != nil {
			a.logger.Warn("failed to close database", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
