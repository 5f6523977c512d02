package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Stockmasterflex/legendwatch/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultEventWriteAttempts = 3
	defaultCycleTimeout       = 10 * time.Minute
)

type AlertDispatcher interface {
	Dispatch(ctx context.Context, event domain.AlertEvent) error
}

type SchedulerConfig struct {
	PollInterval       time.Duration
	MarketHoursOnly    bool
	Hours              MarketHours
	InterSubjectDelay  time.Duration
	CycleTimeout       time.Duration
	EventWriteAttempts int
}

type SchedulerDeps struct {
	Subjects   domain.SubjectRepository
	Rules      domain.RuleRepository
	Events     domain.AlertEventRepository
	Gateway    domain.MarketDataGateway
	Evaluator  *ConditionEvaluator
	Tracker    *StateTracker
	Throttle   *ThrottlePolicy
	Dispatcher AlertDispatcher
}

type CycleReport struct {
	ID         string    `json:"id"`
	Manual     bool      `json:"manual"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Symbols    int       `json:"symbols"`
	Subjects   int       `json:"subjects"`
	Rules      int       `json:"rules"`
	Alerts     int       `json:"alerts"`
	Suppressed int       `json:"suppressed"`
	Skipped    int       `json:"skipped"`
	Errors     int       `json:"errors"`
}

type SchedulerStatus struct {
	Running    bool         `json:"running"`
	MarketOpen bool         `json:"market_open"`
	Cycles     uint64       `json:"cycles"`
	LastCycle  *CycleReport `json:"last_cycle,omitempty"`
}

type symbolBatch struct {
	symbol   string
	subjects []domain.WatchedSubject
	rules    []domain.Rule
}

type Scheduler struct {
	deps   SchedulerDeps
	cfg    SchedulerConfig
	now    func() time.Time
	logger *zap.Logger

	cycleMu  sync.Mutex
	stopOnce sync.Once
	stopCh   chan struct{}

	statusMu sync.RWMutex
	running  bool
	cycles   uint64
	last     *CycleReport
}

func NewScheduler(deps SchedulerDeps, cfg SchedulerConfig, now func() time.Time, logger *zap.Logger) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = defaultCycleTimeout
	}
	if cfg.EventWriteAttempts <= 0 {
		cfg.EventWriteAttempts = defaultEventWriteAttempts
	}
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		deps:   deps,
		cfg:    cfg,
		now:    now,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Stop and ctx are only observed between cycles. A started cycle runs on a
// context detached from ctx, bounded by CycleTimeout.
func (s *Scheduler) Run(ctx context.Context) error {
	s.setRunning(true)
	defer s.setRunning(false)
	s.logger.Info("scheduler started", zap.Duration("poll_interval", s.cfg.PollInterval), zap.Bool("market_hours_only", s.cfg.MarketHoursOnly))

	for {
		select {
		case <-s.stopCh:
			s.logger.Info("scheduler stopped")
			return nil
		default:
		}

		now := s.now()
		if s.cfg.MarketHoursOnly && !s.cfg.Hours.IsOpen(now) {
			wait := s.cfg.Hours.NextOpen(now).Sub(now)
			if wait <= 0 || wait > s.cfg.PollInterval {
				wait = s.cfg.PollInterval
			}
			s.logger.Debug("market closed, sleeping", zap.Duration("wait", wait))
			if !s.wait(ctx, wait) {
				s.logger.Info("scheduler stopped")
				return nil
			}
			continue
		}

		s.runCycle(ctx, false)
		if !s.wait(ctx, s.cfg.PollInterval) {
			s.logger.Info("scheduler stopped")
			return nil
		}
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Scheduler) RunOnce(ctx context.Context) CycleReport {
	return s.runCycle(ctx, true)
}

func (s *Scheduler) Status() SchedulerStatus {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	status := SchedulerStatus{
		Running:    s.running,
		MarketOpen: !s.cfg.MarketHoursOnly || s.cfg.Hours.IsOpen(s.now()),
		Cycles:     s.cycles,
	}
	if s.last != nil {
		last := *s.last
		status.LastCycle = &last
	}
	return status
}

func (s *Scheduler) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.stopCh:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) setRunning(running bool) {
	s.statusMu.Lock()
	s.running = running
	s.statusMu.Unlock()
}

func (s *Scheduler) symbolLimiter() *rate.Limiter {
	if s.cfg.InterSubjectDelay <= 0 {
		return nil
	}
	limiter := rate.NewLimiter(rate.Every(s.cfg.InterSubjectDelay), 1)
	limiter.Allow()
	return limiter
}

func (s *Scheduler) runCycle(parent context.Context, manual bool) (report CycleReport) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.cfg.CycleTimeout)
	defer cancel()

	report = CycleReport{ID: uuid.NewString(), Manual: manual, StartedAt: s.now()}
	logger := s.logger.With(zap.String("cycle_id", report.ID))
	defer func() {
		report.FinishedAt = s.now()
		s.statusMu.Lock()
		s.cycles++
		last := report
		s.last = &last
		s.statusMu.Unlock()
		logger.Info(
			"cycle complete",
			zap.Int("symbols", report.Symbols),
			zap.Int("subjects", report.Subjects),
			zap.Int("rules", report.Rules),
			zap.Int("alerts", report.Alerts),
			zap.Int("suppressed", report.Suppressed),
			zap.Int("skipped", report.Skipped),
			zap.Int("errors", report.Errors),
			zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
		)
	}()

	subjects, err := s.deps.Subjects.ListActive(ctx)
	if err != nil {
		logger.Error("failed to load active subjects", zap.Error(err))
		report.Errors++
		return report
	}
	rules, err := s.deps.Rules.ListEnabled(ctx)
	if err != nil {
		logger.Error("failed to load enabled rules", zap.Error(err))
		report.Errors++
		rules = nil
	}

	batches := groupBySymbol(subjects, rules)
	report.Symbols = len(batches)
	limiter := s.symbolLimiter()
	for i, batch := range batches {
		if i > 0 && limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				logger.Warn("cycle aborted", zap.Error(err))
				report.Errors++
				return report
			}
		}
		s.processSymbol(ctx, logger, batch, &report)
	}
	return report
}

func groupBySymbol(subjects []domain.WatchedSubject, rules []domain.Rule) []symbolBatch {
	index := make(map[string]int)
	var batches []symbolBatch
	batchFor := func(symbol string) *symbolBatch {
		if i, ok := index[symbol]; ok {
			return &batches[i]
		}
		index[symbol] = len(batches)
		batches = append(batches, symbolBatch{symbol: symbol})
		return &batches[len(batches)-1]
	}

	for _, subject := range subjects {
		b := batchFor(subject.Symbol)
		b.subjects = append(b.subjects, subject)
	}

	sorted := append([]domain.Rule(nil), rules...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })
	for _, rule := range sorted {
		b := batchFor(rule.Symbol)
		b.rules = append(b.rules, rule)
	}
	return batches
}

func (s *Scheduler) processSymbol(ctx context.Context, logger *zap.Logger, batch symbolBatch, report *CycleReport) {
	logger = logger.With(zap.String("symbol", batch.symbol))

	var quote *domain.Quote
	err := isolate(func() error {
		var err error
		quote, err = s.deps.Gateway.GetQuote(ctx, batch.symbol)
		return err
	})
	if err != nil {
		logger.Warn("failed to fetch quote", zap.Error(err))
		report.Errors++
		return
	}
	if quote == nil || !quote.Valid() {
		logger.Debug("no usable quote, skipping")
		report.Skipped += len(batch.subjects) + len(batch.rules)
		return
	}
	current := *quote
	current.Symbol = batch.symbol
	if current.Timestamp.IsZero() {
		current.Timestamp = s.now()
	}
	history := s.deps.Tracker.History(batch.symbol)

	for _, subject := range batch.subjects {
		report.Subjects++
		result, err := guard(func() (outcome, error) { return s.processSubject(ctx, logger, subject, current) })
		tally(logger.With(zap.Uint("subject_id", subject.ID)), report, result, err)
	}
	for _, rule := range batch.rules {
		report.Rules++
		result, err := guard(func() (outcome, error) { return s.processRule(ctx, logger, rule, current, history) })
		tally(logger.With(zap.Uint("rule_id", rule.ID)), report, result, err)
	}

	s.deps.Tracker.Observe(batch.symbol, current)
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeAlert
	outcomeSuppressed
)

func guard(fn func() (outcome, error)) (result outcome, err error) {
	err = isolate(func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}

func tally(logger *zap.Logger, report *CycleReport, result outcome, err error) {
	if err != nil {
		logger.Error("processing failed", zap.Error(err))
		report.Errors++
	}
	switch result {
	case outcomeAlert:
		report.Alerts++
	case outcomeSuppressed:
		report.Suppressed++
	}
}

func isolate(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func (s *Scheduler) processSubject(ctx context.Context, logger *zap.Logger, subject domain.WatchedSubject, quote domain.Quote) (outcome, error) {
	transition, err := s.deps.Tracker.Apply(ctx, &subject, quote)
	if err != nil || transition == nil {
		return outcomeNone, err
	}

	decision, err := s.deps.Throttle.Decide(ctx, ThrottleRequest{
		Key:        domain.AlertKey{SourceKind: domain.SourceSubject, SourceID: subject.ID, TriggerType: transition.TriggerType},
		Frequency:  subject.Frequency,
		MutedUntil: subject.MutedUntil,
	})
	if err != nil {
		return outcomeNone, err
	}
	if !decision.Emit {
		logger.Info("alert suppressed", zap.Uint("subject_id", subject.ID), zap.String("trigger_type", string(transition.TriggerType)), zap.String("reason", decision.Reason))
		return outcomeSuppressed, nil
	}

	now := s.now()
	event := domain.AlertEvent{
		OwnerID:       subject.OwnerID,
		SourceKind:    domain.SourceSubject,
		SourceID:      subject.ID,
		Symbol:        subject.Symbol,
		TriggerType:   transition.TriggerType,
		TriggerValue:  transition.CurrentPrice,
		TriggeredAt:   now,
		Message:       renderTransitionMessage(subject, *transition),
		ConditionsMet: transitionSnapshot(*transition),
	}
	if err := s.emit(ctx, logger, &event); err != nil {
		return outcomeNone, err
	}
	if err := s.deps.Subjects.MarkAlerted(ctx, subject.ID, now); err != nil {
		logger.Warn("failed to mark subject alerted", zap.Uint("subject_id", subject.ID), zap.Error(err))
	}
	return outcomeAlert, nil
}

func (s *Scheduler) processRule(ctx context.Context, logger *zap.Logger, rule domain.Rule, quote domain.Quote, history []domain.Quote) (outcome, error) {
	now := s.now()
	if !rule.Evaluable(now) {
		return outcomeNone, nil
	}
	if !s.deps.Tracker.RuleDue(rule.ID, rule.CheckFrequency, now) {
		return outcomeNone, nil
	}

	eval := s.deps.Evaluator.Evaluate(rule.Conditions, rule.Logic, quote, history)
	if !s.deps.Tracker.RecordRuleMatch(rule.ID, eval.Matched, now) {
		return outcomeNone, nil
	}

	decision, err := s.deps.Throttle.Decide(ctx, ThrottleRequest{
		Key:             domain.AlertKey{SourceKind: domain.SourceRule, SourceID: rule.ID, TriggerType: domain.TriggerConditionMatch},
		Frequency:       rule.Frequency,
		Cooldown:        rule.CooldownPeriod,
		LastTriggeredAt: rule.LastTriggeredAt,
	})
	if err != nil {
		return outcomeNone, err
	}
	if !decision.Emit {
		logger.Info("alert suppressed", zap.Uint("rule_id", rule.ID), zap.String("reason", decision.Reason))
		return outcomeSuppressed, nil
	}

	if err := s.deps.Rules.RecordTrigger(ctx, rule.ID, now); err != nil {
		return outcomeNone, fmt.Errorf("record rule trigger: %w", err)
	}

	event := domain.AlertEvent{
		OwnerID:       rule.OwnerID,
		SourceKind:    domain.SourceRule,
		SourceID:      rule.ID,
		Symbol:        rule.Symbol,
		TriggerType:   domain.TriggerConditionMatch,
		TriggerValue:  *quote.Price,
		TriggeredAt:   now,
		Message:       renderRuleMessage(rule, eval),
		ConditionsMet: eval.ConditionsMet,
	}
	if err := s.emit(ctx, logger, &event); err != nil {
		return outcomeNone, err
	}
	return outcomeAlert, nil
}

func (s *Scheduler) emit(ctx context.Context, logger *zap.Logger, event *domain.AlertEvent) error {
	var err error
	for i := 1; i <= s.cfg.EventWriteAttempts; i++ {
		if err = s.deps.Events.Create(ctx, event); err == nil {
			break
		}
		logger.Warn("failed to store alert event", zap.Int("attempt", i), zap.Error(err))
		if i < s.cfg.EventWriteAttempts && !sleepContext(ctx, time.Duration(i)*100*time.Millisecond) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("store alert event: %w", err)
	}

	logger.Info(
		"alert emitted",
		zap.Uint("alert_event_id", event.ID),
		zap.String("source", string(event.SourceKind)),
		zap.Uint("source_id", event.SourceID),
		zap.String("trigger_type", string(event.TriggerType)),
	)
	if err := s.deps.Dispatcher.Dispatch(ctx, *event); err != nil {
		return fmt.Errorf("dispatch alert %d: %w", event.ID, err)
	}
	return nil
}

func transitionSnapshot(t Transition) []domain.ConditionResult {
	var results []domain.ConditionResult
	switch t.TriggerType {
	case domain.TriggerBreakout:
		results = append(results, domain.ConditionResult{Condition: fmt.Sprintf("price %s > entry %s", t.CurrentPrice, t.Level), Met: true})
		if t.VolumeRatio != nil {
			results = append(results, domain.ConditionResult{Condition: fmt.Sprintf("relative_volume %s > %s", t.VolumeRatio.StringFixed(2), breakoutVolumeRatio), Met: true})
		}
	case domain.TriggerStopHit:
		results = append(results, domain.ConditionResult{Condition: fmt.Sprintf("price %s < stop %s", t.CurrentPrice, t.Level), Met: true})
	case domain.TriggerTargetHit:
		results = append(results, domain.ConditionResult{Condition: fmt.Sprintf("price %s > target %s", t.CurrentPrice, t.Level), Met: true})
	}
	return results
}
