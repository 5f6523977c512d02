package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Stockmasterflex/legendwatch/internal/domain"
	"github.com/shopspring/decimal"
)

type memStore struct {
	mu         sync.Mutex
	nextID     uint
	users      map[uint]domain.User
	rules      map[uint]domain.Rule
	subjects   map[uint]domain.WatchedSubject
	events     map[uint]domain.AlertEvent
	deliveries map[uint]domain.DeliveryAttempt

	failEventWrites int
}

func newMemStore() *memStore {
	return &memStore{
		users:      make(map[uint]domain.User),
		rules:      make(map[uint]domain.Rule),
		subjects:   make(map[uint]domain.WatchedSubject),
		events:     make(map[uint]domain.AlertEvent),
		deliveries: make(map[uint]domain.DeliveryAttempt),
	}
}

func (s *memStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *memStore) Users() *memUsers           { return &memUsers{s} }
func (s *memStore) Rules() *memRules           { return &memRules{s} }
func (s *memStore) Subjects() *memSubjects     { return &memSubjects{s} }
func (s *memStore) Events() *memEvents         { return &memEvents{s} }
func (s *memStore) Deliveries() *memDeliveries { return &memDeliveries{s} }

func (s *memStore) addUser(telegramID int64) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := domain.User{ID: s.id(), TelegramUserID: telegramID}
	s.users[user.ID] = user
	return user
}

func (s *memStore) addSubject(subject domain.WatchedSubject) domain.WatchedSubject {
	s.mu.Lock()
	defer s.mu.Unlock()
	subject.ID = s.id()
	if subject.Status == "" {
		subject.Status = domain.StatusWatching
	}
	if subject.Frequency == "" {
		subject.Frequency = domain.FrequencyOnce
	}
	s.subjects[subject.ID] = subject
	return subject
}

func (s *memStore) addRule(rule domain.Rule) domain.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule.ID = s.id()
	s.rules[rule.ID] = rule
	return rule
}

func (s *memStore) subject(id uint) domain.WatchedSubject {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subjects[id]
}

func (s *memStore) allEvents() []domain.AlertEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AlertEvent, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) allDeliveries() []domain.DeliveryAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DeliveryAttempt, 0, len(s.deliveries))
	for _, d := range s.deliveries {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memUsers struct{ *memStore }

func (r *memUsers) GetByTelegramID(ctx context.Context, telegramUserID int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.TelegramUserID == telegramUserID {
			user := u
			return &user, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memUsers) GetByID(ctx context.Context, userID uint) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (r *memUsers) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.ID = r.id()
	r.users[user.ID] = *user
	return nil
}

type memRules struct{ *memStore }

func (r *memRules) Create(ctx context.Context, rule *domain.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule.ID = r.id()
	r.rules[rule.ID] = *rule
	return nil
}

func (r *memRules) GetByID(ctx context.Context, ruleID uint) (*domain.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[ruleID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rule, nil
}

func (r *memRules) ListByOwner(ctx context.Context, ownerID uint) ([]domain.Rule, error) {
	return r.filter(func(rule domain.Rule) bool { return rule.OwnerID == ownerID }), nil
}

func (r *memRules) ListEnabled(ctx context.Context) ([]domain.Rule, error) {
	return r.filter(func(rule domain.Rule) bool { return rule.Enabled }), nil
}

func (r *memRules) filter(keep func(domain.Rule) bool) []domain.Rule {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Rule
	for _, rule := range r.rules {
		if keep(rule) {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memRules) update(ruleID uint, fn func(*domain.Rule)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[ruleID]
	if !ok {
		return domain.ErrNotFound
	}
	fn(&rule)
	r.rules[ruleID] = rule
	return nil
}

func (r *memRules) SetEnabled(ctx context.Context, ruleID uint, enabled bool) error {
	return r.update(ruleID, func(rule *domain.Rule) { rule.Enabled = enabled })
}

func (r *memRules) SetSnoozedUntil(ctx context.Context, ruleID uint, until *time.Time) error {
	return r.update(ruleID, func(rule *domain.Rule) { rule.SnoozedUntil = until })
}

func (r *memRules) RecordTrigger(ctx context.Context, ruleID uint, at time.Time) error {
	return r.update(ruleID, func(rule *domain.Rule) {
		rule.LastTriggeredAt = &at
		rule.TriggerCount++
	})
}

func (r *memRules) Delete(ctx context.Context, ruleID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[ruleID]; !ok {
		return domain.ErrNotFound
	}
	delete(r.rules, ruleID)
	return nil
}

type memSubjects struct{ *memStore }

func (r *memSubjects) Create(ctx context.Context, subject *domain.WatchedSubject) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	subject.ID = r.id()
	r.subjects[subject.ID] = *subject
	return nil
}

func (r *memSubjects) GetByID(ctx context.Context, subjectID uint) (*domain.WatchedSubject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subject, ok := r.subjects[subjectID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &subject, nil
}

func (r *memSubjects) list(keep func(domain.WatchedSubject) bool) []domain.WatchedSubject {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.WatchedSubject
	for _, subject := range r.subjects {
		if keep(subject) {
			out = append(out, subject)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memSubjects) ListByOwner(ctx context.Context, ownerID uint) ([]domain.WatchedSubject, error) {
	return r.list(func(s domain.WatchedSubject) bool { return s.OwnerID == ownerID }), nil
}

func (r *memSubjects) ListActive(ctx context.Context) ([]domain.WatchedSubject, error) {
	return r.list(func(s domain.WatchedSubject) bool { return !s.Status.Terminal() }), nil
}

func (r *memSubjects) update(subjectID uint, fn func(*domain.WatchedSubject) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	subject, ok := r.subjects[subjectID]
	if !ok {
		return domain.ErrNotFound
	}
	if err := fn(&subject); err != nil {
		return err
	}
	r.subjects[subjectID] = subject
	return nil
}

func (r *memSubjects) UpdateStatus(ctx context.Context, subjectID uint, from, to domain.SubjectStatus) error {
	return r.update(subjectID, func(s *domain.WatchedSubject) error {
		if s.Status != from {
			return domain.ErrStaleStatus
		}
		s.Status = to
		return nil
	})
}

func (r *memSubjects) SetMutedUntil(ctx context.Context, subjectID uint, until *time.Time) error {
	return r.update(subjectID, func(s *domain.WatchedSubject) error { s.MutedUntil = until; return nil })
}

func (r *memSubjects) MarkAlerted(ctx context.Context, subjectID uint, at time.Time) error {
	return r.update(subjectID, func(s *domain.WatchedSubject) error { s.LastAlertedAt = &at; return nil })
}

func (r *memSubjects) Rearm(ctx context.Context, subjectID uint) error {
	return r.update(subjectID, func(s *domain.WatchedSubject) error {
		s.Status = domain.StatusWatching
		s.LastAlertedAt = nil
		return nil
	})
}

func (r *memSubjects) Delete(ctx context.Context, subjectID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subjects[subjectID]; !ok {
		return domain.ErrNotFound
	}
	delete(r.subjects, subjectID)
	return nil
}

type memEvents struct{ *memStore }

var errStoreDown = errors.New("store unavailable")

func (r *memEvents) Create(ctx context.Context, event *domain.AlertEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failEventWrites > 0 {
		r.failEventWrites--
		return errStoreDown
	}
	event.ID = r.id()
	r.events[event.ID] = *event
	return nil
}

func (r *memEvents) GetByID(ctx context.Context, eventID uint) (*domain.AlertEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[eventID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &event, nil
}

func (r *memEvents) ListByOwner(ctx context.Context, ownerID uint, limit int) ([]domain.AlertEvent, error) {
	var out []domain.AlertEvent
	for _, event := range r.allEvents() {
		if event.OwnerID == ownerID {
			out = append(out, event)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memEvents) Acknowledge(ctx context.Context, eventID uint, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[eventID]
	if !ok {
		return domain.ErrNotFound
	}
	event.Acknowledged = true
	event.AcknowledgedAt = &at
	r.events[eventID] = event
	return nil
}

func (r *memEvents) Dismiss(ctx context.Context, eventID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[eventID]
	if !ok {
		return domain.ErrNotFound
	}
	event.Dismissed = true
	r.events[eventID] = event
	return nil
}

type memDeliveries struct{ *memStore }

func (r *memDeliveries) Create(ctx context.Context, attempt *domain.DeliveryAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.deliveries {
		if existing.AlertEventID == attempt.AlertEventID && existing.Channel == attempt.Channel {
			return errors.New("duplicate delivery attempt")
		}
	}
	attempt.ID = r.id()
	r.deliveries[attempt.ID] = *attempt
	return nil
}

func (r *memDeliveries) Update(ctx context.Context, attempt *domain.DeliveryAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.deliveries[attempt.ID]; !ok {
		return domain.ErrNotFound
	}
	r.deliveries[attempt.ID] = *attempt
	return nil
}

func (r *memDeliveries) GetByEventAndChannel(ctx context.Context, eventID uint, channel string) (*domain.DeliveryAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, attempt := range r.deliveries {
		if attempt.AlertEventID == eventID && attempt.Channel == channel {
			out := attempt
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memDeliveries) ListByEvent(ctx context.Context, eventID uint) ([]domain.DeliveryAttempt, error) {
	var out []domain.DeliveryAttempt
	for _, attempt := range r.allDeliveries() {
		if attempt.AlertEventID == eventID {
			out = append(out, attempt)
		}
	}
	return out, nil
}

func (r *memDeliveries) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryAttempt, error) {
	var out []domain.DeliveryAttempt
	for _, attempt := range r.allDeliveries() {
		if attempt.Due(now) {
			out = append(out, attempt)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memDeliveries) forKey(key domain.AlertKey) []domain.DeliveryAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.DeliveryAttempt
	for _, attempt := range r.deliveries {
		event, ok := r.events[attempt.AlertEventID]
		if ok && event.Key() == key {
			out = append(out, attempt)
		}
	}
	return out
}

func (r *memDeliveries) LastDelivered(ctx context.Context, key domain.AlertKey) (*time.Time, error) {
	var last *time.Time
	for _, attempt := range r.forKey(key) {
		if attempt.Status != domain.DeliverySent || attempt.DeliveredAt == nil {
			continue
		}
		if last == nil || attempt.DeliveredAt.After(*last) {
			at := *attempt.DeliveredAt
			last = &at
		}
	}
	return last, nil
}

func (r *memDeliveries) HasInFlight(ctx context.Context, key domain.AlertKey) (bool, error) {
	for _, attempt := range r.forKey(key) {
		if !attempt.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// scriptedChannel fails the first failures sends and succeeds afterwards;
// failures < 0 fails forever.
type scriptedChannel struct {
	name     string
	failures int

	mu    sync.Mutex
	calls int
	sent  []Notification
}

func (c *scriptedChannel) Name() string { return c.name }

func (c *scriptedChannel) Send(ctx context.Context, notification Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failures < 0 || c.calls <= c.failures {
		return errors.New(c.name + " unavailable")
	}
	c.sent = append(c.sent, notification)
	return nil
}

func (c *scriptedChannel) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeGateway struct {
	mu     sync.Mutex
	quotes map[string]*domain.Quote
	errs   map[string]error
	calls  []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{quotes: make(map[string]*domain.Quote), errs: make(map[string]error)}
}

func (g *fakeGateway) set(symbol string, quote *domain.Quote) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.quotes[symbol] = quote
}

func (g *fakeGateway) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, symbol)
	if err := g.errs[symbol]; err != nil {
		return nil, err
	}
	return g.quotes[symbol], nil
}

func (g *fakeGateway) symbolsRequested() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func dec(value string) *decimal.Decimal {
	d := decimal.RequireFromString(value)
	return &d
}

func quoteAt(at time.Time, price, volume, avgVolume string) domain.Quote {
	q := domain.Quote{Timestamp: at}
	if price != "" {
		q.Price = dec(price)
	}
	if volume != "" {
		q.Volume = dec(volume)
	}
	if avgVolume != "" {
		q.AvgVolume = dec(avgVolume)
	}
	return q
}
