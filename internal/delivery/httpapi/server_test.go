package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Stockmasterflex/legendwatch/internal/domain"
	"github.com/Stockmasterflex/legendwatch/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockScheduler struct{ mock.Mock }

func (m *mockScheduler) Status() usecase.SchedulerStatus {
	return m.Called().Get(0).(usecase.SchedulerStatus)
}

func (m *mockScheduler) RunOnce(ctx context.Context) usecase.CycleReport {
	return m.Called(ctx).Get(0).(usecase.CycleReport)
}

type mockHistory struct{ mock.Mock }

func (m *mockHistory) OwnerHistory(ctx context.Context, ownerID uint, limit int) ([]usecase.AlertHistoryItem, error) {
	args := m.Called(ctx, ownerID, limit)
	items, _ := args.Get(0).([]usecase.AlertHistoryItem)
	return items, args.Error(1)
}

func (m *mockHistory) AcknowledgeEvent(ctx context.Context, eventID uint) error {
	return m.Called(ctx, eventID).Error(0)
}

func (m *mockHistory) DismissEvent(ctx context.Context, eventID uint) error {
	return m.Called(ctx, eventID).Error(0)
}

type mockMuter struct{ mock.Mock }

func (m *mockMuter) MuteSubject(ctx context.Context, subjectID uint, duration time.Duration) (time.Time, error) {
	args := m.Called(ctx, subjectID, duration)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *mockMuter) UnmuteSubject(ctx context.Context, subjectID uint) error {
	return m.Called(ctx, subjectID).Error(0)
}

type fixedStats usecase.DeliveryStats

func (s fixedStats) Stats() usecase.DeliveryStats { return usecase.DeliveryStats(s) }

type serverFixture struct {
	scheduler *mockScheduler
	history   *mockHistory
	muter     *mockMuter
	handler   http.Handler
}

func newServerFixture() *serverFixture {
	f := &serverFixture{scheduler: &mockScheduler{}, history: &mockHistory{}, muter: &mockMuter{}}
	server := NewServer(":0", Deps{
		Scheduler:  f.scheduler,
		History:    f.history,
		Subjects:   f.muter,
		Deliveries: fixedStats{Sent: 4, Failed: 2, TerminalFailed: 1, Retried: 1},
	}, zap.NewNop())
	f.handler = server.Handler()
	return f
}

func (f *serverFixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func TestHealthAndStats(t *testing.T) {
	f := newServerFixture()

	rec, payload := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", payload["status"])

	rec, payload = f.do(t, http.MethodGet, "/deliveries/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, payload["sent"])
	assert.EqualValues(t, 1, payload["terminal_failed"])
}

func TestSchedulerEndpoints(t *testing.T) {
	f := newServerFixture()
	f.scheduler.On("Status").Return(usecase.SchedulerStatus{Running: true, MarketOpen: true, Cycles: 12})
	f.scheduler.On("RunOnce", mock.Anything).Return(usecase.CycleReport{ID: "cycle-1", Manual: true, Symbols: 2, Alerts: 1})

	rec, payload := f.do(t, http.MethodGet, "/scheduler/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, payload["running"])
	assert.EqualValues(t, 12, payload["cycles"])

	rec, payload = f.do(t, http.MethodPost, "/scheduler/run", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cycle-1", payload["id"])
	assert.Equal(t, true, payload["manual"])
	f.scheduler.AssertExpectations(t)
}

func TestManualCycleOutlivesRequest(t *testing.T) {
	f := newServerFixture()
	detached := mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil })
	f.scheduler.On("RunOnce", detached).Return(usecase.CycleReport{ID: "cycle-2", Manual: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/scheduler/run", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	f.scheduler.AssertExpectations(t)
}

func TestOwnerAlerts(t *testing.T) {
	f := newServerFixture()
	items := []usecase.AlertHistoryItem{{
		Event:      domain.AlertEvent{ID: 3, Symbol: "AAPL", TriggerType: domain.TriggerStopHit},
		Deliveries: []domain.DeliveryAttempt{{ID: 1, Channel: "telegram", Status: domain.DeliverySent}},
	}}
	f.history.On("OwnerHistory", mock.Anything, uint(7), 5).Return(items, nil)
	f.history.On("OwnerHistory", mock.Anything, uint(8), 0).Return(nil, errors.New("db down"))

	rec, payload := f.do(t, http.MethodGet, "/owners/7/alerts?limit=5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, payload["count"])

	rec, _ = f.do(t, http.MethodGet, "/owners/8/alerts", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/owners/7/alerts?limit=-2", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = f.do(t, http.MethodGet, "/owners/zero/alerts", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcknowledgeAndDismiss(t *testing.T) {
	f := newServerFixture()
	f.history.On("AcknowledgeEvent", mock.Anything, uint(3)).Return(nil)
	f.history.On("AcknowledgeEvent", mock.Anything, uint(4)).Return(usecase.ErrAlertNotFound)
	f.history.On("DismissEvent", mock.Anything, uint(3)).Return(nil)

	rec, payload := f.do(t, http.MethodPost, "/alerts/3/ack", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, payload["acknowledged"])

	rec, _ = f.do(t, http.MethodPost, "/alerts/4/ack", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, payload = f.do(t, http.MethodPost, "/alerts/3/dismiss", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, payload["dismissed"])
	f.history.AssertExpectations(t)
}

func TestMuteEndpoints(t *testing.T) {
	f := newServerFixture()
	until := time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)
	f.muter.On("MuteSubject", mock.Anything, uint(5), 2*time.Hour).Return(until, nil)
	f.muter.On("MuteSubject", mock.Anything, uint(6), 24*time.Hour).Return(time.Time{}, usecase.ErrSubjectNotFound)
	f.muter.On("UnmuteSubject", mock.Anything, uint(5)).Return(nil)

	rec, payload := f.do(t, http.MethodPost, "/subjects/5/mute", `{"duration":"2h"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-03-02T17:00:00Z", payload["muted_until"])

	rec, _ = f.do(t, http.MethodPost, "/subjects/6/mute", `{"duration":"1d"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/subjects/5/mute", `{"duration":"soon"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/subjects/5/mute", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, payload = f.do(t, http.MethodDelete, "/subjects/5/mute", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, payload["muted_until"])
	f.muter.AssertExpectations(t)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	server := NewServer("127.0.0.1:0", Deps{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
