package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/Stockmasterflex/legendwatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWatchlistFixture() (*memStore, *fakeClock, *WatchlistUsecase) {
	store := newMemStore()
	clock := newFakeClock(time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC))
	return store, clock, NewWatchlistUsecase(store.Users(), store.Subjects(), clock.Now)
}

func TestWatchCreatesSubject(t *testing.T) {
	store, _, uc := newWatchlistFixture()
	store.addUser(7)

	subject, err := uc.Watch(context.Background(), 7, WatchRequest{Symbol: " aapl ", Entry: "100", Stop: "90", Target: "-", Frequency: "daily"})
	require.NoError(t, err)

	assert.Equal(t, "AAPL", subject.Symbol)
	assert.Equal(t, domain.StatusWatching, subject.Status)
	assert.Equal(t, domain.FrequencyDaily, subject.Frequency)
	assert.Equal(t, "100", subject.TargetEntry.String())
	assert.Nil(t, subject.TargetPrice)

	listed, err := uc.List(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, subject.ID, listed[0].ID)
}

func TestWatchRejectsBadInput(t *testing.T) {
	store, _, uc := newWatchlistFixture()
	store.addUser(7)

	cases := []struct {
		name string
		req  WatchRequest
		err  error
	}{
		{"unregistered", WatchRequest{Symbol: "AAPL", Entry: "1"}, ErrUserNotRegistered},
		{"symbol", WatchRequest{Symbol: "aa pl", Entry: "1"}, ErrInvalidSymbol},
		{"price", WatchRequest{Symbol: "AAPL", Entry: "abc"}, domain.ErrInvalidPrice},
		{"negative", WatchRequest{Symbol: "AAPL", Stop: "-5"}, domain.ErrInvalidPrice},
		{"no levels", WatchRequest{Symbol: "AAPL"}, domain.ErrInvalidPrice},
		{"stop above target", WatchRequest{Symbol: "AAPL", Stop: "120", Target: "110"}, domain.ErrInvalidPrice},
		{"frequency", WatchRequest{Symbol: "AAPL", Entry: "1", Frequency: "weekly"}, domain.ErrInvalidFrequency},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			telegramID := int64(7)
			if tc.err == ErrUserNotRegistered {
				telegramID = 99
			}
			_, err := uc.Watch(context.Background(), telegramID, tc.req)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestWatchlistOwnership(t *testing.T) {
	store, _, uc := newWatchlistFixture()
	alice := store.addUser(1)
	store.addUser(2)
	subject := store.addSubject(domain.WatchedSubject{OwnerID: alice.ID, Symbol: "AAPL", TargetStop: dec("90")})
	ctx := context.Background()

	assert.ErrorIs(t, uc.Unwatch(ctx, 2, subject.ID), ErrSubjectNotFound)
	assert.ErrorIs(t, uc.Rearm(ctx, 2, subject.ID), ErrSubjectNotFound)
	assert.ErrorIs(t, uc.Close(ctx, 1, 999), ErrSubjectNotFound)

	require.NoError(t, uc.Unwatch(ctx, 1, subject.ID))
	_, err := store.Subjects().GetByID(ctx, subject.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWatchlistRearmAndClose(t *testing.T) {
	store, _, uc := newWatchlistFixture()
	owner := store.addUser(1)
	alerted := time.Now()
	subject := store.addSubject(domain.WatchedSubject{OwnerID: owner.ID, Symbol: "AAPL", TargetStop: dec("90"), Status: domain.StatusTriggered, LastAlertedAt: &alerted})
	ctx := context.Background()

	require.NoError(t, uc.Rearm(ctx, 1, subject.ID))
	rearmed := store.subject(subject.ID)
	assert.Equal(t, domain.StatusWatching, rearmed.Status)
	assert.Nil(t, rearmed.LastAlertedAt)

	require.NoError(t, uc.Close(ctx, 1, subject.ID))
	assert.Equal(t, domain.StatusCompleted, store.subject(subject.ID).Status)
	require.NoError(t, uc.Close(ctx, 1, subject.ID))
}

func TestWatchlistMute(t *testing.T) {
	store, clock, uc := newWatchlistFixture()
	owner := store.addUser(1)
	subject := store.addSubject(domain.WatchedSubject{OwnerID: owner.ID, Symbol: "AAPL", TargetStop: dec("90")})
	ctx := context.Background()

	until, err := uc.Mute(ctx, 1, subject.ID, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(2*time.Hour), until)
	assert.True(t, store.subject(subject.ID).Muted(clock.Now()))

	_, err = uc.Mute(ctx, 1, subject.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidDuration)
	_, err = uc.MuteSubject(ctx, 999, time.Hour)
	assert.ErrorIs(t, err, ErrSubjectNotFound)

	require.NoError(t, uc.Unmute(ctx, 1, subject.ID))
	assert.Nil(t, store.subject(subject.ID).MutedUntil)
}

func TestNormalizeSymbol(t *testing.T) {
	for input, want := range map[string]string{"aapl": "AAPL", " brk.b ": "BRK.B", "BF-B": "BF-B"} {
		got, err := NormalizeSymbol(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}
	for _, input := range []string{"", "1ABC", "A B", "TOOLONGSYMBOLNAME1"} {
		_, err := NormalizeSymbol(input)
		assert.ErrorIs(t, err, ErrInvalidSymbol, input)
	}
}

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"2h":   2 * time.Hour,
		"90m":  90 * time.Minute,
		"1d":   24 * time.Hour,
		"0.5d": 12 * time.Hour,
		" 3D ": 72 * time.Hour,
	}
	for input, want := range cases {
		got, err := ParseDuration(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
	for _, input := range []string{"", "0s", "-1h", "xd", "0d", "soon"} {
		_, err := ParseDuration(input)
		assert.ErrorIs(t, err, ErrInvalidDuration, input)
	}
}
