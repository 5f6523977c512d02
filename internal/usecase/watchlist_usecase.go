package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Stockmasterflex/legendwatch/internal/domain"
	"github.com/shopspring/decimal"
)

var symbolPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,14}$`)

type WatchRequest struct {
	Symbol    string
	Entry     string
	Stop      string
	Target    string
	Frequency string
}

type WatchlistUsecase struct {
	users    domain.UserRepository
	subjects domain.SubjectRepository
	now      func() time.Time
}

func NewWatchlistUsecase(users domain.UserRepository, subjects domain.SubjectRepository, now func() time.Time) *WatchlistUsecase {
	if now == nil {
		now = time.Now
	}
	return &WatchlistUsecase{users: users, subjects: subjects, now: now}
}

func (u *WatchlistUsecase) Watch(ctx context.Context, telegramUserID int64, req WatchRequest) (*domain.WatchedSubject, error) {
	owner, err := resolveOwner(ctx, u.users, telegramUserID)
	if err != nil {
		return nil, err
	}

	symbol, err := NormalizeSymbol(req.Symbol)
	if err != nil {
		return nil, err
	}
	entry, err := parseLevel(req.Entry)
	if err != nil {
		return nil, err
	}
	stop, err := parseLevel(req.Stop)
	if err != nil {
		return nil, err
	}
	target, err := parseLevel(req.Target)
	if err != nil {
		return nil, err
	}
	frequency, err := domain.ParseFrequency(req.Frequency)
	if err != nil {
		return nil, err
	}

	subject := &domain.WatchedSubject{
		OwnerID:     owner.ID,
		Symbol:      symbol,
		Status:      domain.StatusWatching,
		TargetEntry: entry,
		TargetStop:  stop,
		TargetPrice: target,
		Frequency:   frequency,
	}
	if err := subject.Validate(); err != nil {
		return nil, err
	}
	if err := u.subjects.Create(ctx, subject); err != nil {
		return nil, err
	}
	return subject, nil
}

func (u *WatchlistUsecase) List(ctx context.Context, telegramUserID int64) ([]domain.WatchedSubject, error) {
	owner, err := resolveOwner(ctx, u.users, telegramUserID)
	if err != nil {
		return nil, err
	}
	return u.subjects.ListByOwner(ctx, owner.ID)
}

func (u *WatchlistUsecase) Unwatch(ctx context.Context, telegramUserID int64, subjectID uint) error {
	if _, err := u.owned(ctx, telegramUserID, subjectID); err != nil {
		return err
	}
	return u.subjects.Delete(ctx, subjectID)
}

func (u *WatchlistUsecase) Rearm(ctx context.Context, telegramUserID int64, subjectID uint) error {
	if _, err := u.owned(ctx, telegramUserID, subjectID); err != nil {
		return err
	}
	return u.subjects.Rearm(ctx, subjectID)
}

func (u *WatchlistUsecase) Close(ctx context.Context, telegramUserID int64, subjectID uint) error {
	subject, err := u.owned(ctx, telegramUserID, subjectID)
	if err != nil {
		return err
	}
	if subject.Status == domain.StatusCompleted {
		return nil
	}
	return u.subjects.UpdateStatus(ctx, subjectID, subject.Status, domain.StatusCompleted)
}

func (u *WatchlistUsecase) Mute(ctx context.Context, telegramUserID int64, subjectID uint, duration time.Duration) (time.Time, error) {
	if _, err := u.owned(ctx, telegramUserID, subjectID); err != nil {
		return time.Time{}, err
	}
	return u.MuteSubject(ctx, subjectID, duration)
}

func (u *WatchlistUsecase) Unmute(ctx context.Context, telegramUserID int64, subjectID uint) error {
	if _, err := u.owned(ctx, telegramUserID, subjectID); err != nil {
		return err
	}
	return u.UnmuteSubject(ctx, subjectID)
}

func (u *WatchlistUsecase) MuteSubject(ctx context.Context, subjectID uint, duration time.Duration) (time.Time, error) {
	if duration <= 0 {
		return time.Time{}, ErrInvalidDuration
	}
	until := u.now().Add(duration)
	if err := u.subjects.SetMutedUntil(ctx, subjectID, &until); err != nil {
		return time.Time{}, mapSubjectErr(err)
	}
	return until, nil
}

func (u *WatchlistUsecase) UnmuteSubject(ctx context.Context, subjectID uint) error {
	return mapSubjectErr(u.subjects.SetMutedUntil(ctx, subjectID, nil))
}

func (u *WatchlistUsecase) owned(ctx context.Context, telegramUserID int64, subjectID uint) (*domain.WatchedSubject, error) {
	owner, err := resolveOwner(ctx, u.users, telegramUserID)
	if err != nil {
		return nil, err
	}
	subject, err := u.subjects.GetByID(ctx, subjectID)
	if err != nil {
		return nil, mapSubjectErr(err)
	}
	if subject.OwnerID != owner.ID {
		return nil, ErrSubjectNotFound
	}
	return subject, nil
}

func mapSubjectErr(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return ErrSubjectNotFound
	}
	return err
}

func NormalizeSymbol(input string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(input))
	if !symbolPattern.MatchString(symbol) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, input)
	}
	return symbol, nil
}

func parseLevel(input string) (*decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || trimmed == "-" {
		return nil, nil
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidPrice, input)
	}
	return &value, nil
}

func ParseDuration(input string) (time.Duration, error) {
	trimmed := strings.ToLower(strings.TrimSpace(input))
	if strings.HasSuffix(trimmed, "d") {
		days, err := decimal.NewFromString(strings.TrimSuffix(trimmed, "d"))
		if err != nil || !days.IsPositive() {
			return 0, ErrInvalidDuration
		}
		return time.Duration(days.Mul(decimal.NewFromInt(int64(24 * time.Hour))).IntPart()), nil
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil || d <= 0 {
		return 0, ErrInvalidDuration
	}
	return d, nil
}
