package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/Stockmasterflex/legendwatch/internal/domain"
)

type UserUsecase struct {
	users domain.UserRepository
}

func NewUserUsecase(users domain.UserRepository) *UserUsecase {
	return &UserUsecase{users: users}
}

func (u *UserUsecase) StartOrGetUser(ctx context.Context, telegramUserID int64, username string) (*domain.User, error) {
	user, err := u.users.GetByTelegramID(ctx, telegramUserID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	newUser := &domain.User{
		TelegramUserID: telegramUserID,
		Username:       strings.TrimPrefix(strings.TrimSpace(username), "@"),
	}
	if err := u.users.Create(ctx, newUser); err != nil {
		return nil, err
	}

	return newUser, nil
}

func resolveOwner(ctx context.Context, users domain.UserRepository, telegramUserID int64) (*domain.User, error) {
	user, err := users.GetByTelegramID(ctx, telegramUserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrUserNotRegistered
		}
		return nil, err
	}
	return user, nil
}
