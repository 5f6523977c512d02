package domain

import (
	"fmt"
	"time"
)

type User struct {
	ID             uint
	TelegramUserID int64
	Username       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

func (u User) Label() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return fmt.Sprintf("user #%d", u.ID)
}
