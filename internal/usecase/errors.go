package usecase

import "errors"

var (
	ErrUserNotRegistered = errors.New("user not registered")
	ErrSubjectNotFound   = errors.New("watched subject not found")
	ErrRuleNotFound      = errors.New("rule not found")
	ErrAlertNotFound     = errors.New("alert not found")
	ErrInvalidSymbol     = errors.New("invalid symbol")
	ErrInvalidDuration   = errors.New("invalid duration")
)
