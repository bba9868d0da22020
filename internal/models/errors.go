package models

import "errors"

// Доменные ошибки, которые сервисы переводят в apperror.
var (
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrUnknownTransactionType = errors.New("unknown transaction type")
	ErrInvalidTransition      = errors.New("invalid state transition")
	ErrInvalidDecision        = errors.New("invalid application decision")
)
