package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Статусы escrow
const (
	EscrowStatusPending  = "pending"
	EscrowStatusHeld     = "held"
	EscrowStatusReleased = "released"
	EscrowStatusRefunded = "refunded"
)

// escrowTransitions допустимые переходы, released и refunded конечные.
var escrowTransitions = map[string][]string{
	EscrowStatusPending: {EscrowStatusHeld},
	EscrowStatusHeld:    {EscrowStatusReleased, EscrowStatusRefunded},
}

// Escrow удерживает средства заказчика по задаче до завершения или отмены.
type Escrow struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	TaskID     uuid.UUID       `db:"task_id" json:"task_id"`
	PosterID   uuid.UUID       `db:"poster_id" json:"poster_id"`
	WorkerID   *uuid.UUID      `db:"worker_id" json:"worker_id,omitempty"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	Status     string          `db:"status" json:"status"`
	HeldAt     *time.Time      `db:"held_at" json:"held_at,omitempty"`
	ReleasedAt *time.Time      `db:"released_at" json:"released_at,omitempty"`
	RefundedAt *time.Time      `db:"refunded_at" json:"refunded_at,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// CanTransitionEscrow проверяет, допустим ли переход между статусами escrow.
func CanTransitionEscrow(from, to string) bool {
	for _, next := range escrowTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (e *Escrow) transition(to string) error {
	if !CanTransitionEscrow(e.Status, to) {
		return fmt.Errorf("%w: escrow %s -> %s", ErrInvalidTransition, e.Status, to)
	}
	e.Status = to
	return nil
}

// Hold переводит escrow в held. Сумма фиксируется в момент удержания.
func (e *Escrow) Hold(workerID uuid.UUID, amount decimal.Decimal, now time.Time) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := e.transition(EscrowStatusHeld); err != nil {
		return err
	}
	e.WorkerID = &workerID
	e.Amount = amount
	e.HeldAt = &now
	e.UpdatedAt = now
	return nil
}

// Release переводит held -> released.
func (e *Escrow) Release(now time.Time) error {
	if err := e.transition(EscrowStatusReleased); err != nil {
		return err
	}
	e.ReleasedAt = &now
	e.UpdatedAt = now
	return nil
}

// Refund переводит held -> refunded.
func (e *Escrow) Refund(now time.Time) error {
	if err := e.transition(EscrowStatusRefunded); err != nil {
		return err
	}
	e.RefundedAt = &now
	e.UpdatedAt = now
	return nil
}
