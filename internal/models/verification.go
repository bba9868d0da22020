package models

import (
	"time"

	"github.com/google/uuid"
)

// Назначение одноразового кода
const (
	CodePurposeEmailVerification = "email_verification"
	CodePurposePasswordReset     = "password_reset"
	CodePurposePhoneVerification = "phone_verification"
)

// MaxCodeAttempts число неверных вводов, после которого код гасится.
const MaxCodeAttempts = 5

// VerificationCode одноразовый код. Срок действия проверяется при чтении.
type VerificationCode struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    uuid.UUID  `db:"user_id" json:"user_id"`
	Purpose   string     `db:"purpose" json:"purpose"`
	Code      string     `db:"code" json:"-"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	Attempts  int        `db:"attempts" json:"-"`
	UsedAt    *time.Time `db:"used_at" json:"used_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Expired сообщает, что срок действия кода истёк.
func (c *VerificationCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Статусы проверки документа
const (
	DocumentStatusSubmitted = "submitted"
	DocumentStatusApproved  = "approved"
	DocumentStatusRejected  = "rejected"
)

// IdentityDocument документ, загруженный для подтверждения личности.
type IdentityDocument struct {
	ID           uuid.UUID `db:"id" json:"id"`
	UserID       uuid.UUID `db:"user_id" json:"user_id"`
	Country      string    `db:"country" json:"country"`
	DocumentType string    `db:"document_type" json:"document_type"`
	FileURL      string    `db:"file_url" json:"file_url"`
	Status       string    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// DocumentType тип документа, принимаемого для проверки.
type DocumentType struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// DocumentTypes список принимаемых документов.
var DocumentTypes = []DocumentType{
	{Code: "national_id", Label: "National ID (NIN slip)"},
	{Code: "international_passport", Label: "International passport"},
	{Code: "drivers_license", Label: "Driver's license"},
	{Code: "voters_card", Label: "Voter's card"},
}

// IsValidDocumentType проверяет код типа документа.
func IsValidDocumentType(code string) bool {
	for _, dt := range DocumentTypes {
		if dt.Code == code {
			return true
		}
	}
	return false
}

// TermsAcceptance факт принятия условий использования.
type TermsAcceptance struct {
	UserID     uuid.UUID `db:"user_id" json:"user_id"`
	Version    string    `db:"version" json:"version"`
	AcceptedAt time.Time `db:"accepted_at" json:"accepted_at"`
}
