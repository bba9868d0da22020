package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User описывает пользователя платформы. Баланс хранится только в Wallet.
type User struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	Email              string     `db:"email" json:"email"`
	Phone              string     `db:"phone" json:"phone"`
	FirstName          string     `db:"first_name" json:"first_name"`
	LastName           string     `db:"last_name" json:"last_name"`
	PasswordHash       string     `db:"password_hash" json:"-"`
	Role               string     `db:"role" json:"role"`
	IsActive           bool       `db:"is_active" json:"is_active"`
	EmailVerified      bool       `db:"email_verified" json:"email_verified"`
	PhoneVerified      bool       `db:"phone_verified" json:"phone_verified"`
	IdentityVerified   bool       `db:"identity_verified" json:"identity_verified"`
	PictureURL         *string    `db:"picture_url" json:"picture_url,omitempty"`
	LocationPermission string     `db:"location_permission" json:"location_permission"`
	LocationCity       *string    `db:"location_city" json:"location_city,omitempty"`
	Latitude           *float64   `db:"latitude" json:"latitude,omitempty"`
	Longitude          *float64   `db:"longitude" json:"longitude,omitempty"`
	LastLoginAt        *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName возвращает имя и фамилию.
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// UserProfile агрегированный рейтинг исполнителя.
type UserProfile struct {
	UserID       uuid.UUID       `db:"user_id" json:"user_id"`
	Rating       decimal.Decimal `db:"rating" json:"rating"`
	ReviewsCount int             `db:"reviews_count" json:"reviews_count"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// Session представляет сохранённую сессию пользователя.
type Session struct {
	ID           uuid.UUID `db:"id" json:"id"`
	UserID       uuid.UUID `db:"user_id" json:"user_id"`
	RefreshToken string    `db:"refresh_token" json:"refresh_token"`
	UserAgent    *string   `db:"user_agent" json:"user_agent,omitempty"`
	IPAddress    *string   `db:"ip_address" json:"ip_address,omitempty"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Review отзыв заказчика об исполнителе по завершённому отклику.
type Review struct {
	ID            uuid.UUID `db:"id" json:"id"`
	ApplicationID uuid.UUID `db:"application_id" json:"application_id"`
	TaskID        uuid.UUID `db:"task_id" json:"task_id"`
	ReviewerID    uuid.UUID `db:"reviewer_id" json:"reviewer_id"`
	RunnerID      uuid.UUID `db:"runner_id" json:"runner_id"`
	Rating        int       `db:"rating" json:"rating"`
	Comment       *string   `db:"comment" json:"comment,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// RunnerDetails карточка исполнителя, видимая заказчику задачи.
type RunnerDetails struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	FirstName        string          `db:"first_name" json:"first_name"`
	LastName         string          `db:"last_name" json:"last_name"`
	Phone            string          `db:"phone" json:"phone"`
	PictureURL       *string         `db:"picture_url" json:"picture_url,omitempty"`
	LocationCity     *string         `db:"location_city" json:"location_city,omitempty"`
	IdentityVerified bool            `db:"identity_verified" json:"identity_verified"`
	Rating           decimal.Decimal `db:"rating" json:"rating"`
	ReviewsCount     int             `db:"reviews_count" json:"reviews_count"`
	CompletedErrands int             `db:"completed_errands" json:"completed_errands"`
}
