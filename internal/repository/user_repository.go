package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/repository/common"
)

var (
	// ErrUserNotFound возвращается, когда запись пользователя не найдена.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken возвращается, если email уже зарегистрирован.
	ErrEmailTaken = errors.New("email already registered")
	// ErrPhoneTaken возвращается, если телефон уже зарегистрирован.
	ErrPhoneTaken = errors.New("phone already registered")
	// ErrSessionNotFound возвращается, когда сессия не найдена или истекла.
	ErrSessionNotFound = errors.New("session not found")
)

// UserRepository отвечает за работу с таблицами users, user_profiles и user_sessions.
type UserRepository struct {
	db     *sqlx.DB
	ledger *WalletRepository
}

// NewUserRepository создаёт экземпляр репозитория.
func NewUserRepository(db *sqlx.DB, ledger *WalletRepository) *UserRepository {
	return &UserRepository{db: db, ledger: ledger}
}

// Create создаёт пользователя вместе с кошельком и пустым профилем.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO users (email, phone, first_name, last_name, password_hash, role, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE)
			RETURNING *
		`
		if err := tx.GetContext(ctx, user, query,
			user.Email, user.Phone, user.FirstName, user.LastName, user.PasswordHash, user.Role,
		); err != nil {
			switch {
			case common.IsUniqueViolation(err, "users_email_key"):
				return ErrEmailTaken
			case common.IsUniqueViolation(err, "users_phone_key"):
				return ErrPhoneTaken
			}
			return fmt.Errorf("user repository: create %w", err)
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO user_profiles (user_id) VALUES ($1)`, user.ID); err != nil {
			return fmt.Errorf("user repository: create profile %w", err)
		}

		return r.ledger.EnsureWallet(ctx, tx, user.ID)
	})
}

// GetByEmail возвращает пользователя по email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return common.GetByField[models.User](ctx, r.db, "users", "email", email, ErrUserNotFound)
}

// GetByID возвращает пользователя по идентификатору.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return common.GetByID[models.User](ctx, r.db, "users", id, ErrUserNotFound)
}

// ExistsByEmailOrPhone проверяет занятость email и телефона до регистрации.
func (r *UserRepository) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (emailTaken, phoneTaken bool, err error) {
	var row struct {
		Email bool `db:"email_taken"`
		Phone bool `db:"phone_taken"`
	}
	query := `
		SELECT EXISTS(SELECT 1 FROM users WHERE email = $1) AS email_taken,
			EXISTS(SELECT 1 FROM users WHERE phone = $2) AS phone_taken
	`
	if err := r.db.GetContext(ctx, &row, query, email, phone); err != nil {
		return false, false, fmt.Errorf("user repository: exists %w", err)
	}
	return row.Email, row.Phone, nil
}

// UpdatePassword меняет хеш пароля и завершает все сессии пользователя.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := updateUser(ctx, tx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, userID, passwordHash); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_sessions WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("user repository: delete sessions %w", err)
		}
		return nil
	})
}

// UpdatePicture сохраняет ссылку на фото профиля.
func (r *UserRepository) UpdatePicture(ctx context.Context, userID uuid.UUID, url string) error {
	return updateUser(ctx, r.db, `UPDATE users SET picture_url = $2, updated_at = NOW() WHERE id = $1`, userID, url)
}

// UpdateLocation сохраняет разрешение на геолокацию и координаты.
func (r *UserRepository) UpdateLocation(ctx context.Context, user *models.User) error {
	return updateUser(ctx, r.db, `
		UPDATE users
		SET location_permission = $2, location_city = $3, latitude = $4, longitude = $5, updated_at = NOW()
		WHERE id = $1
	`, user.ID, user.LocationPermission, user.LocationCity, user.Latitude, user.Longitude)
}

// MarkEmailVerified отмечает email подтверждённым.
func (r *UserRepository) MarkEmailVerified(ctx context.Context, q sqlx.ExecerContext, userID uuid.UUID) error {
	return updateUser(ctx, q, `UPDATE users SET email_verified = TRUE, updated_at = NOW() WHERE id = $1`, userID)
}

// MarkPhoneVerified отмечает телефон подтверждённым.
func (r *UserRepository) MarkPhoneVerified(ctx context.Context, q sqlx.ExecerContext, userID uuid.UUID) error {
	return updateUser(ctx, q, `UPDATE users SET phone_verified = TRUE, updated_at = NOW() WHERE id = $1`, userID)
}

func updateUser(ctx context.Context, q sqlx.ExecerContext, query string, args ...interface{}) error {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("user repository: update %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("user repository: update rows affected %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// OnboardingState вычисляет флаги онбординга по текущим строкам.
// Кошелёк считается пополненным, если по нему есть хотя бы одна CREDIT проводка.
func (r *UserRepository) OnboardingState(ctx context.Context, userID uuid.UUID) (*models.OnboardingState, error) {
	var state models.OnboardingState
	query := `
		SELECT u.email_verified,
			u.identity_verified,
			u.picture_url IS NOT NULL AS picture_uploaded,
			u.location_permission IN ('allow', 'while_using') AS location_enabled,
			EXISTS(SELECT 1 FROM withdrawal_methods m WHERE m.user_id = u.id) AS withdrawal_method_added,
			EXISTS(
				SELECT 1 FROM wallet_transactions t
				JOIN wallets w ON w.id = t.wallet_id
				WHERE w.user_id = u.id AND t.type = 'CREDIT'
			) AS wallet_funded
		FROM users u
		WHERE u.id = $1
	`
	if err := r.db.GetContext(ctx, &state, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: onboarding state %w", err)
	}
	return &state, nil
}

// CreateSession сохраняет новую сессию пользователя.
func (r *UserRepository) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO user_sessions (user_id, refresh_token, user_agent, ip_address, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	if err := r.db.QueryRowxContext(
		ctx,
		query,
		session.UserID,
		session.RefreshToken,
		session.UserAgent,
		session.IPAddress,
		session.ExpiresAt,
	).Scan(&session.ID, &session.CreatedAt); err != nil {
		return fmt.Errorf("user repository: create session %w", err)
	}

	return nil
}

// GetSession возвращает действующую сессию по refresh токену.
func (r *UserRepository) GetSession(ctx context.Context, refreshToken string) (*models.Session, error) {
	var session models.Session
	query := `SELECT * FROM user_sessions WHERE refresh_token = $1 AND expires_at > NOW()`
	if err := r.db.GetContext(ctx, &session, query, refreshToken); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("user repository: get session %w", err)
	}
	return &session, nil
}

// DeleteSession удаляет сессию по refresh токену.
func (r *UserRepository) DeleteSession(ctx context.Context, refreshToken string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE refresh_token = $1`, refreshToken); err != nil {
		return fmt.Errorf("user repository: delete session %w", err)
	}

	return nil
}

// UpdateLastLoginAt обновляет время последнего входа пользователя.
func (r *UserRepository) UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = NOW() WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("user repository: update last login at %w", err)
	}

	return nil
}
