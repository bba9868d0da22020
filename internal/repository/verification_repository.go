package repository

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/repository/common"
)

var (
	// ErrCodeNotFound нет активного кода для пользователя и назначения.
	ErrCodeNotFound = errors.New("verification code not found")
	// ErrCodeMismatch введённый код не совпадает с активным.
	ErrCodeMismatch = errors.New("verification code mismatch")
	// ErrCodeExpired срок действия кода истёк.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrCodeAttemptsExceeded код погашен после слишком многих неверных вводов.
	ErrCodeAttemptsExceeded = errors.New("verification code attempts exceeded")
)

// VerificationRepository хранит одноразовые коды, документы и принятие условий.
type VerificationRepository struct {
	db    *sqlx.DB
	users *UserRepository
}

func NewVerificationRepository(db *sqlx.DB, users *UserRepository) *VerificationRepository {
	return &VerificationRepository{db: db, users: users}
}

// IssueCode гасит предыдущие активные коды и сохраняет новый.
// У пользователя остаётся не больше одного активного кода на назначение.
func (r *VerificationRepository) IssueCode(ctx context.Context, userID uuid.UUID, purpose, code string, expiresAt time.Time) (*models.VerificationCode, error) {
	var vc models.VerificationCode
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE verification_codes SET used_at = NOW()
			WHERE user_id = $1 AND purpose = $2 AND used_at IS NULL
		`, userID, purpose); err != nil {
			return fmt.Errorf("verification repository: invalidate codes %w", err)
		}

		if err := tx.GetContext(ctx, &vc, `
			INSERT INTO verification_codes (user_id, purpose, code, expires_at)
			VALUES ($1, $2, $3, $4)
			RETURNING *
		`, userID, purpose, code, expiresAt); err != nil {
			return fmt.Errorf("verification repository: create code %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &vc, nil
}

// consume проверяет активный код под блокировкой и помечает его использованным.
// Срок действия сверяется с now при чтении. Идентификатор кода возвращается
// и при несовпадении, чтобы засчитать попытку.
func (r *VerificationRepository) consume(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, purpose, code string, now time.Time) (uuid.UUID, error) {
	var vc models.VerificationCode
	err := tx.GetContext(ctx, &vc, `
		SELECT * FROM verification_codes
		WHERE user_id = $1 AND purpose = $2 AND used_at IS NULL
		FOR UPDATE
	`, userID, purpose)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, ErrCodeNotFound
		}
		return uuid.Nil, fmt.Errorf("verification repository: get code %w", err)
	}

	if vc.Expired(now) {
		return vc.ID, ErrCodeExpired
	}
	if subtle.ConstantTimeCompare([]byte(vc.Code), []byte(code)) != 1 {
		return vc.ID, ErrCodeMismatch
	}

	if _, err := tx.ExecContext(ctx, `UPDATE verification_codes SET used_at = $2 WHERE id = $1`, vc.ID, now); err != nil {
		return vc.ID, fmt.Errorf("verification repository: mark used %w", err)
	}
	return vc.ID, nil
}

// redeem гасит код и в той же транзакции применяет apply.
// Неверный код засчитывается как попытка уже после отката транзакции.
func (r *VerificationRepository) redeem(ctx context.Context, userID uuid.UUID, purpose, code string, now time.Time, apply func(tx *sqlx.Tx) error) error {
	var codeID uuid.UUID
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		id, err := r.consume(ctx, tx, userID, purpose, code, now)
		codeID = id
		if err != nil {
			return err
		}
		return apply(tx)
	})
	if errors.Is(err, ErrCodeMismatch) {
		return r.recordFailedAttempt(ctx, codeID)
	}
	return err
}

// recordFailedAttempt увеличивает счётчик попыток и гасит код на MaxCodeAttempts.
func (r *VerificationRepository) recordFailedAttempt(ctx context.Context, codeID uuid.UUID) error {
	var attempts int
	err := r.db.GetContext(ctx, &attempts, `
		UPDATE verification_codes
		SET attempts = attempts + 1,
		    used_at = CASE WHEN attempts + 1 >= $2 THEN NOW() ELSE used_at END
		WHERE id = $1 AND used_at IS NULL
		RETURNING attempts
	`, codeID, models.MaxCodeAttempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCodeMismatch
		}
		return fmt.Errorf("verification repository: record attempt %w", err)
	}
	if attempts >= models.MaxCodeAttempts {
		return ErrCodeAttemptsExceeded
	}
	return ErrCodeMismatch
}

// VerifyEmail гасит код подтверждения и отмечает email подтверждённым.
func (r *VerificationRepository) VerifyEmail(ctx context.Context, userID uuid.UUID, code string, now time.Time) error {
	return r.redeem(ctx, userID, models.CodePurposeEmailVerification, code, now, func(tx *sqlx.Tx) error {
		return r.users.MarkEmailVerified(ctx, tx, userID)
	})
}

// VerifyPhone гасит SMS-код и отмечает телефон подтверждённым.
func (r *VerificationRepository) VerifyPhone(ctx context.Context, userID uuid.UUID, code string, now time.Time) error {
	return r.redeem(ctx, userID, models.CodePurposePhoneVerification, code, now, func(tx *sqlx.Tx) error {
		return r.users.MarkPhoneVerified(ctx, tx, userID)
	})
}

// ResetPassword гасит код сброса, меняет пароль и завершает все сессии.
func (r *VerificationRepository) ResetPassword(ctx context.Context, userID uuid.UUID, code, passwordHash string, now time.Time) error {
	return r.redeem(ctx, userID, models.CodePurposePasswordReset, code, now, func(tx *sqlx.Tx) error {
		if err := updateUser(ctx, tx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, userID, passwordHash); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_sessions WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("verification repository: delete sessions %w", err)
		}
		return nil
	})
}

// SubmitIdentityDocument сохраняет документ и отмечает личность подтверждённой.
func (r *VerificationRepository) SubmitIdentityDocument(ctx context.Context, doc *models.IdentityDocument) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, doc, `
			INSERT INTO identity_documents (user_id, country, document_type, file_url)
			VALUES ($1, $2, $3, $4)
			RETURNING *
		`, doc.UserID, doc.Country, doc.DocumentType, doc.FileURL); err != nil {
			return fmt.Errorf("verification repository: create document %w", err)
		}
		return updateUser(ctx, tx, `UPDATE users SET identity_verified = TRUE, updated_at = NOW() WHERE id = $1`, doc.UserID)
	})
}

// AcceptTerms фиксирует принятие версии условий. Повторное принятие не ошибка.
func (r *VerificationRepository) AcceptTerms(ctx context.Context, userID uuid.UUID, version string) (*models.TermsAcceptance, error) {
	var acceptance models.TermsAcceptance
	err := r.db.GetContext(ctx, &acceptance, `
		INSERT INTO terms_acceptances (user_id, version)
		VALUES ($1, $2)
		ON CONFLICT (user_id, version) DO UPDATE SET version = EXCLUDED.version
		RETURNING *
	`, userID, version)
	if err != nil {
		return nil, fmt.Errorf("verification repository: accept terms %w", err)
	}
	return &acceptance, nil
}
