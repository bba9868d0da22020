package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/errands-backend/internal/logger"
	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/notify"
	"github.com/ignatzorin/errands-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errands-backend/internal/repository"
	"github.com/ignatzorin/errands-backend/internal/validation"
)

const codeLength = 6

// SendWarning возвращается клиенту, если код сохранён, но письмо не ушло.
const SendWarning = "не удалось отправить код, запросите его повторно"

// CodeRepository хранилище одноразовых кодов.
type CodeRepository interface {
	IssueCode(ctx context.Context, userID uuid.UUID, purpose, code string, expiresAt time.Time) (*models.VerificationCode, error)
	VerifyEmail(ctx context.Context, userID uuid.UUID, code string, now time.Time) error
	VerifyPhone(ctx context.Context, userID uuid.UUID, code string, now time.Time) error
	ResetPassword(ctx context.Context, userID uuid.UUID, code, passwordHash string, now time.Time) error
}

// UserLookup поиск пользователей.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// VerificationService выпускает и проверяет одноразовые коды.
type VerificationService struct {
	codes    CodeRepository
	users    UserLookup
	sender   notify.Sender
	ttl      time.Duration
	now      func() time.Time
	generate func() (string, error)
}

// NewVerificationService создаёт сервис. ttl задаёт срок действия кода.
func NewVerificationService(codes CodeRepository, users UserLookup, sender notify.Sender, ttl time.Duration) *VerificationService {
	return &VerificationService{
		codes:    codes,
		users:    users,
		sender:   sender,
		ttl:      ttl,
		now:      time.Now,
		generate: generateCode,
	}
}

// SendCode выпускает новый код для user и отправляет его на email,
// а код подтверждения телефона по SMS.
// Ошибка отправки не прерывает операцию: возвращается предупреждение.
func (s *VerificationService) SendCode(ctx context.Context, user *models.User, purpose string) (string, error) {
	code, err := s.generate()
	if err != nil {
		return "", apperror.Internal(err)
	}

	if _, err := s.codes.IssueCode(ctx, user.ID, purpose, code, s.now().Add(s.ttl)); err != nil {
		return "", mapError(err)
	}

	msg := notify.Message{
		Channel: notify.ChannelEmail,
		To:      user.Email,
		Subject: subjectFor(purpose),
		Body:    fmt.Sprintf("Ваш код: %s. Код действует %d минут.", code, int(s.ttl.Minutes())),
		Code:    code,
	}
	if purpose == models.CodePurposePhoneVerification {
		msg.Channel = notify.ChannelSMS
		msg.To = user.Phone
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		logger.Log.WithFields(logrus.Fields{
			"user_id": user.ID,
			"purpose": purpose,
			"error":   err.Error(),
		}).Warn("verification service: не удалось отправить код")
		return SendWarning, nil
	}

	return "", nil
}

// SendEmailVerification повторно отправляет код подтверждения email.
func (s *VerificationService) SendEmailVerification(ctx context.Context, userID uuid.UUID) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", mapError(err)
	}
	if user.EmailVerified {
		return "", apperror.StateConflict("email уже подтверждён")
	}
	return s.SendCode(ctx, user, models.CodePurposeEmailVerification)
}

// VerifyEmail проверяет код и отмечает email подтверждённым.
func (s *VerificationService) VerifyEmail(ctx context.Context, userID uuid.UUID, code string) error {
	code = strings.TrimSpace(code)
	if err := validateCodeFormat(code); err != nil {
		return err
	}
	return mapError(s.codes.VerifyEmail(ctx, userID, code, s.now()))
}

// SendPhoneVerification отправляет SMS-код подтверждения телефона.
func (s *VerificationService) SendPhoneVerification(ctx context.Context, userID uuid.UUID) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", mapError(err)
	}
	if user.PhoneVerified {
		return "", apperror.StateConflict("телефон уже подтверждён")
	}
	return s.SendCode(ctx, user, models.CodePurposePhoneVerification)
}

// VerifyPhone проверяет SMS-код и отмечает телефон подтверждённым.
func (s *VerificationService) VerifyPhone(ctx context.Context, userID uuid.UUID, code string) error {
	code = strings.TrimSpace(code)
	if err := validateCodeFormat(code); err != nil {
		return err
	}
	return mapError(s.codes.VerifyPhone(ctx, userID, code, s.now()))
}

// Resend повторно отправляет код подтверждения email или телефона.
func (s *VerificationService) Resend(ctx context.Context, userID uuid.UUID, channel string) (string, error) {
	switch channel {
	case notify.ChannelEmail:
		return s.SendEmailVerification(ctx, userID)
	case "phone", notify.ChannelSMS:
		return s.SendPhoneVerification(ctx, userID)
	default:
		return "", apperror.Validation("type должен быть email или phone")
	}
}

// ForgotPassword отправляет код сброса пароля. Для неизвестного email ничего не делает,
// чтобы не раскрывать наличие аккаунта.
func (s *VerificationService) ForgotPassword(ctx context.Context, email string) (string, error) {
	if err := validation.ValidateEmail(email); err != nil {
		return "", apperror.Validation(err.Error())
	}

	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repository.ErrUserNotFound) {
		return "", nil
	}
	if err != nil {
		return "", mapError(err)
	}

	return s.SendCode(ctx, user, models.CodePurposePasswordReset)
}

// ResetPassword меняет пароль по коду и завершает все сессии пользователя.
func (s *VerificationService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	code = strings.TrimSpace(code)
	if err := validateCodeFormat(code); err != nil {
		return err
	}
	if err := validation.ValidatePassword(newPassword); err != nil {
		return apperror.Validation(err.Error())
	}

	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repository.ErrUserNotFound) {
		return apperror.Validation("неверный код подтверждения")
	}
	if err != nil {
		return mapError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperror.Internal(err)
	}

	return mapError(s.codes.ResetPassword(ctx, user.ID, code, string(hash), s.now()))
}

func subjectFor(purpose string) string {
	switch purpose {
	case models.CodePurposePasswordReset:
		return "Сброс пароля"
	case models.CodePurposePhoneVerification:
		return "Подтверждение телефона"
	}
	return "Подтверждение email"
}

func validateCodeFormat(code string) error {
	if len(code) != codeLength {
		return apperror.Validation("код должен состоять из 6 цифр")
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return apperror.Validation("код должен состоять из 6 цифр")
		}
	}
	return nil
}

// generateCode возвращает равномерно распределённый 6-значный код.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("verification service: генерация кода %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
