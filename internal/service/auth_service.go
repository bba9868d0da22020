package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/errands-backend/internal/logger"
	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errands-backend/internal/repository"
	"github.com/ignatzorin/errands-backend/internal/validation"
)

// AuthRepository описывает зависимости AuthService от слоя хранилища.
type AuthRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, bool, error)
	OnboardingState(ctx context.Context, userID uuid.UUID) (*models.OnboardingState, error)
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, refreshToken string) (*models.Session, error)
	DeleteSession(ctx context.Context, refreshToken string) error
	UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error
}

// CodeSender выпускает одноразовый код и отправляет его пользователю.
type CodeSender interface {
	SendCode(ctx context.Context, user *models.User, purpose string) (string, error)
}

// AuthService инкапсулирует бизнес-логику регистрации и аутентификации.
type AuthService struct {
	repo         AuthRepository
	tokenManager *TokenManager
	codes        CodeSender
}

// SignupInput содержит данные пользователя при регистрации.
type SignupInput struct {
	Email     string
	Phone     string
	FirstName string
	LastName  string
	Password  string
	Role      string
}

// LoginInput содержит данные для входа.
type LoginInput struct {
	Email    string
	Password string
}

// AuthResult возвращает итог регистрации или авторизации.
type AuthResult struct {
	User      *models.User
	TokenPair *TokenPair
	// Warning заполнен, если код подтверждения не удалось отправить.
	Warning string
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(repo AuthRepository, tokenManager *TokenManager, codes CodeSender) *AuthService {
	return &AuthService{
		repo:         repo,
		tokenManager: tokenManager,
		codes:        codes,
	}
}

// Signup регистрирует пользователя, создаёт кошелёк и отправляет код подтверждения email.
// Выданный токен позволяет только проходить онбординг.
func (s *AuthService) Signup(ctx context.Context, in SignupInput, meta map[string]string) (*AuthResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	if err := validateSignup(&in); err != nil {
		return nil, err
	}

	emailTaken, phoneTaken, err := s.repo.ExistsByEmailOrPhone(ctx, in.Email, in.Phone)
	if err != nil {
		return nil, mapError(err)
	}
	if emailTaken {
		return nil, mapError(repository.ErrEmailTaken)
	}
	if phoneTaken {
		return nil, mapError(repository.ErrPhoneTaken)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	user := &models.User{
		Email:        in.Email,
		Phone:        in.Phone,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: string(passHash),
		Role:         in.Role,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, mapError(err)
	}

	tokenPair, err := s.startSession(ctx, user, ScopeOnboarding, meta)
	if err != nil {
		return nil, err
	}

	warning, err := s.codes.SendCode(ctx, user, models.CodePurposeEmailVerification)
	if err != nil {
		// пользователь уже создан, код можно запросить повторно
		logger.Log.WithFields(logrus.Fields{
			"user_id": user.ID,
			"error":   err.Error(),
		}).Warn("auth service: не удалось выпустить код подтверждения")
		warning = SendWarning
	}

	return &AuthResult{User: user, TokenPair: tokenPair, Warning: warning}, nil
}

// Login проверяет учётные данные и пускает только пользователей, прошедших онбординг.
func (s *AuthService) Login(ctx context.Context, in LoginInput, meta map[string]string) (*AuthResult, error) {
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, apperror.Validation(err.Error())
	}

	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(in.Email)))
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, apperror.ErrInvalidCredentials
	}
	if err != nil {
		return nil, mapError(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, apperror.ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, apperror.Forbidden("аккаунт заблокирован")
	}

	state, err := s.repo.OnboardingState(ctx, user.ID)
	if err != nil {
		return nil, mapError(err)
	}
	if check, pending := state.NextStep(); pending {
		// токены онбординга дают пройти оставшиеся шаги
		onboardingPair, err := s.startSession(ctx, user, ScopeOnboarding, meta)
		if err != nil {
			return nil, err
		}
		return nil, apperror.New(apperror.ErrCodeOnboardingRequired, check.Message).
			WithDetail("next_step", check.Step).
			WithDetail("tokens", onboardingPair)
	}

	if err := s.repo.UpdateLastLoginAt(ctx, user.ID); err != nil {
		logger.Log.WithFields(logrus.Fields{
			"user_id": user.ID,
			"error":   err.Error(),
		}).Warn("auth service: не удалось обновить last_login_at")
	}

	tokenPair, err := s.startSession(ctx, user, ScopeFull, meta)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: user, TokenPair: tokenPair}, nil
}

// Refresh выпускает новую пару токенов с той же областью действия и отзывает старую сессию.
func (s *AuthService) Refresh(ctx context.Context, oldToken string, meta map[string]string) (*TokenPair, error) {
	userID, scope, err := s.tokenManager.ParseRefresh(oldToken)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeUnauthorized, "refresh токен невалиден")
	}

	session, err := s.repo.GetSession(ctx, oldToken)
	if err != nil {
		return nil, mapError(err)
	}
	if session.UserID != userID {
		return nil, apperror.New(apperror.ErrCodeUnauthorized, "refresh токен невалиден")
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}
	if !user.IsActive {
		return nil, apperror.Forbidden("аккаунт заблокирован")
	}

	if err := s.repo.DeleteSession(ctx, oldToken); err != nil {
		return nil, mapError(err)
	}

	return s.startSession(ctx, user, scope, meta)
}

// IssueOnboardingTokens выдаёт токен онбординга, например после подтверждения email.
func (s *AuthService) IssueOnboardingTokens(ctx context.Context, userID uuid.UUID, meta map[string]string) (*TokenPair, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}
	return s.startSession(ctx, user, ScopeOnboarding, meta)
}

// Logout завершает сессию. Повторный выход не считается ошибкой.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return apperror.Validation("refresh_token обязателен")
	}
	return mapError(s.repo.DeleteSession(ctx, refreshToken))
}

// Me возвращает текущего пользователя.
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}
	return user, nil
}

func (s *AuthService) startSession(ctx context.Context, user *models.User, scope string, meta map[string]string) (*TokenPair, error) {
	tokenPair, refreshExp, err := s.tokenManager.GeneratePair(user, scope)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	session := &models.Session{
		UserID:       user.ID,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    refreshExp,
	}

	if meta != nil {
		if ua, ok := meta["user_agent"]; ok && ua != "" {
			session.UserAgent = &ua
		}
		if ip, ok := meta["ip"]; ok && ip != "" {
			session.IPAddress = &ip
		}
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, mapError(err)
	}

	return tokenPair, nil
}

func validateSignup(in *SignupInput) error {
	if err := validation.ValidateEmail(in.Email); err != nil {
		return apperror.Validation(err.Error())
	}
	if err := validation.ValidatePhone(in.Phone); err != nil {
		return apperror.Validation(err.Error())
	}
	if err := validation.ValidatePersonName("имя", in.FirstName); err != nil {
		return apperror.Validation(err.Error())
	}
	if err := validation.ValidatePersonName("фамилия", in.LastName); err != nil {
		return apperror.Validation(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return apperror.Validation(err.Error())
	}

	if in.Role == "" {
		in.Role = models.RoleRequester
	}
	if _, ok := models.ValidRoles[in.Role]; !ok {
		return apperror.Validation("роль может быть requester или runner")
	}
	return nil
}
