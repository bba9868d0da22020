package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errands-backend/internal/repository"
)

// mockAuthRepository реализует AuthRepository для тестов.
type mockAuthRepository struct {
	usersByEmail map[string]*models.User
	usersByID    map[uuid.UUID]*models.User
	onboarding   map[uuid.UUID]*models.OnboardingState
	sessions     map[string]*models.Session
}

func newMockAuthRepository() *mockAuthRepository {
	return &mockAuthRepository{
		usersByEmail: make(map[string]*models.User),
		usersByID:    make(map[uuid.UUID]*models.User),
		onboarding:   make(map[uuid.UUID]*models.OnboardingState),
		sessions:     make(map[string]*models.Session),
	}
}

func (m *mockAuthRepository) Create(ctx context.Context, user *models.User) error {
	user.ID = uuid.New()
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.IsActive = true
	user.LocationPermission = models.LocationPermissionUnset
	m.usersByEmail[user.Email] = user
	m.usersByID[user.ID] = user
	m.onboarding[user.ID] = &models.OnboardingState{}
	return nil
}

func (m *mockAuthRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := m.usersByEmail[email]; ok {
		return user, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockAuthRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if user, ok := m.usersByID[id]; ok {
		return user, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockAuthRepository) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, bool, error) {
	_, emailTaken := m.usersByEmail[email]
	phoneTaken := false
	for _, u := range m.usersByID {
		if u.Phone == phone {
			phoneTaken = true
		}
	}
	return emailTaken, phoneTaken, nil
}

func (m *mockAuthRepository) OnboardingState(ctx context.Context, userID uuid.UUID) (*models.OnboardingState, error) {
	if state, ok := m.onboarding[userID]; ok {
		return state, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockAuthRepository) CreateSession(ctx context.Context, session *models.Session) error {
	session.ID = uuid.New()
	session.CreatedAt = time.Now()
	m.sessions[session.RefreshToken] = session
	return nil
}

func (m *mockAuthRepository) GetSession(ctx context.Context, refreshToken string) (*models.Session, error) {
	if session, ok := m.sessions[refreshToken]; ok {
		return session, nil
	}
	return nil, repository.ErrSessionNotFound
}

func (m *mockAuthRepository) DeleteSession(ctx context.Context, refreshToken string) error {
	delete(m.sessions, refreshToken)
	return nil
}

func (m *mockAuthRepository) UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error {
	if user, ok := m.usersByID[userID]; ok {
		now := time.Now()
		user.LastLoginAt = &now
	}
	return nil
}

// stubCodeSender запоминает, кому отправлялся код.
type stubCodeSender struct {
	sentTo  []string
	warning string
}

func (s *stubCodeSender) SendCode(ctx context.Context, user *models.User, purpose string) (string, error) {
	s.sentTo = append(s.sentTo, user.Email)
	return s.warning, nil
}

func newTestAuthService() (*AuthService, *mockAuthRepository, *stubCodeSender, *TokenManager) {
	repo := newMockAuthRepository()
	codes := &stubCodeSender{}
	tokens := NewTokenManager("access-secret", "refresh-secret", time.Minute, time.Hour)
	return NewAuthService(repo, tokens, codes), repo, codes, tokens
}

func validSignup() SignupInput {
	return SignupInput{
		Email:     "Ada@Example.com",
		Phone:     "+2348012345678",
		FirstName: "Ada",
		LastName:  "Obi",
		Password:  "Secret123",
	}
}

func TestAuthService_Signup(t *testing.T) {
	service, repo, codes, tokens := newTestAuthService()

	res, err := service.Signup(context.Background(), validSignup(), map[string]string{"ip": "127.0.0.1"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, res.User.ID)
	assert.Equal(t, "ada@example.com", res.User.Email)
	assert.Equal(t, models.RoleRequester, res.User.Role)
	assert.Empty(t, res.Warning)
	assert.Equal(t, []string{"ada@example.com"}, codes.sentTo)
	assert.Len(t, repo.sessions, 1)

	claims, err := tokens.ParseAccess(res.TokenPair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, ScopeOnboarding, claims.Scope)
	assert.Equal(t, res.User.ID, claims.UserID)
}

func TestAuthService_Signup_SendWarning(t *testing.T) {
	service, _, codes, _ := newTestAuthService()
	codes.warning = SendWarning

	res, err := service.Signup(context.Background(), validSignup(), nil)

	require.NoError(t, err)
	assert.Equal(t, SendWarning, res.Warning)
}

func TestAuthService_Signup_Conflicts(t *testing.T) {
	service, _, _, _ := newTestAuthService()
	ctx := context.Background()

	_, err := service.Signup(ctx, validSignup(), nil)
	require.NoError(t, err)

	_, err = service.Signup(ctx, validSignup(), nil)
	assert.True(t, apperror.IsStateConflict(err))

	other := validSignup()
	other.Email = "other@example.com"
	_, err = service.Signup(ctx, other, nil)
	assert.True(t, apperror.IsStateConflict(err), "телефон уже занят")
}

func TestAuthService_Signup_Validation(t *testing.T) {
	service, _, _, _ := newTestAuthService()

	tests := []struct {
		name   string
		mutate func(*SignupInput)
	}{
		{"bad email", func(in *SignupInput) { in.Email = "nope" }},
		{"bad phone", func(in *SignupInput) { in.Phone = "123" }},
		{"weak password", func(in *SignupInput) { in.Password = "password" }},
		{"unknown role", func(in *SignupInput) { in.Role = "admin" }},
		{"empty first name", func(in *SignupInput) { in.FirstName = " " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validSignup()
			tt.mutate(&in)
			_, err := service.Signup(context.Background(), in, nil)
			assert.True(t, apperror.IsValidation(err), "got %v", err)
		})
	}
}

func TestAuthService_Login_RequiresOnboarding(t *testing.T) {
	service, repo, _, tokens := newTestAuthService()
	ctx := context.Background()

	res, err := service.Signup(ctx, validSignup(), nil)
	require.NoError(t, err)

	// всё, кроме пополнения кошелька
	*repo.onboarding[res.User.ID] = models.OnboardingState{
		EmailVerified:         true,
		IdentityVerified:      true,
		PictureUploaded:       true,
		LocationEnabled:       true,
		WithdrawalMethodAdded: true,
	}

	_, err = service.Login(ctx, LoginInput{Email: "ada@example.com", Password: "Secret123"}, nil)

	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.ErrCodeOnboardingRequired, appErr.Code)
	assert.Equal(t, 403, appErr.HTTPStatus)
	assert.Equal(t, models.StepFundWallet, appErr.Details["next_step"])
	assert.Contains(t, appErr.Message, "пополните кошелёк")

	pair, ok := appErr.Details["tokens"].(*TokenPair)
	require.True(t, ok)
	claims, err := tokens.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, ScopeOnboarding, claims.Scope)
}

func TestAuthService_Login_Success(t *testing.T) {
	service, repo, _, tokens := newTestAuthService()
	ctx := context.Background()

	res, err := service.Signup(ctx, validSignup(), nil)
	require.NoError(t, err)
	*repo.onboarding[res.User.ID] = models.OnboardingState{
		EmailVerified: true, IdentityVerified: true, PictureUploaded: true,
		LocationEnabled: true, WithdrawalMethodAdded: true, WalletFunded: true,
	}

	loginRes, err := service.Login(ctx, LoginInput{Email: "ADA@example.com", Password: "Secret123"}, nil)
	require.NoError(t, err)

	claims, err := tokens.ParseAccess(loginRes.TokenPair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, ScopeFull, claims.Scope)
	assert.NotNil(t, repo.usersByID[res.User.ID].LastLoginAt)
}

func TestAuthService_Login_InvalidCredentials(t *testing.T) {
	service, _, _, _ := newTestAuthService()
	ctx := context.Background()

	_, err := service.Signup(ctx, validSignup(), nil)
	require.NoError(t, err)

	_, err = service.Login(ctx, LoginInput{Email: "ada@example.com", Password: "Wrong1234"}, nil)
	assert.Equal(t, apperror.ErrInvalidCredentials, err)

	_, err = service.Login(ctx, LoginInput{Email: "ghost@example.com", Password: "Secret123"}, nil)
	assert.Equal(t, apperror.ErrInvalidCredentials, err)
}

func TestAuthService_Refresh(t *testing.T) {
	service, repo, _, tokens := newTestAuthService()
	ctx := context.Background()

	hash, _ := bcrypt.GenerateFromPassword([]byte("Secret123"), bcrypt.MinCost)
	user := &models.User{
		ID:           uuid.New(),
		Email:        "user@example.com",
		PasswordHash: string(hash),
		Role:         models.RoleRunner,
		IsActive:     true,
	}
	repo.usersByEmail[user.Email] = user
	repo.usersByID[user.ID] = user

	tokenPair, refreshExp, err := tokens.GeneratePair(user, ScopeFull)
	require.NoError(t, err)
	repo.sessions[tokenPair.RefreshToken] = &models.Session{
		ID:           uuid.New(),
		UserID:       user.ID,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    refreshExp,
	}

	newPair, err := service.Refresh(ctx, tokenPair.RefreshToken, nil)
	require.NoError(t, err)

	assert.NotEqual(t, tokenPair.RefreshToken, newPair.RefreshToken)
	assert.Equal(t, ScopeFull, newPair.Scope)
	assert.NotContains(t, repo.sessions, tokenPair.RefreshToken)

	// старый токен больше не принимается
	_, err = service.Refresh(ctx, tokenPair.RefreshToken, nil)
	assert.True(t, apperror.HasCode(err, apperror.ErrCodeUnauthorized))
}

func TestAuthService_Logout(t *testing.T) {
	service, repo, _, _ := newTestAuthService()
	ctx := context.Background()

	res, err := service.Signup(ctx, validSignup(), nil)
	require.NoError(t, err)

	require.NoError(t, service.Logout(ctx, res.TokenPair.RefreshToken))
	assert.Empty(t, repo.sessions)
	assert.NoError(t, service.Logout(ctx, res.TokenPair.RefreshToken))
	assert.True(t, apperror.IsValidation(service.Logout(ctx, "")))
}
