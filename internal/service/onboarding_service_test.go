package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errands-backend/internal/repository"
	"github.com/ignatzorin/errands-backend/internal/storage"
)

type mockOnboardingUsers struct {
	mock.Mock
}

func (m *mockOnboardingUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockOnboardingUsers) OnboardingState(ctx context.Context, userID uuid.UUID) (*models.OnboardingState, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OnboardingState), args.Error(1)
}

func (m *mockOnboardingUsers) UpdatePicture(ctx context.Context, userID uuid.UUID, url string) error {
	return m.Called(ctx, userID, url).Error(0)
}

func (m *mockOnboardingUsers) UpdateLocation(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

type mockIdentityStore struct {
	mock.Mock
}

func (m *mockIdentityStore) SubmitIdentityDocument(ctx context.Context, doc *models.IdentityDocument) error {
	return m.Called(ctx, doc).Error(0)
}

func (m *mockIdentityStore) AcceptTerms(ctx context.Context, userID uuid.UUID, version string) (*models.TermsAcceptance, error) {
	args := m.Called(ctx, userID, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TermsAcceptance), args.Error(1)
}

type mockWithdrawalStore struct {
	mock.Mock
}

func (m *mockWithdrawalStore) Create(ctx context.Context, method *models.WithdrawalMethod) error {
	return m.Called(ctx, method).Error(0)
}

func (m *mockWithdrawalStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.WithdrawalMethod, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.WithdrawalMethod), args.Error(1)
}

func (m *mockWithdrawalStore) Delete(ctx context.Context, id, userID uuid.UUID) error {
	return m.Called(ctx, id, userID).Error(0)
}

type mockFileStorage struct {
	mock.Mock
}

func (m *mockFileStorage) Save(ctx context.Context, userID uuid.UUID, folder, originalName string, r io.Reader) (string, int64, error) {
	args := m.Called(ctx, userID, folder, originalName)
	return args.String(0), int64(args.Int(1)), args.Error(2)
}

func (m *mockFileStorage) Delete(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

type onboardingFixture struct {
	users       *mockOnboardingUsers
	identity    *mockIdentityStore
	withdrawals *mockWithdrawalStore
	files       *mockFileStorage
	svc         *OnboardingService
}

func newOnboardingFixture() *onboardingFixture {
	f := &onboardingFixture{
		users:       new(mockOnboardingUsers),
		identity:    new(mockIdentityStore),
		withdrawals: new(mockWithdrawalStore),
		files:       new(mockFileStorage),
	}
	f.svc = NewOnboardingService(f.users, f.identity, f.withdrawals, f.files)
	return f
}

func upload(name string) Upload {
	return Upload{Filename: name, Reader: strings.NewReader("\xff\xd8\xff\xe0 jpeg")}
}

func TestOnboardingService_Status(t *testing.T) {
	f := newOnboardingFixture()
	userID := uuid.New()
	f.users.On("OnboardingState", mock.Anything, userID).Return(&models.OnboardingState{
		EmailVerified:    true,
		IdentityVerified: true,
		PictureUploaded:  true,
	}, nil)

	status, err := f.svc.Status(context.Background(), userID)

	require.NoError(t, err)
	assert.False(t, status.Complete)
	require.NotNil(t, status.NextStep)
	assert.Equal(t, models.StepEnableLocation, *status.NextStep)
	assert.Len(t, status.Steps, 6)
}

func TestOnboardingService_Status_Complete(t *testing.T) {
	f := newOnboardingFixture()
	userID := uuid.New()
	f.users.On("OnboardingState", mock.Anything, userID).Return(&models.OnboardingState{
		EmailVerified: true, IdentityVerified: true, PictureUploaded: true,
		LocationEnabled: true, WithdrawalMethodAdded: true, WalletFunded: true,
	}, nil)

	status, err := f.svc.Status(context.Background(), userID)

	require.NoError(t, err)
	assert.True(t, status.Complete)
	assert.Nil(t, status.NextStep)
}

func TestOnboardingService_SubmitIdentity(t *testing.T) {
	f := newOnboardingFixture()
	userID := uuid.New()
	f.files.On("Save", mock.Anything, userID, "documents", "nin.jpg").Return("/media/documents/nin.jpg", 10, nil)
	f.identity.On("SubmitIdentityDocument", mock.Anything, mock.MatchedBy(func(doc *models.IdentityDocument) bool {
		return doc.UserID == userID && doc.Country == "Nigeria" && doc.FileURL == "/media/documents/nin.jpg"
	})).Return(nil)

	doc, err := f.svc.SubmitIdentity(context.Background(), userID, " Nigeria ", "national_id", upload("nin.jpg"))

	require.NoError(t, err)
	assert.Equal(t, "national_id", doc.DocumentType)
}

func TestOnboardingService_SubmitIdentity_RemovesFileOnFailure(t *testing.T) {
	f := newOnboardingFixture()
	userID := uuid.New()
	f.files.On("Save", mock.Anything, userID, "documents", "nin.jpg").Return("/media/documents/nin.jpg", 10, nil)
	f.identity.On("SubmitIdentityDocument", mock.Anything, mock.Anything).Return(repository.ErrUserNotFound)
	f.files.On("Delete", mock.Anything, "/media/documents/nin.jpg").Return(nil)

	_, err := f.svc.SubmitIdentity(context.Background(), userID, "Nigeria", "national_id", upload("nin.jpg"))

	assert.True(t, apperror.IsNotFound(err))
	f.files.AssertExpectations(t)
}

func TestOnboardingService_SubmitIdentity_Validation(t *testing.T) {
	f := newOnboardingFixture()

	_, err := f.svc.SubmitIdentity(context.Background(), uuid.New(), "Nigeria", "library_card", upload("x.jpg"))
	assert.True(t, apperror.IsValidation(err))

	_, err = f.svc.SubmitIdentity(context.Background(), uuid.New(), "Nigeria", "national_id", Upload{})
	assert.True(t, apperror.IsValidation(err))

	f.files.AssertNumberOfCalls(t, "Save", 0)
}

func TestOnboardingService_UploadPicture_ReplacesOld(t *testing.T) {
	f := newOnboardingFixture()
	userID := uuid.New()
	old := "/media/pictures/old.png"
	f.users.On("GetByID", mock.Anything, userID).Return(&models.User{ID: userID, PictureURL: &old}, nil)
	f.files.On("Save", mock.Anything, userID, "pictures", "me.jpg").Return("/media/pictures/me.jpg", 10, nil)
	f.users.On("UpdatePicture", mock.Anything, userID, "/media/pictures/me.jpg").Return(nil)
	f.files.On("Delete", mock.Anything, old).Return(errors.New("gone"))

	url, err := f.svc.UploadPicture(context.Background(), userID, upload("me.jpg"))

	require.NoError(t, err)
	assert.Equal(t, "/media/pictures/me.jpg", url)
	f.files.AssertCalled(t, "Delete", mock.Anything, old)
}

func TestOnboardingService_UploadPicture_TooLarge(t *testing.T) {
	f := newOnboardingFixture()
	userID := uuid.New()
	f.users.On("GetByID", mock.Anything, userID).Return(&models.User{ID: userID}, nil)
	f.files.On("Save", mock.Anything, userID, "pictures", "big.jpg").Return("", 0, storage.ErrFileTooLarge)

	_, err := f.svc.UploadPicture(context.Background(), userID, upload("big.jpg"))

	assert.True(t, apperror.IsValidation(err))
	f.users.AssertNumberOfCalls(t, "UpdatePicture", 0)
}

func TestOnboardingService_UpdateLocation(t *testing.T) {
	f := newOnboardingFixture()
	userID := uuid.New()
	lat, lng := 6.45, 3.39
	f.users.On("GetByID", mock.Anything, userID).Return(&models.User{ID: userID}, nil)
	f.users.On("UpdateLocation", mock.Anything, mock.AnythingOfType("*models.User")).Return(nil)

	user, err := f.svc.UpdateLocation(context.Background(), userID, LocationInput{
		Permission: models.LocationPermissionDeny, Latitude: &lat, Longitude: &lng,
	})
	require.NoError(t, err)
	assert.Nil(t, user.Latitude)

	user, err = f.svc.UpdateLocation(context.Background(), userID, LocationInput{
		Permission: models.LocationPermissionWhileUsing, Latitude: &lat, Longitude: &lng,
	})
	require.NoError(t, err)
	assert.Equal(t, &lat, user.Latitude)

	_, err = f.svc.UpdateLocation(context.Background(), userID, LocationInput{Permission: "sometimes"})
	assert.True(t, apperror.IsValidation(err))

	bad := 120.0
	_, err = f.svc.UpdateLocation(context.Background(), userID, LocationInput{
		Permission: models.LocationPermissionAllow, Latitude: &bad, Longitude: &lng,
	})
	assert.True(t, apperror.IsValidation(err))
}

func TestOnboardingService_AcceptTerms(t *testing.T) {
	f := newOnboardingFixture()
	userID := uuid.New()
	f.identity.On("AcceptTerms", mock.Anything, userID, CurrentTermsVersion).
		Return(&models.TermsAcceptance{UserID: userID, Version: CurrentTermsVersion}, nil)

	acc, err := f.svc.AcceptTerms(context.Background(), userID)

	require.NoError(t, err)
	assert.Equal(t, CurrentTermsVersion, acc.Version)
}

func TestOnboardingService_AddWithdrawalMethod(t *testing.T) {
	f := newOnboardingFixture()
	userID := uuid.New()
	f.withdrawals.On("Create", mock.Anything, mock.MatchedBy(func(m *models.WithdrawalMethod) bool {
		return m.AccountNumber == "0123456789"
	})).Return(nil)

	m, err := f.svc.AddWithdrawalMethod(context.Background(), userID, WithdrawalMethodInput{
		MethodType:    models.WithdrawalMethodBankAccount,
		BankName:      "GTBank",
		AccountNumber: " 0123456789 ",
		AccountName:   "Ada Obi",
	})

	require.NoError(t, err)
	assert.Equal(t, "******6789", m.AccountNumber)
}

func TestOnboardingService_AddWithdrawalMethod_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   WithdrawalMethodInput
	}{
		{"unknown type", WithdrawalMethodInput{MethodType: "crypto", BankName: "X", AccountNumber: "0123456789", AccountName: "Ada Obi"}},
		{"short account", WithdrawalMethodInput{MethodType: models.WithdrawalMethodBankAccount, BankName: "GTBank", AccountNumber: "12345", AccountName: "Ada Obi"}},
		{"bad phone", WithdrawalMethodInput{MethodType: models.WithdrawalMethodMobileMoney, BankName: "OPay", AccountNumber: "abc", AccountName: "Ada Obi"}},
		{"no bank", WithdrawalMethodInput{MethodType: models.WithdrawalMethodBankAccount, AccountNumber: "0123456789", AccountName: "Ada Obi"}},
		{"no name", WithdrawalMethodInput{MethodType: models.WithdrawalMethodBankAccount, BankName: "GTBank", AccountNumber: "0123456789"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOnboardingFixture()
			_, err := f.svc.AddWithdrawalMethod(context.Background(), uuid.New(), tt.in)
			assert.True(t, apperror.IsValidation(err), "got %v", err)
			f.withdrawals.AssertNumberOfCalls(t, "Create", 0)
		})
	}
}

func TestOnboardingService_ListAndDeleteWithdrawalMethods(t *testing.T) {
	f := newOnboardingFixture()
	userID, id := uuid.New(), uuid.New()
	f.withdrawals.On("ListByUser", mock.Anything, userID).Return([]models.WithdrawalMethod{
		{ID: id, AccountNumber: "0123456789"},
	}, nil)
	f.withdrawals.On("Delete", mock.Anything, id, userID).Return(repository.ErrWithdrawalMethodNotFound)

	list, err := f.svc.ListWithdrawalMethods(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "******6789", list[0].AccountNumber)

	err = f.svc.DeleteWithdrawalMethod(context.Background(), userID, id)
	assert.True(t, apperror.IsNotFound(err))
}
