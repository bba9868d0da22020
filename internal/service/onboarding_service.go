package service

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/errands-backend/internal/logger"
	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errands-backend/internal/storage"
	"github.com/ignatzorin/errands-backend/internal/validation"
)

// CurrentTermsVersion версия условий использования, которую принимает пользователь.
const CurrentTermsVersion = "2024-06"

// Папки хранилища
const (
	folderPictures  = "pictures"
	folderDocuments = "documents"
)

// OnboardingUserStore пользовательские данные, нужные онбордингу.
type OnboardingUserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	OnboardingState(ctx context.Context, userID uuid.UUID) (*models.OnboardingState, error)
	UpdatePicture(ctx context.Context, userID uuid.UUID, url string) error
	UpdateLocation(ctx context.Context, user *models.User) error
}

// IdentityStore документы и принятие условий.
type IdentityStore interface {
	SubmitIdentityDocument(ctx context.Context, doc *models.IdentityDocument) error
	AcceptTerms(ctx context.Context, userID uuid.UUID, version string) (*models.TermsAcceptance, error)
}

// WithdrawalMethodStore реквизиты для вывода средств.
type WithdrawalMethodStore interface {
	Create(ctx context.Context, m *models.WithdrawalMethod) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.WithdrawalMethod, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

// Upload файл, тип которого уже проверен транспортным слоем.
type Upload struct {
	Filename string
	Reader   io.Reader
}

// OnboardingStatus чек-лист онбординга.
type OnboardingStatus struct {
	Steps    []models.OnboardingCheck `json:"steps"`
	NextStep *string                  `json:"next_step"`
	Complete bool                     `json:"complete"`
}

// LocationInput разрешение на геолокацию.
type LocationInput struct {
	Permission string
	City       *string
	Latitude   *float64
	Longitude  *float64
}

// WithdrawalMethodInput новые реквизиты.
type WithdrawalMethodInput struct {
	MethodType    string
	BankName      string
	AccountNumber string
	AccountName   string
}

// OnboardingService шаги онбординга после регистрации.
type OnboardingService struct {
	users       OnboardingUserStore
	identity    IdentityStore
	withdrawals WithdrawalMethodStore
	files       storage.FileStorage
}

func NewOnboardingService(users OnboardingUserStore, identity IdentityStore, withdrawals WithdrawalMethodStore, files storage.FileStorage) *OnboardingService {
	return &OnboardingService{users: users, identity: identity, withdrawals: withdrawals, files: files}
}

// Status возвращает чек-лист в порядке проверки при входе.
func (s *OnboardingService) Status(ctx context.Context, userID uuid.UUID) (*OnboardingStatus, error) {
	state, err := s.users.OnboardingState(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}

	status := &OnboardingStatus{Steps: state.Checklist(), Complete: true}
	if next, pending := state.NextStep(); pending {
		status.NextStep = &next.Step
		status.Complete = false
	}
	return status, nil
}

// DocumentTypes список принимаемых документов.
func (s *OnboardingService) DocumentTypes() []models.DocumentType {
	return models.DocumentTypes
}

// SubmitIdentity сохраняет файл документа и отмечает личность подтверждённой.
func (s *OnboardingService) SubmitIdentity(ctx context.Context, userID uuid.UUID, country, documentType string, file Upload) (*models.IdentityDocument, error) {
	country = strings.TrimSpace(country)
	if err := validation.ValidateLength("страна", country, 2, validation.MaxNameLength); err != nil {
		return nil, apperror.Validation(err.Error())
	}
	if !models.IsValidDocumentType(documentType) {
		return nil, apperror.Validation("неизвестный тип документа")
	}

	url, err := s.save(ctx, userID, folderDocuments, file)
	if err != nil {
		return nil, err
	}

	doc := &models.IdentityDocument{
		UserID:       userID,
		Country:      country,
		DocumentType: documentType,
		FileURL:      url,
	}
	if err := s.identity.SubmitIdentityDocument(ctx, doc); err != nil {
		s.discard(ctx, url)
		return nil, mapError(err)
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":       userID,
		"document_type": documentType,
	}).Info("onboarding service: документ загружен")
	return doc, nil
}

// UploadPicture сохраняет фото профиля и удаляет предыдущее.
func (s *OnboardingService) UploadPicture(ctx context.Context, userID uuid.UUID, file Upload) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", mapError(err)
	}

	url, err := s.save(ctx, userID, folderPictures, file)
	if err != nil {
		return "", err
	}
	if err := s.users.UpdatePicture(ctx, userID, url); err != nil {
		s.discard(ctx, url)
		return "", mapError(err)
	}
	if user.PictureURL != nil && *user.PictureURL != "" {
		s.discard(ctx, *user.PictureURL)
	}
	return url, nil
}

// UpdateLocation сохраняет разрешение на геолокацию. При отказе координаты стираются.
func (s *OnboardingService) UpdateLocation(ctx context.Context, userID uuid.UUID, in LocationInput) (*models.User, error) {
	if _, ok := models.ValidLocationPermissions[in.Permission]; !ok {
		return nil, apperror.Validation("разрешение может быть allow, while_using или deny")
	}
	if err := validation.ValidateCoordinates(in.Latitude, in.Longitude); err != nil {
		return nil, apperror.Validation(err.Error())
	}
	if in.City != nil {
		city := strings.TrimSpace(*in.City)
		if err := validation.ValidateLength("город", city, 0, validation.MaxLocationLength); err != nil {
			return nil, apperror.Validation(err.Error())
		}
		in.City = &city
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}
	user.LocationPermission = in.Permission
	user.LocationCity = in.City
	user.Latitude, user.Longitude = in.Latitude, in.Longitude
	if in.Permission == models.LocationPermissionDeny {
		user.Latitude, user.Longitude = nil, nil
	}

	if err := s.users.UpdateLocation(ctx, user); err != nil {
		return nil, mapError(err)
	}
	return user, nil
}

// AcceptTerms фиксирует принятие текущей версии условий.
func (s *OnboardingService) AcceptTerms(ctx context.Context, userID uuid.UUID) (*models.TermsAcceptance, error) {
	acceptance, err := s.identity.AcceptTerms(ctx, userID, CurrentTermsVersion)
	if err != nil {
		return nil, mapError(err)
	}
	return acceptance, nil
}

// AddWithdrawalMethod добавляет реквизиты. Номер счёта в ответе замаскирован.
func (s *OnboardingService) AddWithdrawalMethod(ctx context.Context, userID uuid.UUID, in WithdrawalMethodInput) (*models.WithdrawalMethod, error) {
	m := &models.WithdrawalMethod{
		UserID:        userID,
		MethodType:    in.MethodType,
		BankName:      strings.TrimSpace(in.BankName),
		AccountNumber: strings.TrimSpace(in.AccountNumber),
		AccountName:   strings.TrimSpace(in.AccountName),
	}
	if err := validateWithdrawalMethod(m); err != nil {
		return nil, apperror.Validation(err.Error())
	}

	if err := s.withdrawals.Create(ctx, m); err != nil {
		return nil, mapError(err)
	}
	masked := maskWithdrawalMethod(*m)
	return &masked, nil
}

func validateWithdrawalMethod(m *models.WithdrawalMethod) error {
	if _, ok := models.ValidWithdrawalMethodTypes[m.MethodType]; !ok {
		return errors.New("способ вывода может быть bank_account или mobile_money")
	}
	if err := validation.ValidateNonEmpty("банк", m.BankName); err != nil {
		return err
	}
	if err := validation.ValidateLength("банк", m.BankName, 0, validation.MaxBankNameLength); err != nil {
		return err
	}
	switch m.MethodType {
	case models.WithdrawalMethodBankAccount:
		if err := validation.ValidateAccountNumber(m.AccountNumber); err != nil {
			return err
		}
	case models.WithdrawalMethodMobileMoney:
		if err := validation.ValidatePhone(m.AccountNumber); err != nil {
			return err
		}
	}
	return validation.ValidatePersonName("имя владельца счёта", m.AccountName)
}

// ListWithdrawalMethods возвращает реквизиты с замаскированными номерами.
func (s *OnboardingService) ListWithdrawalMethods(ctx context.Context, userID uuid.UUID) ([]models.WithdrawalMethod, error) {
	methods, err := s.withdrawals.ListByUser(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}
	for i := range methods {
		methods[i] = maskWithdrawalMethod(methods[i])
	}
	return methods, nil
}

// DeleteWithdrawalMethod удаляет реквизиты пользователя.
func (s *OnboardingService) DeleteWithdrawalMethod(ctx context.Context, userID, id uuid.UUID) error {
	return mapError(s.withdrawals.Delete(ctx, id, userID))
}

func maskWithdrawalMethod(m models.WithdrawalMethod) models.WithdrawalMethod {
	m.AccountNumber = m.MaskedAccountNumber()
	return m
}

func (s *OnboardingService) save(ctx context.Context, userID uuid.UUID, folder string, file Upload) (string, error) {
	return storeUpload(ctx, s.files, userID, folder, file)
}

func (s *OnboardingService) discard(ctx context.Context, url string) {
	discardUpload(ctx, s.files, url)
}
