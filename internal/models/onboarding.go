package models

// Шаги онбординга в порядке проверки при входе.
const (
	StepVerifyEmail         = "verify_email"
	StepVerifyIdentity      = "verify_identity"
	StepUploadPicture       = "upload_picture"
	StepEnableLocation      = "enable_location"
	StepAddWithdrawalMethod = "add_withdrawal_method"
	StepFundWallet          = "fund_wallet"
)

// OnboardingState флаги онбординга, вычисленные по данным пользователя.
type OnboardingState struct {
	EmailVerified         bool `db:"email_verified" json:"email_verified"`
	IdentityVerified      bool `db:"identity_verified" json:"identity_verified"`
	PictureUploaded       bool `db:"picture_uploaded" json:"picture_uploaded"`
	LocationEnabled       bool `db:"location_enabled" json:"location_enabled"`
	WithdrawalMethodAdded bool `db:"withdrawal_method_added" json:"withdrawal_method_added"`
	WalletFunded          bool `db:"wallet_funded" json:"wallet_funded"`
}

// OnboardingCheck один пункт чек-листа.
type OnboardingCheck struct {
	Step    string `json:"step"`
	Done    bool   `json:"done"`
	Message string `json:"message"`
}

// Checklist возвращает пункты в фиксированном порядке.
func (s OnboardingState) Checklist() []OnboardingCheck {
	return []OnboardingCheck{
		{Step: StepVerifyEmail, Done: s.EmailVerified, Message: "подтвердите email, чтобы продолжить"},
		{Step: StepVerifyIdentity, Done: s.IdentityVerified, Message: "подтвердите личность, чтобы продолжить"},
		{Step: StepUploadPicture, Done: s.PictureUploaded, Message: "загрузите фото профиля, чтобы продолжить"},
		{Step: StepEnableLocation, Done: s.LocationEnabled, Message: "разрешите доступ к геолокации, чтобы продолжить"},
		{Step: StepAddWithdrawalMethod, Done: s.WithdrawalMethodAdded, Message: "добавьте способ вывода средств, чтобы продолжить"},
		{Step: StepFundWallet, Done: s.WalletFunded, Message: "пополните кошелёк, чтобы продолжить"},
	}
}

// NextStep возвращает первый невыполненный шаг. ok=false, если онбординг пройден.
func (s OnboardingState) NextStep() (OnboardingCheck, bool) {
	for _, check := range s.Checklist() {
		if !check.Done {
			return check, true
		}
	}
	return OnboardingCheck{}, false
}

// Complete сообщает, что все шаги выполнены.
func (s OnboardingState) Complete() bool {
	_, pending := s.NextStep()
	return !pending
}
