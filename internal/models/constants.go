package models

// Роли пользователей
const (
	RoleRequester = "requester"
	RoleRunner    = "runner"
	RoleAdmin     = "admin"
)

// TaskStatus константы статусов задач
const (
	TaskStatusOpen       = "open"
	TaskStatusAssigned   = "assigned"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusCancelled  = "cancelled"
)

// ApplicationStatus константы статусов откликов
const (
	ApplicationStatusPending   = "pending"
	ApplicationStatusAccepted  = "accepted"
	ApplicationStatusRejected  = "rejected"
	ApplicationStatusCompleted = "completed"
)

// Категории поручений
const (
	CategorySupermarketRuns = "supermarket_runs"
	CategoryPickupDelivery  = "pickup_delivery"
	CategoryLocalMicro      = "local_micro"
	CategoryCareTasks       = "care_tasks"
	CategoryVerifyIt        = "verify_it"
)

// Разрешение на геолокацию
const (
	LocationPermissionUnset      = "unset"
	LocationPermissionAllow      = "allow"
	LocationPermissionWhileUsing = "while_using"
	LocationPermissionDeny       = "deny"
)

// Способы вывода средств
const (
	WithdrawalMethodBankAccount = "bank_account"
	WithdrawalMethodMobileMoney = "mobile_money"
)

// DefaultCurrency валюта кошелька по умолчанию.
const DefaultCurrency = "NGN"

// ValidRoles список ролей, доступных при регистрации
var ValidRoles = map[string]struct{}{
	RoleRequester: {},
	RoleRunner:    {},
}

// ValidTaskStatuses список валидных статусов задач
var ValidTaskStatuses = map[string]struct{}{
	TaskStatusOpen:       {},
	TaskStatusAssigned:   {},
	TaskStatusInProgress: {},
	TaskStatusCompleted:  {},
	TaskStatusCancelled:  {},
}

// ValidCategories список категорий поручений
var ValidCategories = map[string]struct{}{
	CategorySupermarketRuns: {},
	CategoryPickupDelivery:  {},
	CategoryLocalMicro:      {},
	CategoryCareTasks:       {},
	CategoryVerifyIt:        {},
}

// ValidLocationPermissions список значений разрешения на геолокацию
var ValidLocationPermissions = map[string]struct{}{
	LocationPermissionAllow:      {},
	LocationPermissionWhileUsing: {},
	LocationPermissionDeny:       {},
}

// ValidWithdrawalMethodTypes список способов вывода
var ValidWithdrawalMethodTypes = map[string]struct{}{
	WithdrawalMethodBankAccount: {},
	WithdrawalMethodMobileMoney: {},
}
