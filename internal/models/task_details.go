package models

// MaxShoppingItems предел позиций в списке покупок.
const MaxShoppingItems = 100

// Виды проверки для verify_it
const (
	VerificationTypeAddress  = "address"
	VerificationTypeDocument = "document"
	VerificationTypeItem     = "item"
	VerificationTypePerson   = "person"
)

// ValidVerificationTypes допустимые виды проверки.
var ValidVerificationTypes = map[string]struct{}{
	VerificationTypeAddress:  {},
	VerificationTypeDocument: {},
	VerificationTypeItem:     {},
	VerificationTypePerson:   {},
}

// ShoppingItem позиция списка покупок.
type ShoppingItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// SupermarketDetails детали поручения supermarket_runs.
type SupermarketDetails struct {
	Supermarket     string         `json:"supermarket"`
	Items           []ShoppingItem `json:"items"`
	DropoffLocation string         `json:"dropoff_location,omitempty"`
}

// PickupDeliveryDetails детали поручения pickup_delivery.
type PickupDeliveryDetails struct {
	PickupLocation    string `json:"pickup_location"`
	DropoffLocation   string `json:"dropoff_location"`
	IsFragile         bool   `json:"is_fragile"`
	RequiresSignature bool   `json:"requires_signature"`
}

// CareTaskDetails детали поручения care_tasks.
type CareTaskDetails struct {
	Recipient           string `json:"recipient"`
	SpecialInstructions string `json:"special_instructions,omitempty"`
}

// VerificationTaskDetails детали поручения verify_it.
type VerificationTaskDetails struct {
	VerificationType string   `json:"verification_type"`
	Instructions     string   `json:"instructions"`
	RunnerActions    []string `json:"runner_actions,omitempty"`
	ContactPhone     string   `json:"contact_phone,omitempty"`
}
