package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ignatzorin/errands-backend/internal/models"
)

// ValidateTaskDetails проверяет форму details для категории поручения.
// Для local_micro details необязательны и могут быть любым JSON-объектом.
func ValidateTaskDetails(category string, raw json.RawMessage) error {
	empty := len(bytes.TrimSpace(raw)) == 0
	if !empty {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
			return fmt.Errorf("details должен быть JSON-объектом")
		}
	}

	switch category {
	case models.CategorySupermarketRuns:
		var d models.SupermarketDetails
		if err := decodeDetails(category, raw, empty, &d); err != nil {
			return err
		}
		return validateSupermarket(d)
	case models.CategoryPickupDelivery:
		var d models.PickupDeliveryDetails
		if err := decodeDetails(category, raw, empty, &d); err != nil {
			return err
		}
		return validatePickupDelivery(d)
	case models.CategoryCareTasks:
		var d models.CareTaskDetails
		if err := decodeDetails(category, raw, empty, &d); err != nil {
			return err
		}
		return ValidateNonEmpty("получатель заботы", d.Recipient)
	case models.CategoryVerifyIt:
		var d models.VerificationTaskDetails
		if err := decodeDetails(category, raw, empty, &d); err != nil {
			return err
		}
		return validateVerificationTask(d)
	}
	return nil
}

func decodeDetails(category string, raw json.RawMessage, empty bool, dst any) error {
	if empty {
		return fmt.Errorf("для категории %s нужны details", category)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("details не соответствуют категории %s", category)
	}
	return nil
}

func validateSupermarket(d models.SupermarketDetails) error {
	if err := ValidateNonEmpty("супермаркет", d.Supermarket); err != nil {
		return err
	}
	if len(d.Items) == 0 {
		return fmt.Errorf("список покупок пуст")
	}
	if len(d.Items) > models.MaxShoppingItems {
		return fmt.Errorf("в списке покупок не больше %d позиций", models.MaxShoppingItems)
	}
	for i, item := range d.Items {
		if strings.TrimSpace(item.Name) == "" {
			return fmt.Errorf("позиция %d: укажите название", i+1)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("позиция %d: количество должно быть больше нуля", i+1)
		}
	}
	return nil
}

func validatePickupDelivery(d models.PickupDeliveryDetails) error {
	if err := ValidateNonEmpty("адрес забора", d.PickupLocation); err != nil {
		return err
	}
	if err := ValidateNonEmpty("адрес доставки", d.DropoffLocation); err != nil {
		return err
	}
	if strings.EqualFold(strings.TrimSpace(d.PickupLocation), strings.TrimSpace(d.DropoffLocation)) {
		return fmt.Errorf("адреса забора и доставки совпадают")
	}
	return nil
}

func validateVerificationTask(d models.VerificationTaskDetails) error {
	if _, ok := models.ValidVerificationTypes[d.VerificationType]; !ok {
		return fmt.Errorf("verification_type должен быть address, document, item или person")
	}
	if err := ValidateNonEmpty("инструкции", d.Instructions); err != nil {
		return err
	}
	for i, action := range d.RunnerActions {
		if strings.TrimSpace(action) == "" {
			return fmt.Errorf("действие %d не может быть пустым", i+1)
		}
	}
	if d.ContactPhone != "" {
		return ValidatePhone(d.ContactPhone)
	}
	return nil
}
