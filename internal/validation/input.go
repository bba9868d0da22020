package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Константы валидации
const (
	MinNameLength               = 2
	MaxNameLength               = 100
	MinTaskTitleLength          = 3
	MaxTaskTitleLength          = 200
	MinTaskDescriptionLength    = 10
	MaxTaskDescriptionLength    = 5000
	MaxLocationLength           = 255
	MaxApplicationMessageLength = 2000
	MaxReviewCommentLength      = 2000
	MaxBankNameLength           = 100
	MinRating                   = 1
	MaxRating                   = 5
)

// MaxPrice верхняя граница цены задачи и суммы пополнения.
var MaxPrice = decimal.NewFromInt(100_000_000)

var (
	emailLocalRegex  = regexp.MustCompile(`^[a-z0-9._+-]+$`)
	emailDomainRegex = regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
	phoneRegex       = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	accountRegex     = regexp.MustCompile(`^[0-9]{10}$`)
	nameRegex        = regexp.MustCompile(`^[\p{L}\s'\-.]+$`)
)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateEmail проверяет формат email.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email обязателен")
	}

	email = strings.ToLower(strings.TrimSpace(email))

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return fmt.Errorf("некорректный формат email")
	}

	localPart, domainPart := parts[0], parts[1]

	if len(localPart) == 0 || len(localPart) > 64 {
		return fmt.Errorf("локальная часть email должна быть от 1 до 64 символов")
	}
	if len(domainPart) == 0 || len(domainPart) > 255 {
		return fmt.Errorf("доменная часть email должна быть от 1 до 255 символов")
	}
	if !emailLocalRegex.MatchString(localPart) {
		return fmt.Errorf("локальная часть email содержит недопустимые символы")
	}
	if !emailDomainRegex.MatchString(domainPart) {
		return fmt.Errorf("доменная часть email имеет некорректный формат")
	}

	return nil
}

// ValidateNonEmpty проверяет, что строка не пустая.
func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s не может быть пустым", fieldName)
	}
	return nil
}

// ValidatePhone проверяет номер телефона: 10-15 цифр, допускается ведущий +.
func ValidatePhone(phone string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return fmt.Errorf("телефон обязателен")
	}
	if !phoneRegex.MatchString(phone) {
		return fmt.Errorf("некорректный формат телефона")
	}
	return nil
}

// ValidatePersonName проверяет имя или фамилию.
func ValidatePersonName(fieldName, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%s обязательно", fieldName)
	}
	if err := ValidateLength(fieldName, name, MinNameLength, MaxNameLength); err != nil {
		return err
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("%s содержит недопустимые символы", fieldName)
	}
	return nil
}

// ValidateTaskTitle проверяет заголовок задачи.
func ValidateTaskTitle(title string) error {
	if err := ValidateNonEmpty("заголовок", title); err != nil {
		return err
	}
	return ValidateLength("заголовок", strings.TrimSpace(title), MinTaskTitleLength, MaxTaskTitleLength)
}

// ValidateTaskDescription проверяет описание задачи.
func ValidateTaskDescription(description string) error {
	if err := ValidateNonEmpty("описание", description); err != nil {
		return err
	}
	return ValidateLength("описание", strings.TrimSpace(description), MinTaskDescriptionLength, MaxTaskDescriptionLength)
}

// ValidateLocation проверяет адрес задачи.
func ValidateLocation(location string) error {
	if err := ValidateNonEmpty("адрес", location); err != nil {
		return err
	}
	return ValidateLength("адрес", strings.TrimSpace(location), 0, MaxLocationLength)
}

// ValidateAmount проверяет, что сумма положительна и не превышает MaxPrice.
func ValidateAmount(fieldName string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%s должна быть больше нуля", fieldName)
	}
	if amount.GreaterThan(MaxPrice) {
		return fmt.Errorf("%s не может превышать %s", fieldName, MaxPrice.String())
	}
	if amount.Exponent() < -2 && !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%s может содержать не более двух знаков после запятой", fieldName)
	}
	return nil
}

// ValidatePriceRange проверяет диапазон цены: 0 < min <= max.
func ValidatePriceRange(priceMin, priceMax decimal.Decimal) error {
	if err := ValidateAmount("минимальная цена", priceMin); err != nil {
		return err
	}
	if err := ValidateAmount("максимальная цена", priceMax); err != nil {
		return err
	}
	if priceMin.GreaterThan(priceMax) {
		return fmt.Errorf("минимальная цена не может быть больше максимальной")
	}
	return nil
}

// ValidateRating проверяет оценку в отзыве.
func ValidateRating(rating int) error {
	if rating < MinRating || rating > MaxRating {
		return fmt.Errorf("оценка должна быть от %d до %d", MinRating, MaxRating)
	}
	return nil
}

// ValidateAccountNumber проверяет номер банковского счёта (NUBAN, 10 цифр).
func ValidateAccountNumber(number string) error {
	if !accountRegex.MatchString(strings.TrimSpace(number)) {
		return fmt.Errorf("номер счёта должен состоять из 10 цифр")
	}
	return nil
}

// ValidateCoordinates проверяет широту и долготу.
func ValidateCoordinates(lat, lng *float64) error {
	if (lat == nil) != (lng == nil) {
		return fmt.Errorf("широта и долгота указываются вместе")
	}
	if lat == nil {
		return nil
	}
	if *lat < -90 || *lat > 90 {
		return fmt.Errorf("широта должна быть в диапазоне от -90 до 90")
	}
	if *lng < -180 || *lng > 180 {
		return fmt.Errorf("долгота должна быть в диапазоне от -180 до 180")
	}
	return nil
}
