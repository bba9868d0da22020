package validation

import (
	"errors"
	"unicode"
	"unicode/utf8"
)

const (
	MinPasswordLength = 8
	// bcrypt учитывает только первые 72 байта
	MaxPasswordBytes = 72
)

var (
	errPasswordShort   = errors.New("пароль должен быть не менее 8 символов")
	errPasswordLong    = errors.New("пароль должен быть не длиннее 72 байт")
	errPasswordSpace   = errors.New("пароль не должен начинаться или заканчиваться пробелом")
	errPasswordUpper   = errors.New("пароль должен содержать хотя бы одну заглавную букву")
	errPasswordLower   = errors.New("пароль должен содержать хотя бы одну строчную букву")
	errPasswordNumeric = errors.New("пароль должен содержать хотя бы одну цифру")
)

// ValidatePassword проверяет пароль при регистрации и сбросе:
// длина, заглавная и строчная буква, цифра.
func ValidatePassword(password string) error {
	switch {
	case utf8.RuneCountInString(password) < MinPasswordLength:
		return errPasswordShort
	case len(password) > MaxPasswordBytes:
		return errPasswordLong
	}

	first, _ := utf8.DecodeRuneInString(password)
	last, _ := utf8.DecodeLastRuneInString(password)
	if unicode.IsSpace(first) || unicode.IsSpace(last) {
		return errPasswordSpace
	}

	var upper, lower, digit bool
	for _, r := range password {
		upper = upper || unicode.IsUpper(r)
		lower = lower || unicode.IsLower(r)
		digit = digit || unicode.IsDigit(r)
	}

	switch {
	case !upper:
		return errPasswordUpper
	case !lower:
		return errPasswordLower
	case !digit:
		return errPasswordNumeric
	}
	return nil
}
