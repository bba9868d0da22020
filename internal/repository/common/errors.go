package common

import (
	"errors"

	"github.com/lib/pq"
)

// pgUniqueViolation код ошибки PostgreSQL при нарушении уникальности.
const pgUniqueViolation = "23505"

// IsUniqueViolation проверяет нарушение уникального ограничения.
// Если constraint не пуст, сравнивается и имя ограничения.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
