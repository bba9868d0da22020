package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeToHTTPStatus(t *testing.T) {
	cases := map[ErrorCode]int{
		ErrCodeValidation:          http.StatusBadRequest,
		ErrCodeInsufficientBalance: http.StatusBadRequest,
		ErrCodeNotFound:            http.StatusNotFound,
		ErrCodeStateConflict:       http.StatusConflict,
		ErrCodeForbidden:           http.StatusForbidden,
		ErrCodeOnboardingRequired:  http.StatusForbidden,
		ErrCodeUnauthorized:        http.StatusUnauthorized,
		ErrCodeUpstream:            http.StatusBadGateway,
		ErrCodeInternal:            http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, New(code, "x").HTTPStatus, code)
	}
}

func TestAs_WrappedChain(t *testing.T) {
	cause := errors.New("db down")
	err := fmt.Errorf("wallet service: %w", Wrap(cause, ErrCodeInternal, "oops"))

	appErr, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, ErrCodeInternal, appErr.Code)
	assert.ErrorIs(t, err, cause)
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsNotFound(ErrTaskNotFound))
	assert.True(t, IsForbidden(Forbidden("нет")))
	assert.True(t, IsValidation(Validation("плохо")))
	assert.True(t, IsStateConflict(StateConflict("уже")))
	assert.True(t, IsInsufficientBalance(ErrInsufficientBalance))
	assert.False(t, IsNotFound(errors.New("plain")))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrCodeOnboardingRequired, "пополните кошелёк").WithDetail("next_step", "fund_wallet")
	assert.Equal(t, "fund_wallet", err.Details["next_step"])
}
