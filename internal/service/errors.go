package service

import (
	"errors"
	"fmt"

	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errands-backend/internal/repository"
)

// mapError переводит ошибки хранилища и доменной модели в AppError.
// Неизвестные ошибки становятся INTERNAL_ERROR.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := apperror.As(err); ok {
		return appErr
	}

	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return apperror.ErrUserNotFound
	case errors.Is(err, repository.ErrTaskNotFound):
		return apperror.ErrTaskNotFound
	case errors.Is(err, repository.ErrApplicationNotFound):
		return apperror.ErrApplicationNotFound
	case errors.Is(err, repository.ErrWalletNotFound):
		return apperror.ErrWalletNotFound
	case errors.Is(err, repository.ErrEscrowNotFound):
		return apperror.ErrEscrowNotFound
	case errors.Is(err, repository.ErrReviewNotFound):
		return apperror.NotFound("отзыв не найден")
	case errors.Is(err, repository.ErrNotificationNotFound):
		return apperror.NotFound("уведомление не найдено")
	case errors.Is(err, repository.ErrPaymentNotFound):
		return apperror.NotFound("платёж не найден")
	case errors.Is(err, repository.ErrWithdrawalMethodNotFound):
		return apperror.NotFound("способ вывода не найден")

	case errors.Is(err, models.ErrInsufficientBalance):
		return apperror.Wrap(err, apperror.ErrCodeInsufficientBalance, "недостаточно средств на балансе")
	case errors.Is(err, models.ErrInvalidAmount):
		return apperror.Wrap(err, apperror.ErrCodeValidation, "сумма должна быть больше нуля")
	case errors.Is(err, models.ErrInvalidDecision):
		return apperror.Wrap(err, apperror.ErrCodeValidation, "статус отклика может быть только accepted или rejected")
	case errors.Is(err, models.ErrInvalidTransition):
		return apperror.Wrap(err, apperror.ErrCodeStateConflict, "недопустимый переход статуса")

	case errors.Is(err, repository.ErrDuplicateApplication):
		return apperror.StateConflict("вы уже откликнулись на эту задачу")
	case errors.Is(err, repository.ErrReviewExists):
		return apperror.StateConflict("отзыв по этому отклику уже оставлен")
	case errors.Is(err, repository.ErrApplicationNotCompleted):
		return apperror.StateConflict("отзыв можно оставить только по завершённому отклику")
	case errors.Is(err, repository.ErrTaskNotAssigned):
		return apperror.StateConflict("у задачи нет назначенного исполнителя")
	case errors.Is(err, repository.ErrTaskClosed):
		return apperror.StateConflict("задача уже завершена или отменена")
	case errors.Is(err, repository.ErrTaskImageLimit):
		return apperror.Validation(fmt.Sprintf("к задаче можно прикрепить не больше %d фото", models.MaxTaskImages))
	case errors.Is(err, repository.ErrDuplicateReference):
		return apperror.StateConflict("проводка с такой ссылкой уже существует")
	case errors.Is(err, repository.ErrEmailTaken):
		return apperror.StateConflict("email уже зарегистрирован")
	case errors.Is(err, repository.ErrPhoneTaken):
		return apperror.StateConflict("телефон уже зарегистрирован")
	case errors.Is(err, repository.ErrWithdrawalMethodExists):
		return apperror.StateConflict("такой способ вывода уже добавлен")
	case errors.Is(err, repository.ErrPaymentAlreadyProcessed):
		return apperror.StateConflict("платёж уже обработан")

	case errors.Is(err, repository.ErrSessionNotFound):
		return apperror.New(apperror.ErrCodeUnauthorized, "сессия не найдена или истекла")
	case errors.Is(err, repository.ErrCodeNotFound), errors.Is(err, repository.ErrCodeMismatch):
		return apperror.Validation("неверный код подтверждения")
	case errors.Is(err, repository.ErrCodeExpired):
		return apperror.Validation("срок действия кода истёк, запросите новый")
	case errors.Is(err, repository.ErrCodeAttemptsExceeded):
		return apperror.Validation("слишком много неверных попыток, запросите новый код")
	}

	return apperror.Internal(err)
}
