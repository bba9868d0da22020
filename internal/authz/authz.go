// Package authz проверяет права субъекта на действие над сущностью.
package authz

import (
	"github.com/google/uuid"

	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/pkg/apperror"
)

// Action действие над сущностью.
type Action string

const (
	ActionTaskFund              Action = "task:fund"
	ActionTaskStart             Action = "task:start"
	ActionTaskComplete          Action = "task:complete"
	ActionTaskCancel            Action = "task:cancel"
	ActionTaskEdit              Action = "task:edit"
	ActionTaskApply             Action = "task:apply"
	ActionTaskViewApplications  Action = "task:view_applications"
	ActionApplicationDecide     Action = "application:decide"
	ActionApplicationViewRunner Action = "application:view_runner"
	ActionReviewCreate          Action = "review:create"
)

// Actor аутентифицированный пользователь.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// Resource владелец и исполнитель сущности, над которой выполняется действие.
type Resource struct {
	OwnerID  uuid.UUID
	WorkerID *uuid.UUID
}

// TaskResource описывает задачу как ресурс.
func TaskResource(t *models.Task) Resource {
	return Resource{OwnerID: t.PosterID, WorkerID: t.WorkerID}
}

type rule struct {
	check        func(Actor, Resource) bool
	adminAllowed bool
	message      string
}

func isOwner(a Actor, r Resource) bool { return a.ID == r.OwnerID }

func isOwnerOrWorker(a Actor, r Resource) bool {
	return a.ID == r.OwnerID || (r.WorkerID != nil && *r.WorkerID == a.ID)
}

func isNotOwner(a Actor, r Resource) bool { return a.ID != r.OwnerID }

var policy = map[Action]rule{
	ActionTaskFund:              {check: isOwner, message: "пополнить escrow может только автор задачи"},
	ActionTaskStart:             {check: isOwnerOrWorker, adminAllowed: true, message: "начать задачу может только автор или исполнитель"},
	ActionTaskComplete:          {check: isOwner, adminAllowed: true, message: "завершить задачу может только её автор"},
	ActionTaskCancel:            {check: isOwner, adminAllowed: true, message: "отменить задачу может только её автор"},
	ActionTaskEdit:              {check: isOwner, message: "изменять задачу может только её автор"},
	ActionTaskApply:             {check: isNotOwner, message: "нельзя откликнуться на собственную задачу"},
	ActionTaskViewApplications:  {check: isOwner, adminAllowed: true, message: "отклики видит только автор задачи"},
	ActionApplicationDecide:     {check: isOwner, message: "решение по отклику принимает только автор задачи"},
	ActionApplicationViewRunner: {check: isOwner, adminAllowed: true, message: "данные исполнителя видит только автор задачи"},
	ActionReviewCreate:          {check: isOwner, message: "вы не можете оставить отзыв по этому отклику"},
}

// Authorize возвращает apperror FORBIDDEN, если actor не может выполнить action над resource.
func Authorize(actor Actor, action Action, resource Resource) error {
	r, ok := policy[action]
	if !ok {
		return apperror.Forbidden("действие не разрешено")
	}
	if actor.ID == uuid.Nil {
		return apperror.ErrUnauthorized
	}
	if r.adminAllowed && actor.Role == models.RoleAdmin {
		return nil
	}
	if !r.check(actor, resource) {
		return apperror.Forbidden(r.message)
	}
	return nil
}
