package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/errands-backend/internal/authz"
	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errands-backend/internal/repository"
)

type mockTaskStore struct {
	mock.Mock
	// task передаётся в guard переходов, как это делает репозиторий после блокировки строки.
	task *models.Task
}

func (m *mockTaskStore) Create(ctx context.Context, task *models.Task) error {
	args := m.Called(ctx, task)
	task.ID = uuid.New()
	task.Status = models.TaskStatusOpen
	return args.Error(0)
}

func (m *mockTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *mockTaskStore) GetWithCount(ctx context.Context, id uuid.UUID) (*repository.TaskWithCount, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.TaskWithCount), args.Error(1)
}

func (m *mockTaskStore) GetEscrow(ctx context.Context, taskID uuid.UUID) (*models.Escrow, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Escrow), args.Error(1)
}

func (m *mockTaskStore) ListByPoster(ctx context.Context, posterID uuid.UUID, filter models.TaskFilter) ([]repository.TaskWithCount, error) {
	args := m.Called(ctx, posterID, filter)
	return args.Get(0).([]repository.TaskWithCount), args.Error(1)
}

func (m *mockTaskStore) ListAvailable(ctx context.Context, userID uuid.UUID, filter models.TaskFilter) ([]repository.TaskWithCount, error) {
	args := m.Called(ctx, userID, filter)
	return args.Get(0).([]repository.TaskWithCount), args.Error(1)
}

func (m *mockTaskStore) transition(method string, ctx context.Context, id uuid.UUID, guard repository.TaskGuard) (*repository.TaskTransition, error) {
	if m.task != nil && guard != nil {
		if err := guard(m.task); err != nil {
			return nil, err
		}
	}
	args := m.MethodCalled(method, ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.TaskTransition), args.Error(1)
}

func (m *mockTaskStore) AcceptApplication(ctx context.Context, applicationID uuid.UUID, guard repository.TaskGuard, now time.Time) (*repository.TaskTransition, error) {
	return m.transition("AcceptApplication", ctx, applicationID, guard)
}

func (m *mockTaskStore) FundTask(ctx context.Context, taskID uuid.UUID, guard repository.TaskGuard, now time.Time) (*repository.TaskTransition, error) {
	return m.transition("FundTask", ctx, taskID, guard)
}

func (m *mockTaskStore) StartTask(ctx context.Context, taskID uuid.UUID, guard repository.TaskGuard, now time.Time) (*repository.TaskTransition, error) {
	return m.transition("StartTask", ctx, taskID, guard)
}

func (m *mockTaskStore) CompleteTask(ctx context.Context, taskID uuid.UUID, guard repository.TaskGuard, now time.Time) (*repository.TaskTransition, error) {
	return m.transition("CompleteTask", ctx, taskID, guard)
}

func (m *mockTaskStore) CancelTask(ctx context.Context, taskID uuid.UUID, guard repository.TaskGuard, now time.Time) (*repository.TaskTransition, error) {
	return m.transition("CancelTask", ctx, taskID, guard)
}

func newTestTaskService(store TaskStore, notifier Notifier) *TaskService {
	svc := NewTaskService(store, notifier)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func validTaskInput() CreateTaskInput {
	return CreateTaskInput{
		Title:       "Купить продукты",
		Description: "Молоко, хлеб и яйца из ближайшего магазина",
		Category:    models.CategorySupermarketRuns,
		Location:    "Lekki Phase 1",
		PriceMin:    dec("2000"),
		PriceMax:    dec("5000"),
		Details:     json.RawMessage(`{"supermarket":"Shoprite","items":[{"name":"Молоко","quantity":2}]}`),
	}
}

func assignedTask(posterID, workerID uuid.UUID) *models.Task {
	return &models.Task{
		ID:       uuid.New(),
		PosterID: posterID,
		WorkerID: &workerID,
		Title:    "Купить продукты",
		Status:   models.TaskStatusAssigned,
		PriceMin: dec("2000"),
		PriceMax: dec("5000"),
	}
}

func TestTaskService_Create(t *testing.T) {
	store := new(mockTaskStore)
	svc := newTestTaskService(store, nil)
	poster := authz.Actor{ID: uuid.New(), Role: models.RoleRequester}

	store.On("Create", mock.Anything, mock.MatchedBy(func(task *models.Task) bool {
		return task.PosterID == poster.ID && task.Title == "Купить продукты"
	})).Return(nil)

	view, err := svc.Create(context.Background(), poster, validTaskInput())

	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusOpen, view.Status)
	assert.Equal(t, "₦2000.00 - ₦5000.00", view.PriceRange)
	assert.Zero(t, view.ApplicationsCount)
}

func TestTaskService_Create_Validation(t *testing.T) {
	past := fixedNow.Add(-time.Hour)

	tests := []struct {
		name   string
		mutate func(*CreateTaskInput)
	}{
		{"short title", func(in *CreateTaskInput) { in.Title = "ab" }},
		{"unknown category", func(in *CreateTaskInput) { in.Category = "laundry" }},
		{"empty location", func(in *CreateTaskInput) { in.Location = "  " }},
		{"min above max", func(in *CreateTaskInput) { in.PriceMin = dec("6000") }},
		{"zero price", func(in *CreateTaskInput) { in.PriceMin = dec("0") }},
		{"deadline in past", func(in *CreateTaskInput) { in.Deadline = &past }},
		{"details not object", func(in *CreateTaskInput) { in.Details = json.RawMessage(`[1,2]`) }},
		{"supermarket without items", func(in *CreateTaskInput) {
			in.Details = json.RawMessage(`{"supermarket":"Shoprite","items":[]}`)
		}},
		{"pickup without dropoff", func(in *CreateTaskInput) {
			in.Category = models.CategoryPickupDelivery
			in.Details = json.RawMessage(`{"pickup_location":"Ikeja City Mall"}`)
		}},
		{"verification without type", func(in *CreateTaskInput) {
			in.Category = models.CategoryVerifyIt
			in.Details = json.RawMessage(`{"instructions":"Сфотографировать вход"}`)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(mockTaskStore)
			svc := newTestTaskService(store, nil)
			in := validTaskInput()
			tt.mutate(&in)

			_, err := svc.Create(context.Background(), authz.Actor{ID: uuid.New()}, in)

			assert.True(t, apperror.IsValidation(err), "got %v", err)
			store.AssertNumberOfCalls(t, "Create", 0)
		})
	}
}

func TestTaskService_Get_EscrowOnlyForParticipants(t *testing.T) {
	posterID, workerID := uuid.New(), uuid.New()
	task := assignedTask(posterID, workerID)
	escrow := &models.Escrow{ID: uuid.New(), TaskID: task.ID, Status: models.EscrowStatusHeld, Amount: dec("5000")}

	store := new(mockTaskStore)
	store.On("GetWithCount", mock.Anything, task.ID).Return(&repository.TaskWithCount{Task: *task, ApplicationsCount: 3}, nil)
	store.On("GetEscrow", mock.Anything, task.ID).Return(escrow, nil)
	svc := newTestTaskService(store, nil)

	detail, err := svc.Get(context.Background(), authz.Actor{ID: workerID}, task.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Escrow)
	assert.Equal(t, 3, detail.ApplicationsCount)

	detail, err = svc.Get(context.Background(), authz.Actor{ID: uuid.New()}, task.ID)
	require.NoError(t, err)
	assert.Nil(t, detail.Escrow)
	store.AssertNumberOfCalls(t, "GetEscrow", 1)
}

func TestTaskService_Get_NotFound(t *testing.T) {
	store := new(mockTaskStore)
	id := uuid.New()
	store.On("GetWithCount", mock.Anything, id).Return(nil, repository.ErrTaskNotFound)

	_, err := newTestTaskService(store, nil).Get(context.Background(), authz.Actor{ID: uuid.New()}, id)

	assert.True(t, apperror.IsNotFound(err))
}

func TestTaskService_ListAvailable_DefaultsAndValidation(t *testing.T) {
	store := new(mockTaskStore)
	svc := newTestTaskService(store, nil)
	actor := authz.Actor{ID: uuid.New()}

	store.On("ListAvailable", mock.Anything, actor.ID, mock.MatchedBy(func(f models.TaskFilter) bool {
		return f.Sort == models.TaskSortRecent && f.Limit == DefaultPageSize && f.Search == "хлеб"
	})).Return([]repository.TaskWithCount{{Task: models.Task{ID: uuid.New(), Status: models.TaskStatusOpen}}}, nil)

	views, err := svc.ListAvailable(context.Background(), actor, models.TaskFilter{Search: "  хлеб "})
	require.NoError(t, err)
	assert.Len(t, views, 1)

	_, err = svc.ListAvailable(context.Background(), actor, models.TaskFilter{Sort: "oldest"})
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.ListMine(context.Background(), actor, models.TaskFilter{Status: "archived"})
	assert.True(t, apperror.IsValidation(err))
}

func TestTaskService_Fund_ForbiddenForStranger(t *testing.T) {
	task := assignedTask(uuid.New(), uuid.New())
	store := &mockTaskStore{task: task}
	svc := newTestTaskService(store, nil)

	_, err := svc.Fund(context.Background(), authz.Actor{ID: uuid.New()}, task.ID)

	assert.True(t, apperror.IsForbidden(err))
	store.AssertNumberOfCalls(t, "FundTask", 0)
}

func TestTaskService_Fund_InsufficientBalance(t *testing.T) {
	posterID := uuid.New()
	task := assignedTask(posterID, uuid.New())
	store := &mockTaskStore{task: task}
	store.On("FundTask", mock.Anything, task.ID).Return(nil, models.ErrInsufficientBalance)

	_, err := newTestTaskService(store, nil).Fund(context.Background(), authz.Actor{ID: posterID}, task.ID)

	assert.True(t, apperror.IsInsufficientBalance(err))
}

func TestTaskService_Start_NotifiesCounterparty(t *testing.T) {
	posterID, workerID := uuid.New(), uuid.New()
	task := assignedTask(posterID, workerID)
	started := *task
	started.Status = models.TaskStatusInProgress

	store := &mockTaskStore{task: task}
	notifier := new(mockNotifier)
	store.On("StartTask", mock.Anything, task.ID).Return(&repository.TaskTransition{Task: &started}, nil)
	notifier.On("Notify", mock.Anything, posterID, models.EventTaskStarted, mock.Anything).Return()

	tr, err := newTestTaskService(store, notifier).Start(context.Background(), authz.Actor{ID: workerID}, task.ID)

	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInProgress, tr.Task.Status)
	notifier.AssertExpectations(t)
	notifier.AssertNumberOfCalls(t, "Notify", 1)
}

func TestTaskService_Complete_ReleasesEscrowToWorker(t *testing.T) {
	posterID, workerID := uuid.New(), uuid.New()
	task := assignedTask(posterID, workerID)
	done := *task
	done.Status = models.TaskStatusCompleted
	escrow := &models.Escrow{ID: uuid.New(), TaskID: task.ID, PosterID: posterID, WorkerID: &workerID,
		Amount: dec("5000"), Status: models.EscrowStatusReleased}

	store := &mockTaskStore{task: task}
	notifier := new(mockNotifier)
	store.On("CompleteTask", mock.Anything, task.ID).Return(&repository.TaskTransition{Task: &done, Escrow: escrow}, nil)
	notifier.On("Notify", mock.Anything, workerID, models.EventTaskCompleted, mock.Anything).Return()
	notifier.On("Notify", mock.Anything, workerID, models.EventEscrowReleased, mock.Anything).Return()

	_, err := newTestTaskService(store, notifier).Complete(context.Background(), authz.Actor{ID: posterID}, task.ID)

	require.NoError(t, err)
	notifier.AssertExpectations(t)
}

func TestTaskService_Complete_WorkerCannotComplete(t *testing.T) {
	workerID := uuid.New()
	task := assignedTask(uuid.New(), workerID)
	store := &mockTaskStore{task: task}

	_, err := newTestTaskService(store, nil).Complete(context.Background(), authz.Actor{ID: workerID}, task.ID)

	assert.True(t, apperror.IsForbidden(err))
}

func TestTaskService_Cancel_RefundsAndNotifies(t *testing.T) {
	posterID, workerID := uuid.New(), uuid.New()
	task := assignedTask(posterID, workerID)
	cancelled := *task
	cancelled.Status = models.TaskStatusCancelled
	escrow := &models.Escrow{ID: uuid.New(), TaskID: task.ID, PosterID: posterID, Amount: dec("5000"), Status: models.EscrowStatusRefunded}
	other := uuid.New()

	store := &mockTaskStore{task: task}
	notifier := new(mockNotifier)
	store.On("CancelTask", mock.Anything, task.ID).Return(&repository.TaskTransition{
		Task:            &cancelled,
		Escrow:          escrow,
		RejectedRunners: []uuid.UUID{other},
	}, nil)
	notifier.On("Notify", mock.Anything, workerID, models.EventTaskCancelled, mock.Anything).Return()
	notifier.On("Notify", mock.Anything, other, models.EventTaskCancelled, mock.Anything).Return()
	notifier.On("Notify", mock.Anything, posterID, models.EventEscrowRefunded, mock.Anything).Return()

	_, err := newTestTaskService(store, notifier).Cancel(context.Background(), authz.Actor{ID: posterID}, task.ID)

	require.NoError(t, err)
	notifier.AssertExpectations(t)
}

func TestTaskService_Cancel_TerminalTaskConflict(t *testing.T) {
	posterID := uuid.New()
	task := assignedTask(posterID, uuid.New())
	store := &mockTaskStore{task: task}
	store.On("CancelTask", mock.Anything, task.ID).Return(nil, models.ErrInvalidTransition)

	_, err := newTestTaskService(store, nil).Cancel(context.Background(), authz.Actor{ID: posterID}, task.ID)

	assert.True(t, apperror.IsStateConflict(err))
}

func TestTaskService_Journey_FirstTaskPrompt(t *testing.T) {
	store := new(mockTaskStore)
	poster := authz.Actor{ID: uuid.New()}
	store.On("ListByPoster", mock.Anything, poster.ID, models.TaskFilter{Limit: 1}).
		Return([]repository.TaskWithCount{}, nil)

	journey, err := newTestTaskService(store, nil).Journey(context.Background(), poster)

	require.NoError(t, err)
	assert.False(t, journey.HasTasks)
	assert.NotEmpty(t, journey.Action)
	assert.Nil(t, journey.Task)
}

func TestTaskService_Journey_LatestTask(t *testing.T) {
	store := new(mockTaskStore)
	poster := authz.Actor{ID: uuid.New()}
	latest := assignedTask(poster.ID, uuid.New())
	store.On("ListByPoster", mock.Anything, poster.ID, models.TaskFilter{Limit: 1}).
		Return([]repository.TaskWithCount{{Task: *latest, ApplicationsCount: 2}}, nil)

	journey, err := newTestTaskService(store, nil).Journey(context.Background(), poster)

	require.NoError(t, err)
	assert.True(t, journey.HasTasks)
	require.NotNil(t, journey.Task)
	assert.Equal(t, latest.ID, journey.Task.ID)
	assert.Equal(t, 2, journey.Task.ApplicationsCount)
	assert.Empty(t, journey.Action)
}
