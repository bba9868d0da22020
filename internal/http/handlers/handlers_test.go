package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/errands-backend/internal/http/middleware"
	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/service"
)

// newTestRouter собирает gin с ErrorHandler. Если userID не nil, запрос считается авторизованным.
func newTestRouter(userID *uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	if userID != nil {
		id := *userID
		r.Use(func(c *gin.Context) {
			c.Set(middleware.ContextUserIDKey, id)
			c.Set(middleware.ContextRoleKey, models.RoleRequester)
			c.Next()
		})
	}
	return r
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Code
}

func TestHandlers_Unauthorized(t *testing.T) {
	r := newTestRouter(nil)
	wallets := &WalletHandler{}
	payments := &PaymentHandler{}
	tasks := &TaskHandler{}
	apps := &ApplicationHandler{}
	reviews := &ReviewHandler{}
	dashboard := &DashboardHandler{}
	notifications := &NotificationHandler{}
	onboarding := &OnboardingHandler{}

	r.GET("/wallet", wallets.Get)
	r.POST("/wallet/fund", payments.Fund)
	r.POST("/tasks", tasks.Create)
	r.POST("/tasks/:id/fund", tasks.Fund)
	r.PUT("/applications/:id/status", apps.Decide)
	r.POST("/applications/:id/review", reviews.CreateReview)
	r.GET("/dashboard/metrics", dashboard.Metrics)
	r.GET("/notifications", notifications.ListNotifications)
	r.GET("/onboarding/status", onboarding.Status)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/wallet"},
		{http.MethodPost, "/wallet/fund"},
		{http.MethodPost, "/tasks"},
		{http.MethodPost, "/tasks/" + uuid.NewString() + "/fund"},
		{http.MethodPut, "/applications/" + uuid.NewString() + "/status"},
		{http.MethodPost, "/applications/" + uuid.NewString() + "/review"},
		{http.MethodGet, "/dashboard/metrics"},
		{http.MethodGet, "/notifications"},
		{http.MethodGet, "/onboarding/status"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := doJSON(r, rt.method, rt.path, "")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "UNAUTHORIZED", errorCode(t, w))
		})
	}
}

func TestHandlers_InvalidUUIDParam(t *testing.T) {
	userID := uuid.New()
	r := newTestRouter(&userID)
	tasks := &TaskHandler{}
	apps := &ApplicationHandler{}
	reviews := &ReviewHandler{}

	r.GET("/tasks/:id", tasks.Get)
	r.POST("/tasks/:id/complete", tasks.Complete)
	r.GET("/applications/:id/runner", apps.RunnerDetails)
	r.GET("/users/:id/reviews", reviews.ListRunnerReviews)

	for _, path := range []string{"/tasks/abc", "/applications/abc/runner", "/users/abc/reviews"} {
		w := doJSON(r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w), path)
	}
	w := doJSON(r, http.MethodPost, "/tasks/abc/complete", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTaskHandler_Create_InvalidBody(t *testing.T) {
	userID := uuid.New()
	r := newTestRouter(&userID)
	r.POST("/tasks", (&TaskHandler{}).Create)

	w := doJSON(r, http.MethodPost, "/tasks", `{"title": 42}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
}

func TestWalletHandler_Adjust_InvalidType(t *testing.T) {
	r := newTestRouter(nil)
	r.POST("/admin/wallets/:user_id/adjust", (&WalletHandler{}).Adjust)

	w := doJSON(r, http.MethodPost, "/admin/wallets/"+uuid.NewString()+"/adjust",
		`{"type": "refund", "amount": "100", "description": "ручная корректировка"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
}

func TestPaymentHandler_VerifyFunding_MissingParams(t *testing.T) {
	userID := uuid.New()
	r := newTestRouter(&userID)
	r.GET("/wallet/fund/verify", (&PaymentHandler{}).VerifyFunding)

	w := doJSON(r, http.MethodGet, "/wallet/fund/verify?tx_ref=fund-1", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentHandler_Webhook(t *testing.T) {
	r := newTestRouter(nil)
	r.POST("/payments/webhook", (&PaymentHandler{}).Webhook)

	t.Run("незавершённый платёж пропускается", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/payments/webhook",
			`{"event": "charge.completed", "data": {"id": 1001, "tx_ref": "fund-1", "status": "failed"}}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "ignored")
	})

	t.Run("нет tx_ref", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/payments/webhook",
			`{"event": "charge.completed", "data": {"id": 1001, "status": "successful"}}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

type fakeMetricsStore struct {
	rows      []models.TaskMetricsRow
	completed int
	err       error
}

func (f *fakeMetricsStore) MetricsRows(context.Context, uuid.UUID) ([]models.TaskMetricsRow, error) {
	return f.rows, f.err
}

func (f *fakeMetricsStore) CountCompleted(context.Context, uuid.UUID) (int, error) {
	return f.completed, f.err
}

func TestDashboardHandler(t *testing.T) {
	userID := uuid.New()
	store := &fakeMetricsStore{
		rows: []models.TaskMetricsRow{
			{ID: uuid.New(), Category: models.CategoryCareTasks, Status: models.TaskStatusCompleted, PriceMax: decimal.NewFromInt(3000)},
			{ID: uuid.New(), Category: models.CategoryCareTasks, Status: models.TaskStatusOpen, PriceMax: decimal.NewFromInt(1000)},
		},
		completed: 4,
	}
	h := NewDashboardHandler(service.NewMetricsService(store))
	r := newTestRouter(&userID)
	r.GET("/dashboard/metrics", h.Metrics)
	r.GET("/dashboard/tier", h.Tier)

	w := doJSON(r, http.MethodGet, "/dashboard/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	var metrics models.DashboardMetrics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &metrics))
	assert.Equal(t, 2, metrics.TasksPosted)
	assert.Equal(t, 1, metrics.TasksCompleted)
	assert.Equal(t, models.SuccessBandAverage, metrics.SuccessRate.Band)

	w = doJSON(r, http.MethodGet, "/dashboard/tier", "")
	require.Equal(t, http.StatusOK, w.Code)
	var tier models.UserTier
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tier))
	assert.Equal(t, models.TierTwo, tier.Tier)

	store.err = errors.New("pq: connection reset")
	w = doJSON(r, http.MethodGet, "/dashboard/metrics", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "pq:")
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

func TestHealthHandler(t *testing.T) {
	stats := func() PoolStats { return PoolStats{OpenConnections: 2, InUse: 1, Idle: 1, MaxOpenConnections: 10} }

	r := newTestRouter(nil)
	r.GET("/health", NewHealthHandler(fakePinger{}, stats).Health)
	w := doJSON(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"open_connections":2`)

	r = newTestRouter(nil)
	r.GET("/health", NewHealthHandler(fakePinger{err: errors.New("down")}, nil).Health)
	w = doJSON(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func multipartRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestOpenUpload(t *testing.T) {
	png := append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, bytes.Repeat([]byte{0}, 32)...)

	r := newTestRouter(nil)
	r.POST("/upload", func(c *gin.Context) {
		file, closeFile, err := openUpload(c, "file", pictureUpload)
		if err != nil {
			_ = c.Error(err)
			return
		}
		defer closeFile()
		data, err := io.ReadAll(file.Reader)
		require.NoError(t, err)
		c.JSON(http.StatusOK, gin.H{"filename": file.Filename, "size": len(data)})
	})

	tests := []struct {
		name     string
		filename string
		content  []byte
		status   int
	}{
		{"png", "avatar.png", png, http.StatusOK},
		{"текст под видом картинки", "avatar.png", []byte("hello, this is not an image"), http.StatusBadRequest},
		{"расширение не совпадает", "avatar.jpg", png, http.StatusBadRequest},
		{"пустой файл", "avatar.png", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, multipartRequest(t, "file", tt.filename, tt.content))
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"size":40`)
			}
		})
	}
}
