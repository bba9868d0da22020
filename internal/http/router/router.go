package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/errands-backend/internal/config"
	"github.com/ignatzorin/errands-backend/internal/http/handlers"
	"github.com/ignatzorin/errands-backend/internal/http/middleware"
	"github.com/ignatzorin/errands-backend/internal/metrics"
	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/service"
)

// Handlers все HTTP хэндлеры приложения.
type Handlers struct {
	Auth         *handlers.AuthHandler
	Verification *handlers.VerificationHandler
	Onboarding   *handlers.OnboardingHandler
	Wallet       *handlers.WalletHandler
	Payment      *handlers.PaymentHandler
	Task         *handlers.TaskHandler
	Application  *handlers.ApplicationHandler
	Review       *handlers.ReviewHandler
	Dashboard    *handlers.DashboardHandler
	Notification *handlers.NotificationHandler
	Health       *handlers.HealthHandler
	WS           *handlers.WSHandler
}

func SetupRouter(cfg *config.Config, h Handlers, tokenManager *service.TokenManager) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	if cfg.MetricsEnabled {
		r.Use(metrics.HTTPMetrics())
		r.GET("/metrics", metrics.Handler())
	}
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middleware.ErrorHandler())

	if cfg.MediaStoragePath != "" && !cfg.Cloudinary.Enabled() {
		r.StaticFS(cfg.MediaBaseURL, http.Dir(cfg.MediaStoragePath))
	}

	api := r.Group("/api")
	api.GET("/health", h.Health.Health)
	api.GET("/ws", h.WS.Handle)
	api.POST("/payments/webhook", h.Payment.Webhook)

	authRateLimit := middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod)

	authGroup := api.Group("/auth")
	authGroup.Use(authRateLimit)
	{
		authGroup.POST("/signup", h.Auth.Signup)
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/refresh", h.Auth.Refresh)
		authGroup.POST("/forgot-password", h.Verification.ForgotPassword)
		authGroup.POST("/reset-password", h.Verification.ResetPassword)
	}

	// Доступно и с токеном онбординга.
	onboarded := api.Group("")
	onboarded.Use(middleware.AuthMiddleware(tokenManager))
	{
		onboarded.POST("/auth/logout", h.Auth.Logout)
		onboarded.GET("/auth/me", h.Auth.Me)

		verification := onboarded.Group("/verification")
		verification.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
		verification.POST("/email/send", h.Verification.SendEmailCode)
		verification.POST("/email/verify", h.Verification.VerifyEmail)
		verification.POST("/phone/send", h.Verification.SendPhoneCode)
		verification.POST("/phone/verify", h.Verification.VerifyPhone)
		verification.POST("/resend", h.Verification.Resend)

		onboarding := onboarded.Group("/onboarding")
		onboarding.GET("/status", h.Onboarding.Status)
		onboarding.GET("/document-types", h.Onboarding.DocumentTypes)
		onboarding.POST("/identity", h.Onboarding.SubmitIdentity)
		onboarding.POST("/picture", h.Onboarding.UploadPicture)
		onboarding.PUT("/location", h.Onboarding.UpdateLocation)
		onboarding.POST("/terms", h.Onboarding.AcceptTerms)
		onboarding.GET("/withdrawal-methods", h.Onboarding.ListWithdrawalMethods)
		onboarding.POST("/withdrawal-methods", h.Onboarding.AddWithdrawalMethod)
		onboarding.DELETE("/withdrawal-methods/:id", middleware.UUIDValidator("id"), h.Onboarding.DeleteWithdrawalMethod)

		// пополнение кошелька последний шаг онбординга
		wallet := onboarded.Group("/wallet")
		wallet.GET("", h.Wallet.Get)
		wallet.GET("/payments", h.Payment.ListPayments)
		wallet.POST("/fund", h.Payment.Fund)
		wallet.GET("/fund/verify", h.Payment.VerifyFunding)
	}

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(tokenManager), middleware.RequireFullScope())
	{
		ledger := protected.Group("/wallet")
		ledger.GET("/transactions", h.Wallet.Transactions)
		ledger.GET("/reconcile", h.Wallet.Reconcile)

		tasks := protected.Group("/tasks")
		tasks.POST("", h.Task.Create)
		tasks.GET("/mine", h.Task.ListMine)
		tasks.GET("/available", h.Task.ListAvailable)
		tasks.GET("/journey", h.Task.Journey)
		tasks.GET("/:id", middleware.UUIDValidator("id"), h.Task.Get)
		tasks.POST("/:id/fund", middleware.UUIDValidator("id"), h.Task.Fund)
		tasks.POST("/:id/start", middleware.UUIDValidator("id"), h.Task.Start)
		tasks.POST("/:id/complete", middleware.UUIDValidator("id"), h.Task.Complete)
		tasks.POST("/:id/cancel", middleware.UUIDValidator("id"), h.Task.Cancel)
		tasks.POST("/:id/images", middleware.UUIDValidator("id"), h.Task.UploadImage)
		tasks.GET("/:id/images", middleware.UUIDValidator("id"), h.Task.ListImages)
		tasks.POST("/:id/applications", middleware.UUIDValidator("id"), h.Application.Apply)
		tasks.GET("/:id/applications", middleware.UUIDValidator("id"), h.Application.ListForTask)

		applications := protected.Group("/applications")
		applications.GET("/mine", h.Application.ListMine)
		applications.PUT("/:id/status", middleware.UUIDValidator("id"), h.Application.Decide)
		applications.GET("/:id/runner", middleware.UUIDValidator("id"), h.Application.RunnerDetails)
		applications.POST("/:id/review", middleware.UUIDValidator("id"), h.Review.CreateReview)

		protected.GET("/reviews/:id", middleware.UUIDValidator("id"), h.Review.GetReview)
		protected.GET("/users/:id/reviews", middleware.UUIDValidator("id"), h.Review.ListRunnerReviews)

		dashboard := protected.Group("/dashboard")
		dashboard.GET("/metrics", h.Dashboard.Metrics)
		dashboard.GET("/tier", h.Dashboard.Tier)

		notifications := protected.Group("/notifications")
		notifications.GET("", h.Notification.ListNotifications)
		notifications.GET("/unread-count", h.Notification.CountUnread)
		notifications.PUT("/read-all", h.Notification.MarkAllAsRead)
		notifications.PUT("/:id/read", middleware.UUIDValidator("id"), h.Notification.MarkAsRead)
		notifications.DELETE("/:id", middleware.UUIDValidator("id"), h.Notification.DeleteNotification)

		admin := protected.Group("/admin")
		admin.Use(middleware.RequireRole(models.RoleAdmin))
		admin.POST("/wallets/:user_id/adjust", middleware.UUIDValidator("user_id"), h.Wallet.Adjust)
	}

	return r
}
