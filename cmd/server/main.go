package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/errands-backend/internal/config"
	"github.com/ignatzorin/errands-backend/internal/db"
	"github.com/ignatzorin/errands-backend/internal/goroutine"
	httpHandlers "github.com/ignatzorin/errands-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/errands-backend/internal/http/router"
	"github.com/ignatzorin/errands-backend/internal/logger"
	"github.com/ignatzorin/errands-backend/internal/metrics"
	"github.com/ignatzorin/errands-backend/internal/notify"
	"github.com/ignatzorin/errands-backend/internal/payment"
	"github.com/ignatzorin/errands-backend/internal/repository"
	"github.com/ignatzorin/errands-backend/internal/service"
	"github.com/ignatzorin/errands-backend/internal/storage"
	"github.com/ignatzorin/errands-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Log.WithError(err).Fatal("main: ошибка загрузки конфигурации")
	}
	logger.Init(cfg.LogLevel, cfg.Env)

	if err := run(ctx, cfg); err != nil {
		logger.Log.WithError(err).Error("main: сервер завершился с ошибкой")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL, db.PoolConfig{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		return err
	}

	if cfg.MetricsEnabled {
		metrics.Init()
	}

	files, err := newFileStorage(cfg)
	if err != nil {
		return err
	}

	// Вебсокеты.
	hub := ws.NewHub()
	goroutine.SafeGoWithContext(ctx, hub.Run)

	// Репозитории.
	walletRepo := repository.NewWalletRepository(dbConn, cfg.WalletCurrency)
	userRepo := repository.NewUserRepository(dbConn, walletRepo)
	verificationRepo := repository.NewVerificationRepository(dbConn, userRepo)
	withdrawalRepo := repository.NewWithdrawalRepository(dbConn)
	paymentRepo := repository.NewPaymentRepository(dbConn, walletRepo)
	taskRepo := repository.NewTaskRepository(dbConn, walletRepo, cfg.EscrowEnabled)
	applicationRepo := repository.NewApplicationRepository(dbConn)
	reviewRepo := repository.NewReviewRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	// Сервисы.
	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	notificationService := service.NewNotificationService(notificationRepo, hub)
	verificationService := service.NewVerificationService(verificationRepo, userRepo, newSender(cfg), cfg.OTPTTL)
	authService := service.NewAuthService(userRepo, tokenManager, verificationService)
	onboardingService := service.NewOnboardingService(userRepo, verificationRepo, withdrawalRepo, files)
	walletService := service.NewWalletService(walletRepo)
	paymentService := service.NewPaymentService(paymentRepo, userRepo,
		payment.NewFlutterwaveGateway(cfg.Flutterwave.BaseURL, cfg.Flutterwave.SecretKey),
		notificationService, service.PaymentConfig{
			Currency:    cfg.WalletCurrency,
			RedirectURL: cfg.Flutterwave.RedirectURL,
			WebhookHash: cfg.Flutterwave.WebhookHash,
		})
	taskService := service.NewTaskService(taskRepo, notificationService)
	taskImageService := service.NewTaskImageService(taskRepo, files)
	applicationService := service.NewApplicationService(applicationRepo, taskRepo, notificationService)
	reviewService := service.NewReviewService(reviewRepo, notificationService)
	metricsService := service.NewMetricsService(taskRepo)

	// HTTP хэндлеры.
	engine := httpRouter.SetupRouter(cfg, httpRouter.Handlers{
		Auth:         httpHandlers.NewAuthHandler(authService),
		Verification: httpHandlers.NewVerificationHandler(verificationService, authService),
		Onboarding:   httpHandlers.NewOnboardingHandler(onboardingService),
		Wallet:       httpHandlers.NewWalletHandler(walletService),
		Payment:      httpHandlers.NewPaymentHandler(paymentService),
		Task:         httpHandlers.NewTaskHandler(taskService, taskImageService),
		Application:  httpHandlers.NewApplicationHandler(applicationService),
		Review:       httpHandlers.NewReviewHandler(reviewService),
		Dashboard:    httpHandlers.NewDashboardHandler(metricsService),
		Notification: httpHandlers.NewNotificationHandler(notificationService),
		Health:       httpHandlers.NewHealthHandler(dbConn, poolStats(dbConn)),
		WS:           httpHandlers.NewWSHandler(hub, tokenManager, cfg.AllowedOrigins),
	}, tokenManager)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	goroutine.SafeGo(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.WithError(err).Error("main: ошибка остановки http сервера")
		}
	})

	logger.Log.WithFields(logrus.Fields{
		"port":       cfg.HTTPPort,
		"env":        cfg.Env,
		"escrow":     cfg.EscrowEnabled,
		"cloudinary": cfg.Cloudinary.Enabled(),
	}).Info("main: HTTP сервер запущен")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// Дожидаемся фоновых уведомлений и остановки хаба.
	goroutine.Wait()
	logger.Log.Info("main: сервер остановлен")
	return nil
}

func newFileStorage(cfg *config.Config) (storage.FileStorage, error) {
	if cfg.Cloudinary.Enabled() {
		return storage.NewCloudinaryStorage(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.MaxUploadSizeMB)
	}
	return storage.NewLocalStorage(cfg.MediaStoragePath, cfg.MediaBaseURL, cfg.MaxUploadSizeMB)
}

func newSender(cfg *config.Config) notify.Sender {
	if cfg.Brevo.APIKey == "" {
		logger.Log.Warn("main: BREVO_API_KEY не задан, коды пишутся только в лог")
		return notify.LogSender{}
	}
	return notify.NewBrevoSender(cfg.Brevo.BaseURL, cfg.Brevo.APIKey, cfg.Brevo.SenderEmail, cfg.Brevo.SenderName)
}

func poolStats(conn *sqlx.DB) func() httpHandlers.PoolStats {
	return func() httpHandlers.PoolStats {
		s := conn.Stats()
		return httpHandlers.PoolStats{
			OpenConnections:    s.OpenConnections,
			InUse:              s.InUse,
			Idle:               s.Idle,
			MaxOpenConnections: s.MaxOpenConnections,
			WaitCount:          s.WaitCount,
		}
	}
}

// safeClose закрывает соединение с базой.
func safeClose(conn *sqlx.DB) {
	if err := conn.Close(); err != nil {
		logger.Log.WithError(err).Error("main: ошибка закрытия базы")
	}
}
