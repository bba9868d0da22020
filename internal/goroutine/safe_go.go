package goroutine

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/errands-backend/internal/logger"
)

// RecoveryHandler запускает фоновые задачи с перехватом panic и учётом незавершённых.
type RecoveryHandler struct {
	log func() *logrus.Logger
	wg  sync.WaitGroup
}

// NewRecoveryHandler создаёт обработчик. log вызывается при каждой panic.
func NewRecoveryHandler(log func() *logrus.Logger) *RecoveryHandler {
	return &RecoveryHandler{log: log}
}

// SafeGo запускает горутину с обработкой panic.
func (rh *RecoveryHandler) SafeGo(fn func()) {
	rh.wg.Add(1)
	go func() {
		defer rh.wg.Done()
		defer rh.handlePanic()
		fn()
	}()
}

// SafeGoWithContext запускает горутину с контекстом, который не отменяется вместе с родительским.
func (rh *RecoveryHandler) SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	detached := context.WithoutCancel(ctx)
	rh.SafeGo(func() { fn(detached) })
}

// Wait ждёт завершения запущенных горутин. Вызывается при остановке сервера.
func (rh *RecoveryHandler) Wait() {
	rh.wg.Wait()
}

func (rh *RecoveryHandler) handlePanic() {
	if r := recover(); r != nil {
		rh.log().WithFields(logrus.Fields{
			"panic": r,
			"stack": string(debug.Stack()),
		}).Error("goroutine: panic в фоновой задаче")
	}
}

// DefaultRecoveryHandler глобальный обработчик, пишет в logger.Log.
var DefaultRecoveryHandler = NewRecoveryHandler(func() *logrus.Logger { return logger.Log })

// SafeGo запускает безопасную горутину через DefaultRecoveryHandler.
func SafeGo(fn func()) {
	DefaultRecoveryHandler.SafeGo(fn)
}

// SafeGoWithContext запускает безопасную горутину с контекстом через DefaultRecoveryHandler.
func SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	DefaultRecoveryHandler.SafeGoWithContext(ctx, fn)
}

// Wait ждёт завершения горутин DefaultRecoveryHandler.
func Wait() {
	DefaultRecoveryHandler.Wait()
}
