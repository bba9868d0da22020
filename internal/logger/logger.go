package logger

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Log общий логгер приложения. До вызова Init пишет текстом с уровнем info.
var Log = logrus.New()

// Init настраивает уровень и формат общего логгера.
// В production пишем JSON с полями ts/level/msg, иначе читаемый текст.
func Init(level, env string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}

	Log.SetOutput(os.Stdout)
	Log.SetLevel(lvl)

	if env == "production" {
		Log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "ts",
			},
		})
	} else {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})
	}

	if err != nil {
		Log.WithField("level", level).Warn("logger: неизвестный уровень, используем info")
	}
}

// WithRequestID возвращает запись с идентификатором запроса.
func WithRequestID(requestID string) *logrus.Entry {
	if requestID == "" {
		return logrus.NewEntry(Log)
	}
	return Log.WithField("request_id", requestID)
}
