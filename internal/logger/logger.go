package logger

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Log глобальный логгер. До вызова Init пишет в stderr с уровнем info,
// чтобы сервисы можно было использовать в тестах без инициализации.
var Log = logrus.New()

// Init настраивает структурированный логгер. Экземпляр не пересоздаётся,
// чтобы записи из Component, созданные раньше, писали с новыми настройками.
func Init(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)

	// Используем JSON формат для production, text для development
	Log.SetFormatter(&logrus.JSONFormatter{})
}

// SetTextFormatter устанавливает текстовый формат логов (для development).
func SetTextFormatter() {
	if Log != nil {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}

// SetOutput перенаправляет вывод логгера (агент курьера пишет логи в файл, а не в терминал).
func SetOutput(w io.Writer) {
	Log.SetOutput(w)
}

// Component возвращает запись с полем component для логов подсистемы.
func Component(name string) *logrus.Entry {
	return Log.WithField("component", name)
}
