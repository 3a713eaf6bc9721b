// Package logger предоставляет структурированное логирование на базе zerolog.
// JSON в production, ConsoleWriter при LOG_PRETTY=true.
// Каждая запись несёт имя сервиса и окружение, чтобы логи нескольких
// экземпляров Order Service различались в общем хранилище.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// log — глобальный логгер. До вызова Init пишет в stdout с уровнем info.
var log zerolog.Logger

// Config содержит настройки логгера.
type Config struct {
	Level       string    // debug / info / warn / error; по умолчанию info
	Pretty      bool      // читаемый вывод для разработки
	Service     string    // поле service в каждой записи
	Environment string    // поле env в каждой записи
	Output      io.Writer // по умолчанию os.Stdout
}

func init() {
	Init(Config{Level: "info"})
}

// Init настраивает глобальный логгер. Вызывается один раз при старте сервиса.
func Init(cfg Config) {
	log = New(cfg)
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339
}

// New создаёт логгер по конфигурации, не меняя глобальный.
func New(cfg Config) zerolog.Logger {
	var output io.Writer = os.Stdout
	if cfg.Output != nil {
		output = cfg.Output
	}

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(output).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Caller()

	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	if cfg.Environment != "" {
		ctx = ctx.Str("env", cfg.Environment)
	}

	return ctx.Logger()
}

// parseLevel преобразует строку в zerolog.Level. Неизвестное значение — info.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Debug создаёт событие уровня debug.
func Debug() *zerolog.Event {
	return log.Debug()
}

// Info создаёт событие уровня info.
// Пример: logger.Info().Str("order_id", id).Msg("Заказ создан")
func Info() *zerolog.Event {
	return log.Info()
}

// Warn создаёт событие уровня warn.
func Warn() *zerolog.Event {
	return log.Warn()
}

// Error создаёт событие уровня error.
func Error() *zerolog.Event {
	return log.Error()
}

// With создаёт дочерний логгер с дополнительными полями.
//
//	log := logger.With().Str("component", "reaper").Logger()
func With() zerolog.Context {
	return log.With()
}
