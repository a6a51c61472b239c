package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel определяет уровни логирования
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel разбирает уровень из конфигурации, по умолчанию INFO
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Options - параметры инициализации логгера
type Options struct {
	Level      string
	Console    bool
	File       string // Пустой путь отключает запись в файл
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultOptions возвращает настройки по умолчанию
func DefaultOptions() Options {
	return Options{
		Level:      "info",
		Console:    true,
		File:       "logs/creatures.log",
		MaxSizeMB:  50,
		MaxBackups: 3,
		MaxAgeDays: 7,
		Compress:   true,
	}
}

var (
	mu         sync.RWMutex
	base       *zap.Logger
	sugar      *zap.SugaredLogger
	atomicLvl  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	fileWriter *lumberjack.Logger
)

// InitDefaultLogger инициализирует глобальный логгер. До вызова все функции логирования ничего не делают.
func InitDefaultLogger(opts Options) error {
	atomicLvl.SetLevel(ParseLevel(opts.Level).zapLevel())

	var cores []zapcore.Core
	if opts.Console {
		consoleEncoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			TimeKey:          "time",
			LevelKey:         "level",
			NameKey:          "component",
			MessageKey:       "msg",
			EncodeTime:       zapcore.TimeEncoderOfLayout("15:04:05"),
			EncodeLevel:      zapcore.CapitalColorLevelEncoder,
			EncodeName:       zapcore.FullNameEncoder,
			ConsoleSeparator: " ",
		})
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), atomicLvl))
	}

	var writer *lumberjack.Logger
	if opts.File != "" {
		writer = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
			LocalTime:  true,
		}
		fileEncoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			TimeKey:          "time",
			LevelKey:         "level",
			NameKey:          "component",
			MessageKey:       "msg",
			EncodeTime:       zapcore.ISO8601TimeEncoder,
			EncodeLevel:      zapcore.CapitalLevelEncoder,
			EncodeName:       zapcore.FullNameEncoder,
			ConsoleSeparator: " ",
		})
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(writer), atomicLvl))
	}

	if len(cores) == 0 {
		return fmt.Errorf("logging: no outputs configured")
	}

	logger := zap.New(zapcore.NewTee(cores...))

	mu.Lock()
	base = logger
	sugar = logger.Sugar()
	fileWriter = writer
	mu.Unlock()

	GetLoggerManager().reset()
	return nil
}

// CloseDefaultLogger сбрасывает буферы и закрывает файл логов
func CloseDefaultLogger() error {
	defer GetLoggerManager().reset()

	mu.Lock()
	defer mu.Unlock()

	var err error
	if base != nil {
		// Sync на stdout возвращает EINVAL на части платформ, это не ошибка
		_ = base.Sync()
	}
	if fileWriter != nil {
		err = fileWriter.Close()
	}
	base, sugar, fileWriter = nil, nil, nil
	return err
}

// SetLevel меняет уровень логирования на лету
func SetLevel(level LogLevel) {
	atomicLvl.SetLevel(level.zapLevel())
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Debug логирует сообщение уровня DEBUG
func Debug(format string, args ...interface{}) {
	if s := current(); s != nil {
		s.Debugf(format, args...)
	}
}

// Info логирует сообщение уровня INFO
func Info(format string, args ...interface{}) {
	if s := current(); s != nil {
		s.Infof(format, args...)
	}
}

// Warn логирует сообщение уровня WARN
func Warn(format string, args ...interface{}) {
	if s := current(); s != nil {
		s.Warnf(format, args...)
	}
}

// Error логирует сообщение уровня ERROR
func Error(format string, args ...interface{}) {
	if s := current(); s != nil {
		s.Errorf(format, args...)
	}
}
