package logging

import (
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Logger - именованный логгер компонента
type Logger struct {
	component string
	sugar     atomic.Pointer[zap.SugaredLogger]
}

// Component возвращает имя компонента
func (l *Logger) Component() string {
	return l.component
}

func (l *Logger) get() *zap.SugaredLogger {
	if s := l.sugar.Load(); s != nil {
		return s
	}
	// Глобальный логгер мог быть инициализирован позже компонента
	s := current()
	if s == nil {
		return nil
	}
	named := s.Named(l.component)
	l.sugar.Store(named)
	return named
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if s := l.get(); s != nil {
		s.Debugf(format, args...)
	}
}

func (l *Logger) Info(format string, args ...interface{}) {
	if s := l.get(); s != nil {
		s.Infof(format, args...)
	}
}

func (l *Logger) Warn(format string, args ...interface{}) {
	if s := l.get(); s != nil {
		s.Warnf(format, args...)
	}
}

func (l *Logger) Error(format string, args ...interface{}) {
	if s := l.get(); s != nil {
		s.Errorf(format, args...)
	}
}

// LoggerManager управляет логгерами для разных компонентов
type LoggerManager struct {
	mu      sync.Mutex
	loggers map[string]*Logger
}

var (
	globalManager *LoggerManager
	managerOnce   sync.Once
)

// GetLoggerManager возвращает глобальный менеджер логгеров
func GetLoggerManager() *LoggerManager {
	managerOnce.Do(func() {
		globalManager = &LoggerManager{
			loggers: make(map[string]*Logger),
		}
	})
	return globalManager
}

// GetLogger возвращает логгер для компонента, создавая его при необходимости
func (lm *LoggerManager) GetLogger(component string) *Logger {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if logger, exists := lm.loggers[component]; exists {
		return logger
	}
	logger := &Logger{component: component}
	lm.loggers[component] = logger
	return logger
}

// ListComponents возвращает отсортированный список зарегистрированных компонентов
func (lm *LoggerManager) ListComponents() []string {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	components := make([]string, 0, len(lm.loggers))
	for component := range lm.loggers {
		components = append(components, component)
	}
	sort.Strings(components)
	return components
}

// reset отвязывает компоненты от прежнего глобального логгера
func (lm *LoggerManager) reset() {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	for _, l := range lm.loggers {
		l.sugar.Store(nil)
	}
}

// GetComponentLogger возвращает логгер компонента
func GetComponentLogger(component string) *Logger {
	return GetLoggerManager().GetLogger(component)
}

func GetWorldLogger() *Logger {
	return GetComponentLogger("world")
}

func GetPhysicsLogger() *Logger {
	return GetComponentLogger("physics")
}

func GetServerLogger() *Logger {
	return GetComponentLogger("server")
}
