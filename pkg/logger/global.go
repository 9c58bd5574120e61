// pkg/logger/global.go
package logger

import (
	"sync"
)

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

func InitGlobal(logPath, logLevel string, color bool) error {
	l, err := NewLogger(logPath, logLevel, color)
	if err != nil {
		return err
	}
	SetGlobal(l)
	return nil
}

// SetGlobal подменяет глобальный логгер (nil отключает вывод)
func SetGlobal(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

func GetLogger() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// Глобальные методы для удобства
func Debug(format string, v ...interface{}) {
	if l := GetLogger(); l != nil {
		l.Debug(format, v...)
	}
}

func Info(format string, v ...interface{}) {
	if l := GetLogger(); l != nil {
		l.Info(format, v...)
	}
}

func Warn(format string, v ...interface{}) {
	if l := GetLogger(); l != nil {
		l.Warn(format, v...)
	}
}

func Error(format string, v ...interface{}) {
	if l := GetLogger(); l != nil {
		l.Error(format, v...)
	}
}

func Close() {
	if l := GetLogger(); l != nil {
		l.Close()
	}
}
