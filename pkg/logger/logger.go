package logger

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
)

type Logger struct {
	hl hclog.Logger
}

func New(name string) *Logger {
	level := hclog.Info
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		level = hclog.LevelFromString(lvl)
	}
	return &Logger{
		hl: hclog.New(&hclog.LoggerOptions{
			Name:   name,
			Level:  level,
			Output: os.Stderr,
		}),
	}
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.hl.Info(fmt.Sprintf(format, v...))
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.hl.Error(fmt.Sprintf(format, v...))
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.hl.Debug(fmt.Sprintf(format, v...))
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.hl.Error(fmt.Sprintf(format, v...))
	os.Exit(1)
}

// Global logger instance
var GlobalLogger = New("chat-server")

// Convenience functions
func Info(format string, v ...interface{}) {
	GlobalLogger.Info(format, v...)
}

func Error(format string, v ...interface{}) {
	GlobalLogger.Error(format, v...)
}

func Debug(format string, v ...interface{}) {
	GlobalLogger.Debug(format, v...)
}

func Fatal(format string, v ...interface{}) {
	GlobalLogger.Fatal(format, v...)
}
