package core

import (
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// LogLevel is the textual level used in configuration files.
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
	FatalLevel LogLevel = "fatal"
)

var once sync.Once

type logger struct {
	*log.Logger
}

var singleton *logger

func getLogger() *logger {
	once.Do(
		func() {
			l := log.NewWithOptions(os.Stderr, log.Options{
				ReportCaller:    true,
				ReportTimestamp: true,
				TimeFormat:      time.RFC3339,
				Prefix:          "DAW 🎛️ ",
				// the wrappers below add one frame
				CallerOffset: 1,
			})
			l.SetLevel(log.DebugLevel)
			singleton = &logger{l}
		})
	return singleton
}

// SetLogLevel changes the level of the shared logger.
func SetLogLevel(level LogLevel) error {
	lvl, err := log.ParseLevel(string(level))
	if err != nil {
		return err
	}
	getLogger().SetLevel(lvl)
	return nil
}

// WithPrefix returns a child logger sharing the engine configuration,
// used to tag messages coming from a single renderer instance.
func WithPrefix(prefix string) *log.Logger {
	return getLogger().WithPrefix(prefix)
}

func LogDebug(msg string, args ...interface{}) {
	getLogger().Debugf(msg, args...)
}

func LogInfo(msg string, args ...interface{}) {
	getLogger().Infof(msg, args...)
}

func LogWarn(msg string, args ...interface{}) {
	getLogger().Warnf(msg, args...)
}

func LogError(msg string, args ...interface{}) {
	getLogger().Errorf(msg, args...)
}

func LogFatal(msg string, args ...interface{}) {
	getLogger().Fatalf(msg, args...)
}
