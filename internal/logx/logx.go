// Package logx holds logger helpers shared by packages that accept a runtime.Logger.
package logx

import "github.com/heroiclabs/nakama-common/runtime"

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) WithField(string, interface{}) runtime.Logger {
	return nopLogger{}
}
func (nopLogger) WithFields(map[string]interface{}) runtime.Logger {
	return nopLogger{}
}
func (nopLogger) Fields() map[string]interface{} {
	return nil
}

// Nop returns a logger that discards everything.
func Nop() runtime.Logger {
	return nopLogger{}
}

// OrNop returns logger, or Nop when logger is nil.
func OrNop(logger runtime.Logger) runtime.Logger {
	if logger == nil {
		return Nop()
	}
	return logger
}
