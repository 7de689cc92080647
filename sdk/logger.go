package sdk

import (
	"regexp"
	"strings"
)

// Logger is the structured logger used by the SDK. It has the same shape as
// modular.Logger so an application logger can be passed straight through.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

var keyCharRegex = regexp.MustCompile(`[A-Za-z0-9]`)

// ObscureWriteKey masks all but the last four characters of a write key so
// it can be logged safely.
func ObscureWriteKey(key string) string {
	if len(key) > 4 {
		return keyCharRegex.ReplaceAllString(key[:len(key)-4], "*") + key[len(key)-4:]
	}
	return key
}

func obscureIn(s, key string) string {
	if key == "" {
		return s
	}
	return strings.ReplaceAll(s, key, ObscureWriteKey(key))
}
