// Package logger defines the small structured-logging surface the merchant
// components depend on, with a zap-backed production implementation and a noop
// for tests.
package logger

// Logger is the logging interface injected into the gate, facilitator client,
// and refund orchestrator.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// Noop discards all log output.
type Noop struct{}

func (Noop) Debug(string, map[string]any) {}
func (Noop) Info(string, map[string]any)  {}
func (Noop) Warn(string, map[string]any)  {}
func (Noop) Error(string, map[string]any) {}
