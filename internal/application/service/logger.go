package service

import "time"

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type noopMetrics struct{}

func (noopMetrics) ObserveDecision(string, string, time.Duration) {}
func (noopMetrics) NotificationCreated(string)                     {}
func (noopMetrics) NotificationFailed(string)                      {}
