package observability

import "time"

// NoopLogger is a Logger that discards all messages. Useful in tests and as a
// safe default when no logger is injected.
type NoopLogger struct{}

// NewNoopLogger creates a new no-op logger.
func NewNoopLogger() Logger { return &NoopLogger{} }

func (l *NoopLogger) Debug(msg string, fields map[string]interface{}) {}
func (l *NoopLogger) Info(msg string, fields map[string]interface{})  {}
func (l *NoopLogger) Warn(msg string, fields map[string]interface{})  {}
func (l *NoopLogger) Error(msg string, fields map[string]interface{}) {}

func (l *NoopLogger) WithPrefix(prefix string) Logger { return l }

type noopMetricsClient struct{}

// NewNoopMetricsClient creates a MetricsClient that records nothing.
func NewNoopMetricsClient() MetricsClient { return noopMetricsClient{} }

func (noopMetricsClient) IncrementCounterWithLabels(name string, value float64, labels map[string]string) {
}
func (noopMetricsClient) RecordGauge(name string, value float64, labels map[string]string)     {}
func (noopMetricsClient) RecordHistogram(name string, value float64, labels map[string]string) {}
func (noopMetricsClient) RecordDuration(name string, duration time.Duration)                   {}
func (noopMetricsClient) Close() error                                                         { return nil }
