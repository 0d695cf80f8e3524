package core_test

import (
	"github.com/fluxorio/evbuffer/pkg/core"
)

// demoLoggerWithFields demonstrates adding structured fields to logs.
// This is a documentation example, not a runnable test.
func demoLoggerWithFields() {
	logger := core.NewDefaultLogger()

	withFields := logger.WithFields(map[string]interface{}{
		"buffer_id": "conn-42",
		"op":        "append",
		"bytes":     4096,
	})

	withFields.Info("segment allocated")
	// Outputs: [INFO] 2026/07/31 15:05:00 logger_example_test.go:18: segment allocated map[bytes:4096 buffer_id:conn-42 op:append]
}

// demoNewJSONLogger demonstrates structured JSON logging, the shape a
// caller would route into a log aggregator instead of a terminal.
// This is a documentation example, not a runnable test.
func demoNewJSONLogger() {
	logger := core.NewJSONLogger()

	withFields := logger.WithFields(map[string]interface{}{
		"service": "bufferevent-demo",
		"version": "1.0.0",
	})

	withFields.Info("server started")
	// Outputs: [INFO] ... logger_example_test.go:33: {"timestamp":"...","level":"INFO","message":"server started","fields":{"service":"bufferevent-demo","version":"1.0.0"}}
}

// demoLoggerErrorLogging demonstrates error logging with fields. (evbuffer.Buffer
// itself reports a recovered callback panic with Warnf and no fields.)
// This is a documentation example, not a runnable test.
func demoLoggerErrorLogging() {
	logger := core.NewDefaultLogger()

	logger.WithFields(map[string]interface{}{
		"buffer_id": "conn-42",
		"recovered": true,
	}).Error("evbuffer: callback panicked")
	// Outputs: [ERROR] ... logger_example_test.go:46: evbuffer: callback panicked map[buffer_id:conn-42 recovered:true]
}

// Ensure demo functions are used to avoid unused function warnings.
var _ = demoLoggerWithFields
var _ = demoNewJSONLogger
var _ = demoLoggerErrorLogging
