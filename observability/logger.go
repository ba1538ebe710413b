package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log message.
type LogLevel int

// Log level constants ordered by severity (lowest to highest).
const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// ParseLevel converts a string representation to a LogLevel.
// Unrecognized levels default to InfoLevel.
func ParseLevel(level string) LogLevel {
	switch level {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// String returns the string representation of a LogLevel.
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}

// jsonLogger writes one JSON object per log line with consistent field
// structure: timestamp, level, service, env, hostname, message, then
// persistent and call-specific fields. It is safe for concurrent use.
type jsonLogger struct {
	mu          sync.Mutex
	output      io.Writer
	serviceName string
	environment string
	hostname    string
	minLevel    LogLevel
	fields      map[string]interface{}
}

func newJSONLogger(serviceName, environment, logLevel string, output io.Writer, fields map[string]interface{}) *jsonLogger {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	if output == nil {
		output = os.Stdout
	}

	return &jsonLogger{
		output:      output,
		serviceName: serviceName,
		environment: environment,
		hostname:    hostname,
		minLevel:    ParseLevel(logLevel),
		fields:      fields,
	}
}

func (l *jsonLogger) Info(msg string, fields ...interface{}) {
	if l.minLevel > InfoLevel {
		return
	}
	l.log(InfoLevel, msg, fields)
}

func (l *jsonLogger) Warn(msg string, fields ...interface{}) {
	if l.minLevel > WarnLevel {
		return
	}
	l.log(WarnLevel, msg, fields)
}

func (l *jsonLogger) Error(msg string, fields ...interface{}) {
	if l.minLevel > ErrorLevel {
		return
	}
	l.log(ErrorLevel, msg, fields)
}

func (l *jsonLogger) Debug(msg string, fields ...interface{}) {
	if l.minLevel > DebugLevel {
		return
	}
	l.log(DebugLevel, msg, fields)
}

// WithFields returns a new logger that includes the given fields in every
// entry. The parent logger is not modified.
func (l *jsonLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	return &jsonLogger{
		output:      l.output,
		serviceName: l.serviceName,
		environment: l.environment,
		hostname:    l.hostname,
		minLevel:    l.minLevel,
		fields:      merged,
	}
}

// log assembles the entry and writes it as a single JSON line. Variadic
// fields are interpreted as alternating key/value pairs; a trailing key
// without a value is recorded with a nil value. Error values are rendered
// via Error().
func (l *jsonLogger) log(level LogLevel, msg string, fields []interface{}) {
	entry := make(map[string]interface{}, 6+len(l.fields)+len(fields)/2)

	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["service"] = l.serviceName
	entry["env"] = l.environment
	entry["hostname"] = l.hostname
	entry["message"] = msg

	for k, v := range l.fields {
		entry[k] = v
	}

	for i := 0; i < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			key = fmt.Sprintf("field_%d", i)
		}

		if i+1 >= len(fields) {
			entry[key] = nil
			continue
		}

		switch v := fields[i+1].(type) {
		case error:
			entry[key] = v.Error()
		default:
			entry[key] = v
		}
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write(jsonBytes)
	l.output.Write([]byte("\n"))
}

// NewTestLogger returns a logger writing to the given writer at debug level,
// for use in tests.
func NewTestLogger(output io.Writer) Logger {
	return newJSONLogger("test", "test", "debug", output, nil)
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return newJSONLogger("nop", "test", "error", io.Discard, nil)
}
