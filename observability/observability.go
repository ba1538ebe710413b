// Package observability provides structured logging and Prometheus metrics
// behind small interfaces, handed out per component by a Provider.
package observability

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Logger defines the interface for structured logging in the application.
type Logger interface {
	// Info logs informational messages for normal operations.
	Info(msg string, fields ...interface{})

	// Warn logs conditions that are recoverable but worth attention.
	Warn(msg string, fields ...interface{})

	// Error logs error conditions. Pass the actual error as a field value;
	// the implementation will extract details.
	Error(msg string, fields ...interface{})

	// Debug logs detailed information, usually disabled in production.
	Debug(msg string, fields ...interface{})

	// WithFields returns a new Logger with the given fields added to all
	// subsequent logs.
	WithFields(fields map[string]interface{}) Logger
}

// Metrics defines the interface for recording application metrics.
type Metrics interface {
	// IncrementCounter increments a counter metric by 1.
	IncrementCounter(name string, tags map[string]string)

	// RecordHistogram records a value in a histogram distribution.
	RecordHistogram(name string, value float64, tags map[string]string)

	// RecordGauge records a point-in-time measurement.
	RecordGauge(name string, value float64, tags map[string]string)

	// WithTags returns a new Metrics instance with additional default tags.
	WithTags(tags map[string]string) Metrics
}

// Config holds observability settings.
type Config struct {
	ServiceName    string
	Environment    string
	LogLevel       string
	LogOutput      io.Writer // defaults to os.Stdout
	MetricsEnabled bool
}

// Provider hands out Logger and Metrics instances scoped per component.
// Instances are memoized so repeated requests for the same component share
// state.
type Provider struct {
	config   *Config
	registry *prometheus.Registry
	root     Logger
	metrics  Metrics

	mu      sync.RWMutex
	loggers map[string]Logger
	scoped  map[string]Metrics
}

// NewProvider creates an observability provider. When metrics are disabled
// every component receives a no-op Metrics implementation.
func NewProvider(config *Config) *Provider {
	if config.LogOutput == nil {
		config.LogOutput = os.Stdout
	}

	p := &Provider{
		config:  config,
		loggers: make(map[string]Logger),
		scoped:  make(map[string]Metrics),
	}

	p.root = newJSONLogger(config.ServiceName, config.Environment, config.LogLevel, config.LogOutput, nil)

	if config.MetricsEnabled {
		p.registry = prometheus.NewRegistry()
		p.metrics = newPrometheusMetrics(p.registry, map[string]string{
			"service": config.ServiceName,
			"env":     config.Environment,
		})
	} else {
		p.metrics = NewNoopMetrics()
	}

	return p
}

// Registry returns the Prometheus registry backing this provider, or nil
// when metrics are disabled. The ops server exposes it on /metrics.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

// Components returns the root logger and metrics without scoping.
func (p *Provider) Components() (Logger, Metrics, error) {
	if p.root == nil || p.metrics == nil {
		return nil, nil, fmt.Errorf("observability not initialized")
	}
	return p.root, p.metrics, nil
}

// ComponentsScoped returns logger and metrics scoped to a specific component.
func (p *Provider) ComponentsScoped(component string) (Logger, Metrics, error) {
	if p.root == nil || p.metrics == nil {
		return nil, nil, fmt.Errorf("observability not initialized")
	}

	p.mu.RLock()
	l, lok := p.loggers[component]
	m, mok := p.scoped[component]
	p.mu.RUnlock()

	if lok && mok {
		return l, m, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check
	if l, ok := p.loggers[component]; ok {
		return l, p.scoped[component], nil
	}

	l = p.root.WithFields(map[string]interface{}{"component": component})
	m = p.metrics.WithTags(map[string]string{"component": component})

	p.loggers[component] = l
	p.scoped[component] = m

	return l, m, nil
}

// MustComponents is ComponentsScoped without the error return, for wiring
// code where a missing provider is a programming error.
func (p *Provider) MustComponents(component string) (Logger, Metrics) {
	l, m, err := p.ComponentsScoped(component)
	if err != nil {
		panic(err)
	}
	return l, m
}
