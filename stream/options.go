package stream

import (
	"github.com/berabot/feedguard/observe"
	"github.com/berabot/feedguard/resilience"
)

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l observe.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithMetrics sets where reconnect and dispatch metrics are recorded.
func WithMetrics(mt observe.Metrics) Option {
	return func(m *Manager) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// WithDialExecutor runs every dial through exec, typically a
// resilience.Guard wrapped by observe.Middleware.
func WithDialExecutor(exec resilience.Executor) Option {
	return func(m *Manager) {
		m.dialExec = exec
	}
}
