package reactor

import "github.com/owacoder/skate-reactor/logx"

type options struct {
	logger    logx.Logger
	errorHook func(error)
}

// Option configures a Reactor at construction.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithLogger routes reactor diagnostics through logger.
func WithLogger(logger logx.Logger) Option {
	return optionFunc(func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	})
}

// WithErrorHook installs the reactor-level error hook described in
// spec.md §7: invoked after a socket's own error hook for any error not
// locally recovered, and on its own for errors with no associated
// socket (e.g. multiplexer failure), which also cancels the loop.
func WithErrorHook(hook func(error)) Option {
	return optionFunc(func(o *options) {
		o.errorHook = hook
	})
}

func resolveOptions(opts []Option) *options {
	o := &options{logger: logx.NoOpLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(o)
		}
	}
	return o
}
