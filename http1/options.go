package http1

import "github.com/owacoder/skate-reactor/logx"

type options struct {
	logger logx.Logger
}

// Option configures a ClientConn or ServerConn at construction.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithLogger routes protocol diagnostics through logger: a read failure
// or malformed message is logged before the connection is closed.
// Framing decisions are not logged.
func WithLogger(logger logx.Logger) Option {
	return optionFunc(func(o *options) {
		if logger != nil {
			o.logger = logger
		}
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
