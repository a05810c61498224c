package mux

import "github.com/owacoder/skate-reactor/logx"

// options holds construction-time configuration shared by every back-end.
type options struct {
	logger logx.Logger
}

// Option configures a back-end at construction.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithLogger stores logger on the back-end; a nil logger is ignored. None
// of the back-ends in this package writes entries to it: an interrupted
// wait (EINTR) makes Poll return nil without logging or retrying.
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
