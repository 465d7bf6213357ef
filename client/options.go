package client

import (
	"time"

	"github.com/andydunstall/mergedb/pkg/log"
)

type options struct {
	timeout time.Duration
	logger  log.Logger
}

type Option interface {
	apply(*options)
}

type timeoutOption time.Duration

func (o timeoutOption) apply(opts *options) {
	opts.timeout = time.Duration(o)
}

// WithTimeout configures the timeout of each request. Defaults to 15
// seconds.
func WithTimeout(timeout time.Duration) Option {
	return timeoutOption(timeout)
}

type loggerOption struct {
	Logger log.Logger
}

func (o loggerOption) apply(opts *options) {
	opts.logger = o.Logger
}

// WithLogger configures the logger. Defaults to no output.
func WithLogger(logger log.Logger) Option {
	return loggerOption{Logger: logger}
}
