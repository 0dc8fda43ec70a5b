package imagefile

import (
	"log/slog"

	"github.com/TuSKan/emcore"
	"github.com/TuSKan/emcore/storage"
)

// Option configures a File session.
type Option func(*options)

type options struct {
	format  string
	storage storage.Storage
	stack   bool
	order   emcore.ByteOrder
	logger  *slog.Logger
}

func defaultOptions() *options {
	return &options{
		storage: storage.Default,
		logger:  slog.Default(),
	}
}

// WithFormat selects the format plugin by name instead of by extension.
func WithFormat(name string) Option {
	return func(o *options) {
		o.format = name
	}
}

// WithStorage opens files through s instead of the local file system.
func WithStorage(s storage.Storage) Option {
	return func(o *options) {
		if s != nil {
			o.storage = s
		}
	}
}

// WithStack makes newly created files of stack capable formats (SPIDER)
// stacks even when they start with a single item.
func WithStack(stack bool) Option {
	return func(o *options) {
		o.stack = stack
	}
}

// WithByteOrder sets the byte order of newly created files. The default is
// the host order.
func WithByteOrder(order emcore.ByteOrder) Option {
	return func(o *options) {
		o.order = order
	}
}

// WithLogger sets the logger receiving session diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
