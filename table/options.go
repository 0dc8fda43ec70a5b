package table

import (
	"log/slog"

	"github.com/TuSKan/emcore/storage"
)

// Option configures a File session.
type Option func(*options)

type options struct {
	format  string
	storage storage.Storage
	logger  *slog.Logger
}

func defaultOptions() *options {
	return &options{
		storage: storage.Default,
		logger:  slog.Default(),
	}
}

// WithFormat selects the table format by name instead of by extension.
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

// WithLogger sets the logger receiving session diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
