package table

import (
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Block is a named table of a file.
type Block struct {
	Name  string
	Table *Table
}

// Impl is a table format codec.
type Impl interface {
	// Decode parses every block of r.
	Decode(r io.Reader, log *slog.Logger) ([]Block, error)
	// Encode writes blocks to w in order.
	Encode(w io.Writer, blocks []Block) error
}

// FormatInfo describes a table format.
type FormatInfo struct {
	Name       string
	Extensions []string
	ReadOnly   bool
	New        func() Impl
}

var (
	regMu   sync.RWMutex
	regOnce sync.Once
	reg     = make(map[string]*FormatInfo)
)

func register(info FormatInfo) {
	regMu.Lock()
	defer regMu.Unlock()
	f := &info
	for _, key := range append([]string{info.Name}, info.Extensions...) {
		reg[strings.ToLower(key)] = f
	}
}

func lookup(key string) (*FormatInfo, bool) {
	regOnce.Do(func() { register(starFormat) })
	regMu.RLock()
	defer regMu.RUnlock()
	f, ok := reg[strings.ToLower(strings.TrimPrefix(key, "."))]
	return f, ok
}

// RegisterFormat associates the format name and its extensions with info.
func RegisterFormat(info FormatInfo) {
	lookup("")
	register(info)
}

// HasImpl reports whether a table format is registered under key.
func HasImpl(key string) bool {
	_, ok := lookup(key)
	return ok
}
