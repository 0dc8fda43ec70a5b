package imagefile

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/TuSKan/emcore"
)

// FormatInfo describes a format plugin.
type FormatInfo struct {
	// Name is the canonical format name, also accepted by WithFormat.
	Name string
	// Extensions are the file extensions resolving to the format.
	Extensions []string
	// StackExtensions are the extensions whose new files are stacks even
	// without WithStack.
	StackExtensions []string
	// Types are the element types the format stores.
	Types []emcore.Type
	// ReadOnly formats reject writable sessions.
	ReadOnly bool
	// New returns a fresh plugin instance.
	New func() Impl
}

type registry struct {
	mu      sync.RWMutex
	once    sync.Once
	formats map[string]*FormatInfo
}

var formats = &registry{formats: make(map[string]*FormatInfo)}

func (r *registry) init() {
	r.once.Do(registerBuiltins)
}

func (r *registry) add(info FormatInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := &info
	for _, key := range append([]string{info.Name}, info.Extensions...) {
		r.formats[strings.ToLower(key)] = f
	}
}

func (r *registry) lookup(key string) (*FormatInfo, bool) {
	r.init()
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.formats[strings.ToLower(strings.TrimPrefix(key, "."))]
	return f, ok
}

// RegisterFormat associates the format name and all of its extensions with
// info. A later registration for the same key replaces the earlier one.
func RegisterFormat(info FormatInfo) {
	formats.init()
	formats.add(info)
}

// HasImpl reports whether a format is registered under the name or
// extension key.
func HasImpl(key string) bool {
	_, ok := formats.lookup(key)
	return ok
}

// ImplTypes returns the element types of the format registered under key,
// or nil.
func ImplTypes(key string) []emcore.Type {
	f, ok := formats.lookup(key)
	if !ok {
		return nil
	}
	return slices.Clone(f.Types)
}

// Lookup returns the format registered under key.
func Lookup(key string) (FormatInfo, bool) {
	f, ok := formats.lookup(key)
	if !ok {
		return FormatInfo{}, false
	}
	return *f, true
}

// Formats returns the registered formats sorted by name.
func Formats() []FormatInfo {
	formats.init()
	formats.mu.RLock()
	defer formats.mu.RUnlock()
	byName := make(map[string]FormatInfo)
	for _, f := range formats.formats {
		byName[f.Name] = *f
	}
	out := make([]FormatInfo, 0, len(byName))
	for _, name := range slices.Sorted(maps.Keys(byName)) {
		out = append(out, byName[name])
	}
	return out
}

func registerBuiltins() {
	for _, info := range []FormatInfo{
		mrcFormat,
		spiderFormat,
		imagicFormat,
		emFormat,
		dmFormat,
		tiffFormat,
		pngFormat,
		jpegFormat,
	} {
		formats.add(info)
	}
}

func hasType(types []emcore.Type, t emcore.Type) bool {
	return slices.Contains(types, t)
}
