package imagefile

import (
	"context"
	"io"

	"github.com/TuSKan/emcore"
)

// Batcher reads the items of a file in consecutive batches.
type Batcher struct {
	f *File
	// Next is the 1-based index of the first item of the next batch.
	Next int
}

// NewBatcher returns a Batcher starting at the first item of f.
func NewBatcher(f *File) *Batcher {
	return &Batcher{f: f, Next: 1}
}

// NextBatch reads up to size items into a as one stack. The last batch may
// be shorter. Returns io.EOF when every item has been read.
func (b *Batcher) NextBatch(ctx context.Context, size int, a *emcore.Array) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if size < 1 {
		return emcore.NewError("read", b.f.Path(), emcore.ErrInvalidOperation, nil)
	}
	n := b.f.Dim().N
	if b.Next > n {
		return io.EOF
	}
	count := min(size, n-b.Next+1)
	if err := b.f.ReadStack(b.Next, count, a); err != nil {
		return err
	}
	b.Next += count
	return nil
}
