// Package compositor turns decoded photos into canvas-sized frames.  It owns
// the pixel buffer pool and the watermark overlay cache.
package compositor

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/Skryldev/photoreel/core"
	apperrors "github.com/Skryldev/photoreel/errors"
)

// ── Buffer pool ───────────────────────────────────────────────────────────────

// Pool hands out a fixed number of width×height RGBA buffers.  Buffers are
// allocated on first use and reused afterwards.  Safe for concurrent use.
type Pool struct {
	width, height int
	size          int

	free      chan *image.RGBA // nil entries are slots not yet allocated
	closed    chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	out map[*image.RGBA]struct{}
}

// NewPool creates a pool of size buffers of width×height pixels.
func NewPool(width, height, size int) (*Pool, error) {
	if width <= 0 || height <= 0 {
		return nil, apperrors.New(apperrors.CategoryResource, "pool.new",
			fmt.Errorf("%w: %dx%d", apperrors.ErrInvalidDimensions, width, height))
	}
	if size <= 0 {
		return nil, apperrors.New(apperrors.CategoryResource, "pool.new",
			fmt.Errorf("pool size must be positive, got %d", size))
	}
	p := &Pool{
		width:  width,
		height: height,
		size:   size,
		free:   make(chan *image.RGBA, size),
		closed: make(chan struct{}),
		out:    make(map[*image.RGBA]struct{}, size),
	}
	for i := 0; i < size; i++ {
		p.free <- nil
	}
	return p, nil
}

// Acquire blocks until a buffer is free, ctx is done, or the pool is closed.
// The returned buffer is fully transparent black.
func (p *Pool) Acquire(ctx context.Context) (*image.RGBA, error) {
	select {
	case <-p.closed:
		return nil, apperrors.New(apperrors.CategoryResource, "pool.acquire", apperrors.ErrPoolClosed)
	default:
	}

	var buf *image.RGBA
	select {
	case <-p.closed:
		return nil, apperrors.New(apperrors.CategoryResource, "pool.acquire", apperrors.ErrPoolClosed)
	case <-ctx.Done():
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "pool.acquire", ctx.Err())
	case buf = <-p.free:
	}

	if buf == nil {
		buf = image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	} else {
		clear(buf.Pix)
	}
	p.mu.Lock()
	p.out[buf] = struct{}{}
	p.mu.Unlock()
	return buf, nil
}

// Release returns buf to the pool.  Releasing a buffer that is not checked
// out is a programming error and panics.
func (p *Pool) Release(buf *image.RGBA) {
	p.mu.Lock()
	if _, ok := p.out[buf]; !ok {
		p.mu.Unlock()
		panic("compositor: release of a buffer that is not checked out")
	}
	delete(p.out, buf)
	p.mu.Unlock()
	p.free <- buf
}

// Close makes every pending and future Acquire fail with ErrPoolClosed.
// Checked-out buffers may still be released.
func (p *Pool) Close() {
	p.closeOnce.Do(func() { close(p.closed) })
}

// Outstanding reports how many buffers are checked out.
func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.out)
}

// Size is the number of buffers the pool manages.
func (p *Pool) Size() int { return p.size }

// Bounds is the rectangle every buffer covers.
func (p *Pool) Bounds() image.Rectangle { return image.Rect(0, 0, p.width, p.height) }

// Bytes is the pixel memory the pool may hold once every slot is allocated.
func (p *Pool) Bytes() int64 { return int64(p.size) * int64(p.width) * int64(p.height) * 4 }

var _ core.BufferReleaser = (*Pool)(nil)
