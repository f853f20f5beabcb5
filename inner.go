package photoreel

import (
	"sync/atomic"

	"github.com/Skryldev/photoreel/compositor"
	"github.com/Skryldev/photoreel/core"
)

// Registry exposes the decoder registry for advanced use (e.g. swapping a
// decoder in tests).  Prefer RegisterDecoder for normal usage.
func (e *Engine) Registry() core.Registry { return e.reg }

// Watermarks exposes the overlay cache so callers can inspect how often it
// was rebuilt.
func (e *Engine) Watermarks() *compositor.WatermarkCache { return e.watermarks }

// HeldBuffers reports how many frame buffers were still checked out of the
// pool when the last merge's pipeline returned.  Zero after every merge,
// including failed and cancelled ones.
func (e *Engine) HeldBuffers() int { return int(atomic.LoadInt64(&e.heldBuffers)) }
