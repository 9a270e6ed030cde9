package alloc

import (
	"sync"
	"sync/atomic"

	"github.com/strand-ml/strand/internal/device"
)

// Fence reports completion of asynchronous device work that touched a buffer.
// The scheduler's stream events implement this interface.
type Fence interface {
	Done() bool
}

// Buffer is a reference-counted block of device memory handed out by the
// Allocator. For CPU devices the memory is host-resident and accessible via
// Bytes; for accelerator devices Handle carries the backend-specific object.
//
// A buffer whose reference count reaches zero is not returned to the free
// pool until every recorded fence has completed: asynchronous readers or
// writers may still touch the memory after the last host-side reference is
// dropped.
type Buffer struct {
	a   *Allocator
	dev device.Device

	size     int // requested size in bytes
	capacity int // size-class capacity of the underlying block

	handle any
	host   []byte

	refs atomic.Int32

	mu     sync.Mutex
	fences []Fence
}

// Device returns the device the buffer lives on.
func (b *Buffer) Device() device.Device {
	return b.dev
}

// Size returns the requested size in bytes.
func (b *Buffer) Size() int {
	return b.size
}

// Capacity returns the size of the underlying block, which may exceed Size
// due to size-class rounding.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Bytes returns the host-resident memory of the buffer.
// Only valid for host-backed devices; accelerator buffers return nil.
func (b *Buffer) Bytes() []byte {
	if b.host == nil {
		return nil
	}
	return b.host[:b.size]
}

// Handle returns the backend-specific memory object for accelerator buffers.
func (b *Buffer) Handle() any {
	return b.handle
}

// Retain increments the reference count.
func (b *Buffer) Retain() {
	b.refs.Add(1)
}

// Release decrements the reference count. When it reaches zero the buffer is
// handed back to the allocator, which pools it once all fences are complete.
func (b *Buffer) Release() {
	if b.refs.Add(-1) == 0 {
		b.a.reclaim(b)
	}
}

// RecordFence notes asynchronous work that must complete before the buffer's
// memory may be reused. Called by the evaluator when it enqueues a task that
// reads or writes the buffer.
func (b *Buffer) RecordFence(f Fence) {
	if f == nil {
		return
	}
	b.mu.Lock()
	b.fences = append(b.fences, f)
	b.mu.Unlock()
}

// idle reports whether all recorded fences have completed, pruning the ones
// that have.
func (b *Buffer) idle() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, f := range b.fences {
		if !f.Done() {
			b.fences[n] = f
			n++
		}
	}
	b.fences = b.fences[:n]
	return n == 0
}
