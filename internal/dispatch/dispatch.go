// Package dispatch is the registry tying primitives to concrete device
// kernels. Backends register their kernels, memory backing, and host
// transfer hooks at startup; the evaluator looks them up per node.
package dispatch

import (
	"sync"

	"github.com/strand-ml/strand/internal/alloc"
	"github.com/strand-ml/strand/internal/array"
	"github.com/strand-ml/strand/internal/device"
)

// Call carries everything a kernel needs: the primitive descriptor (for its
// static parameters), operand buffers with their shapes and dtypes, the
// pre-allocated output buffer, and the allocator for scratch memory.
type Call struct {
	Prim     array.Primitive
	Device   device.Device
	Inputs   []*alloc.Buffer
	InShapes []array.Shape
	InDTypes []array.DataType
	Out      *alloc.Buffer
	OutShape array.Shape
	OutDType array.DataType
	Scratch  *alloc.Allocator
}

// Kernel executes one primitive on one device. Kernels run on scheduler
// stream workers; a returned error becomes a DeviceError on that stream.
type Kernel func(c *Call) error

// Reader copies a device buffer's contents into host memory.
type Reader func(buf *alloc.Buffer, dst []byte) error

// Writer copies host memory into a device buffer.
type Writer func(buf *alloc.Buffer, src []byte) error

type kernelKey struct {
	kind array.Kind
	dev  device.Device
}

var (
	mu       sync.RWMutex
	kernels  = make(map[kernelKey]Kernel)
	readers  = make(map[device.Device]Reader)
	writers  = make(map[device.Device]Writer)
	backings = make(map[device.Device]alloc.Backing)
)

// Register installs the kernel for (kind, device). Later registrations win,
// so a backend may override the default implementation.
func Register(kind array.Kind, dev device.Device, k Kernel) {
	mu.Lock()
	kernels[kernelKey{kind, dev}] = k
	mu.Unlock()
}

// Lookup returns the kernel for (kind, device) or UnsupportedOperationError.
func Lookup(kind array.Kind, dev device.Device) (Kernel, error) {
	mu.RLock()
	k, ok := kernels[kernelKey{kind, dev}]
	mu.RUnlock()
	if !ok {
		return nil, &UnsupportedOperationError{Kind: kind, Device: dev}
	}
	return k, nil
}

// Supported reports whether a kernel is registered for (kind, device).
func Supported(kind array.Kind, dev device.Device) bool {
	mu.RLock()
	_, ok := kernels[kernelKey{kind, dev}]
	mu.RUnlock()
	return ok
}

// RegisterReader installs the device→host transfer hook for a device.
func RegisterReader(dev device.Device, r Reader) {
	mu.Lock()
	readers[dev] = r
	mu.Unlock()
}

// ReaderFor returns the device's reader or UnsupportedOperationError.
func ReaderFor(dev device.Device) (Reader, error) {
	mu.RLock()
	r, ok := readers[dev]
	mu.RUnlock()
	if !ok {
		return nil, &UnsupportedOperationError{Kind: -1, Device: dev, What: "buffer read"}
	}
	return r, nil
}

// RegisterWriter installs the host→device transfer hook for a device.
func RegisterWriter(dev device.Device, w Writer) {
	mu.Lock()
	writers[dev] = w
	mu.Unlock()
}

// WriterFor returns the device's writer or UnsupportedOperationError.
func WriterFor(dev device.Device) (Writer, error) {
	mu.RLock()
	w, ok := writers[dev]
	mu.RUnlock()
	if !ok {
		return nil, &UnsupportedOperationError{Kind: -1, Device: dev, What: "buffer write"}
	}
	return w, nil
}

// RegisterBacking installs the raw memory backing for a device. The
// evaluator forwards it to its allocator.
func RegisterBacking(dev device.Device, b alloc.Backing) {
	mu.Lock()
	backings[dev] = b
	mu.Unlock()
}

// Backings returns a snapshot of all registered device backings.
func Backings() map[device.Device]alloc.Backing {
	mu.RLock()
	defer mu.RUnlock()
	out := make(map[device.Device]alloc.Backing, len(backings))
	for d, b := range backings {
		out[d] = b
	}
	return out
}

// Devices lists devices that registered at least one kernel.
func Devices() []device.Device {
	mu.RLock()
	defer mu.RUnlock()
	seen := make(map[device.Device]struct{})
	var out []device.Device
	for key := range kernels {
		if _, ok := seen[key.dev]; !ok {
			seen[key.dev] = struct{}{}
			out = append(out, key.dev)
		}
	}
	return out
}
