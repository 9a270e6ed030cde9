package array

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/strand-ml/strand/internal/alloc"
	"github.com/strand-ml/strand/internal/device"
)

// State is the lifecycle state of an Array.
type State int

const (
	// Pending arrays reference a Primitive and its input arrays; no
	// computation has happened yet.
	Pending State = iota
	// Materialized arrays own a device buffer. The transition from Pending
	// happens exactly once, the first time evaluation forces the node.
	Materialized
)

// Completion marks readiness of asynchronously produced data. The
// scheduler's stream events implement it; Wait surfaces any DeviceError
// recorded on the producing stream.
type Completion interface {
	Done() bool
	Wait() error
}

// Array is a lazily-evaluated tensor handle: fixed shape, element type and
// device placement, plus a state that is either a pending graph node or a
// materialized device buffer.
//
// Arrays are shared-ownership handles. Graph edges (a pending node's inputs)
// hold references; user code holds the initial reference and may drop it
// eagerly with Free, otherwise a finalizer drops it on collection.
type Array struct {
	shape Shape
	dtype DataType
	dev   device.Device

	refs  atomic.Int32
	freed atomic.Bool

	mu     sync.Mutex
	state  State
	prim   Primitive
	inputs []*Array
	buf    *alloc.Buffer
	ready  Completion
	param  bool
}

// NewPending constructs a graph node for p over the given inputs. It is O(1)
// and performs no computation: shape inference runs eagerly (so ShapeError
// and DTypeError surface at construction), input references are retained,
// and the node starts Pending. On error no node is committed.
func NewPending(p Primitive, inputs ...*Array) (*Array, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%s: primitive requires at least one input", p.Kind())
	}
	dev := inputs[0].dev
	shapes := make([]Shape, len(inputs))
	dtypes := make([]DataType, len(inputs))
	for i, in := range inputs {
		if in.dev != dev {
			return nil, fmt.Errorf("%s: inputs span devices %s and %s; cross-device graphs are not supported",
				p.Kind(), dev, in.dev)
		}
		shapes[i] = in.shape
		dtypes[i] = in.dtype
	}

	shape, dtype, err := p.InferShape(shapes, dtypes)
	if err != nil {
		return nil, err
	}
	return newNode(p, shape, dtype, dev, inputs), nil
}

// NewPendingAt constructs a node with a known output shape and dtype,
// skipping inference. Used when replaying a cached trace, where shapes were
// validated when the trace was recorded.
func NewPendingAt(p Primitive, shape Shape, dtype DataType, dev device.Device, inputs []*Array) *Array {
	return newNode(p, shape, dtype, dev, inputs)
}

func newNode(p Primitive, shape Shape, dtype DataType, dev device.Device, inputs []*Array) *Array {
	for _, in := range inputs {
		in.Retain()
	}
	a := &Array{
		shape:  shape.Clone(),
		dtype:  dtype,
		dev:    dev,
		state:  Pending,
		prim:   p,
		inputs: append([]*Array(nil), inputs...),
	}
	a.refs.Store(1)
	runtime.SetFinalizer(a, (*Array).finalize)
	return a
}

// NewParam constructs a placeholder leaf used while tracing a function.
// Evaluating an unbound parameter is an error.
func NewParam(shape Shape, dtype DataType, dev device.Device) *Array {
	a := &Array{
		shape: shape.Clone(),
		dtype: dtype,
		dev:   dev,
		state: Pending,
		param: true,
	}
	a.refs.Store(1)
	runtime.SetFinalizer(a, (*Array).finalize)
	return a
}

// FromBuffer wraps an already-populated device buffer as a materialized
// array, taking over one buffer reference. ready may be nil for host-staged
// data that needs no synchronization.
func FromBuffer(buf *alloc.Buffer, shape Shape, dtype DataType, dev device.Device, ready Completion) *Array {
	a := &Array{
		shape: shape.Clone(),
		dtype: dtype,
		dev:   dev,
		state: Materialized,
		buf:   buf,
		ready: ready,
	}
	a.refs.Store(1)
	runtime.SetFinalizer(a, (*Array).finalize)
	return a
}

// Shape returns the array's shape. Fixed at construction.
func (a *Array) Shape() Shape { return a.shape }

// DType returns the array's element type. Fixed at construction.
func (a *Array) DType() DataType { return a.dtype }

// Device returns the array's device placement. Fixed at construction.
func (a *Array) Device() device.Device { return a.dev }

// NumElements returns the total number of elements.
func (a *Array) NumElements() int { return a.shape.NumElements() }

// ByteSize returns the array's memory footprint in bytes.
func (a *Array) ByteSize() int { return a.shape.ByteSize(a.dtype) }

// State returns the array's current lifecycle state.
func (a *Array) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// IsParam reports whether the array is a trace placeholder.
func (a *Array) IsParam() bool { return a.param }

// Prim returns the pending node's primitive, or nil once materialized.
func (a *Array) Prim() Primitive {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.prim
}

// Inputs returns the pending node's input arrays. The slice is shared; do
// not mutate.
func (a *Array) Inputs() []*Array {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inputs
}

// Buffer returns the materialized buffer, or nil while pending.
func (a *Array) Buffer() *alloc.Buffer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf
}

// Ready returns the completion marker for the buffer's producing task, or
// nil when the data needs no synchronization.
func (a *Array) Ready() Completion {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

// Materialize transitions the node from Pending to Materialized, taking over
// one reference on buf. The node's graph edges are dropped so upstream
// intermediates can be reclaimed. Called by the evaluator exactly once per
// node; a second call is a bug.
func (a *Array) Materialize(buf *alloc.Buffer, ready Completion) {
	a.mu.Lock()
	if a.state == Materialized {
		a.mu.Unlock()
		panic("array: node materialized twice")
	}
	a.state = Materialized
	a.buf = buf
	a.ready = ready
	a.prim = nil
	inputs := a.inputs
	a.inputs = nil
	a.mu.Unlock()

	for _, in := range inputs {
		in.Release()
	}
}

// Retain increments the array's reference count.
func (a *Array) Retain() {
	a.refs.Add(1)
}

// Release decrements the reference count. Dropping the last reference
// releases the buffer reference (materialized) or the graph edges (pending).
func (a *Array) Release() {
	if a.refs.Add(-1) != 0 {
		return
	}
	a.mu.Lock()
	buf := a.buf
	inputs := a.inputs
	a.buf = nil
	a.inputs = nil
	a.mu.Unlock()

	if buf != nil {
		buf.Release()
	}
	for _, in := range inputs {
		in.Release()
	}
}

// Free eagerly drops the creator's reference instead of waiting for the
// garbage collector. The handle must not be used afterwards.
func (a *Array) Free() {
	if a.freed.CompareAndSwap(false, true) {
		runtime.SetFinalizer(a, nil)
		a.Release()
	}
}

func (a *Array) finalize() {
	if a.freed.CompareAndSwap(false, true) {
		a.Release()
	}
}

// String returns a short description of the array.
func (a *Array) String() string {
	state := "pending"
	if a.State() == Materialized {
		state = "materialized"
	}
	return fmt.Sprintf("Array[%s]%v on %s (%s)", a.dtype, a.shape, a.dev, state)
}
