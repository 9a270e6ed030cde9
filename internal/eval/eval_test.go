package eval_test

import (
	"encoding/binary"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strand-ml/strand/internal/alloc"
	"github.com/strand-ml/strand/internal/array"
	"github.com/strand-ml/strand/internal/device"
	"github.com/strand-ml/strand/internal/dispatch"
	"github.com/strand-ml/strand/internal/eval"
	"github.com/strand-ml/strand/internal/sched"
)

// The tests run against a private registry population: a counting add
// kernel and host copy reader/writer stand in for the CPU backend.

var addCalls atomic.Int64

var failNext atomic.Bool

func init() {
	dispatch.RegisterReader(device.CPU, func(buf *alloc.Buffer, dst []byte) error {
		copy(dst, buf.Bytes())
		return nil
	})
	dispatch.RegisterWriter(device.CPU, func(buf *alloc.Buffer, src []byte) error {
		copy(buf.Bytes(), src)
		return nil
	})
	dispatch.Register(array.KindExp, device.CPU, func(c *dispatch.Call) error {
		<-doubleGate
		n := c.OutShape.NumElements()
		in := array.AsFloat32(c.Inputs[0].Bytes(), n)
		out := array.AsFloat32(c.Out.Bytes(), n)
		for i := range out {
			out[i] = 2 * in[i]
		}
		return nil
	})
	dispatch.Register(array.KindAdd, device.CPU, func(c *dispatch.Call) error {
		if failNext.Load() {
			return errors.New("injected kernel failure")
		}
		addCalls.Add(1)
		n := c.OutShape.NumElements()
		a := array.AsFloat32(c.Inputs[0].Bytes(), n)
		b := array.AsFloat32(c.Inputs[1].Bytes(), n)
		out := array.AsFloat32(c.Out.Bytes(), n)
		for i := range out {
			out[i] = a[i] + b[i]
		}
		return nil
	})
}

type addPrim struct{}

func (addPrim) Kind() array.Kind { return array.KindAdd }

func (addPrim) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	return shapes[0].Clone(), dtypes[0], nil
}

// doubleGate blocks the doubling kernel so a test can hold it in flight.
var doubleGate = make(chan struct{})

type doublePrim struct{}

func (doublePrim) Kind() array.Kind { return array.KindExp }

func (doublePrim) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	return shapes[0].Clone(), dtypes[0], nil
}

func newEngine() *eval.Engine {
	return eval.New(eval.Config{Alloc: alloc.DefaultConfig(), Sched: sched.DefaultConfig()})
}

func float32Bytes(vals []float32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func leaf(t *testing.T, e *eval.Engine, vals []float32) *array.Array {
	t.Helper()
	a, err := e.NewFromBytes(float32Bytes(vals), array.Shape{len(vals)}, array.Float32, device.CPU)
	require.NoError(t, err)
	return a
}

func TestEvaluateComputesPendingGraph(t *testing.T) {
	e := newEngine()
	x := leaf(t, e, []float32{1, 2, 3})
	y := leaf(t, e, []float32{10, 20, 30})

	sum, err := array.NewPending(addPrim{}, x, y)
	require.NoError(t, err)
	assert.Equal(t, array.Pending, sum.State())

	got, err := e.Float32s(sum)
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 22, 33}, got)
	assert.Equal(t, array.Materialized, sum.State())
}

func TestEvaluateExactlyOnce(t *testing.T) {
	e := newEngine()
	x := leaf(t, e, []float32{1, 1})

	// Diamond: top is reachable through two paths to mid.
	mid, err := array.NewPending(addPrim{}, x, x)
	require.NoError(t, err)
	top, err := array.NewPending(addPrim{}, mid, mid)
	require.NoError(t, err)

	before := addCalls.Load()
	require.NoError(t, e.Evaluate(top))
	require.NoError(t, e.Synchronize())
	assert.Equal(t, int64(2), addCalls.Load()-before, "each distinct node computes once")

	// Re-evaluating materialized nodes schedules nothing.
	require.NoError(t, e.Evaluate(top, mid))
	require.NoError(t, e.Synchronize())
	assert.Equal(t, int64(2), addCalls.Load()-before)

	got, err := e.Float32s(top)
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 4}, got)
}

func TestEvaluateSharedSubgraphAcrossOutputs(t *testing.T) {
	e := newEngine()
	x := leaf(t, e, []float32{2})

	shared, err := array.NewPending(addPrim{}, x, x)
	require.NoError(t, err)
	o1, err := array.NewPending(addPrim{}, shared, x)
	require.NoError(t, err)
	o2, err := array.NewPending(addPrim{}, shared, shared)
	require.NoError(t, err)

	before := addCalls.Load()
	require.NoError(t, e.Evaluate(o1, o2))
	require.NoError(t, e.Synchronize())
	assert.Equal(t, int64(3), addCalls.Load()-before)

	v1, err := e.Item(o1)
	require.NoError(t, err)
	v2, err := e.Item(o2)
	require.NoError(t, err)
	assert.Equal(t, 6.0, v1)
	assert.Equal(t, 8.0, v2)
}

func TestEvaluateRejectsUnboundParam(t *testing.T) {
	e := newEngine()
	p := array.NewParam(array.Shape{2}, array.Float32, device.CPU)
	out, err := array.NewPending(addPrim{}, p, p)
	require.NoError(t, err)
	assert.Error(t, e.Evaluate(out))
}

func TestKernelFailureSurfacesAtRead(t *testing.T) {
	e := newEngine()
	x := leaf(t, e, []float32{1})

	failNext.Store(true)
	defer failNext.Store(false)

	out, err := array.NewPending(addPrim{}, x, x)
	require.NoError(t, err)

	// Evaluate enqueues asynchronously and does not fail.
	require.NoError(t, e.Evaluate(out))

	// The failure surfaces at the read as a DeviceError.
	_, err = e.Float32s(out)
	require.Error(t, err)
	var derr *sched.DeviceError
	assert.True(t, errors.As(err, &derr))
}

// TestReleaseDuringInFlightKernel drops the last host reference to a kernel
// input while the kernel is blocked, piles on same-size allocations, and
// checks the kernel still reads the original values. The input block must
// stay out of the pool until its fence clears.
func TestReleaseDuringInFlightKernel(t *testing.T) {
	e := newEngine()

	vals := make([]float32, 16)
	for i := range vals {
		vals[i] = float32(i + 1)
	}
	x := leaf(t, e, vals)

	out, err := array.NewPending(doublePrim{}, x)
	require.NoError(t, err)
	require.NoError(t, e.Evaluate(out))

	// The kernel is enqueued and holding on the gate; this drops the last
	// reference outside the engine.
	x.Release()

	// Same size class as x: a pooled copy of x's block would be handed out
	// here and scribbled over before the kernel reads it.
	garbage := make([]float32, 16)
	for i := range garbage {
		garbage[i] = -1
	}
	y1 := leaf(t, e, garbage)
	y2 := leaf(t, e, garbage)

	_, pooled, deferredN := e.Allocator().Stats(device.CPU)
	assert.Zero(t, pooled, "nothing may be pooled while the kernel holds the input")
	assert.Zero(t, deferredN)

	close(doubleGate)
	got, err := e.Float32s(out)
	require.NoError(t, err)
	want := make([]float32, 16)
	for i := range want {
		want[i] = 2 * float32(i+1)
	}
	assert.Equal(t, want, got)

	g1, err := e.Float32s(y1)
	require.NoError(t, err)
	assert.Equal(t, garbage, g1)
	g2, err := e.Float32s(y2)
	require.NoError(t, err)
	assert.Equal(t, garbage, g2)

	// The kernel released the input with its fence still pending, so the
	// block parked on the deferred list; the next allocation retires it.
	require.NoError(t, e.Synchronize())
	_, _, deferredN = e.Allocator().Stats(device.CPU)
	assert.Equal(t, 1, deferredN)

	z := leaf(t, e, vals)
	_, _, deferredN = e.Allocator().Stats(device.CPU)
	assert.Zero(t, deferredN)
	gz, err := e.Float32s(z)
	require.NoError(t, err)
	assert.Equal(t, vals, gz)
}

func TestItemRequiresScalar(t *testing.T) {
	e := newEngine()
	x := leaf(t, e, []float32{1, 2})
	_, err := e.Item(x)
	assert.Error(t, err)
}

func TestNewFromBytesValidatesSize(t *testing.T) {
	e := newEngine()
	_, err := e.NewFromBytes(make([]byte, 7), array.Shape{2}, array.Float32, device.CPU)
	require.Error(t, err)
	var serr *array.ShapeError
	assert.True(t, errors.As(err, &serr))
}
