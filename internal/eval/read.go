package eval

import (
	"fmt"

	"github.com/strand-ml/strand/internal/array"
	"github.com/strand-ml/strand/internal/device"
	"github.com/strand-ml/strand/internal/dispatch"
)

// Bytes forces a, waits for the producing task (implicit synchronization via
// read), and copies the raw element bytes to host memory. Asynchronous
// kernel failures surface here as DeviceError.
func (e *Engine) Bytes(a *array.Array) ([]byte, error) {
	if err := e.Evaluate(a); err != nil {
		return nil, err
	}
	if ready := a.Ready(); ready != nil {
		if err := ready.Wait(); err != nil {
			return nil, err
		}
	}
	buf := a.Buffer()
	if buf == nil {
		return nil, fmt.Errorf("eval: array has no buffer after evaluation")
	}
	reader, err := dispatch.ReaderFor(a.Device())
	if err != nil {
		return nil, err
	}
	dst := make([]byte, a.ByteSize())
	if err := reader(buf, dst); err != nil {
		return nil, err
	}
	return dst, nil
}

// Float64s reads a's elements converted to float64, whatever the dtype.
func (e *Engine) Float64s(a *array.Array) ([]float64, error) {
	raw, err := e.Bytes(a)
	if err != nil {
		return nil, err
	}
	return array.DecodeFloat64s(raw, a.DType(), a.NumElements()), nil
}

// Float32s reads a's elements as float32. Float32 arrays are read directly;
// other dtypes (including float16 and bfloat16) are converted.
func (e *Engine) Float32s(a *array.Array) ([]float32, error) {
	raw, err := e.Bytes(a)
	if err != nil {
		return nil, err
	}
	n := a.NumElements()
	if a.DType() == array.Float32 {
		out := make([]float32, n)
		copy(out, array.AsFloat32(raw, n))
		return out, nil
	}
	wide := array.DecodeFloat64s(raw, a.DType(), n)
	out := make([]float32, n)
	for i, v := range wide {
		out[i] = float32(v)
	}
	return out, nil
}

// Int64s reads a's elements as int64 (truncating floats).
func (e *Engine) Int64s(a *array.Array) ([]int64, error) {
	raw, err := e.Bytes(a)
	if err != nil {
		return nil, err
	}
	n := a.NumElements()
	if a.DType() == array.Int64 {
		out := make([]int64, n)
		copy(out, array.AsInt64(raw, n))
		return out, nil
	}
	wide := array.DecodeFloat64s(raw, a.DType(), n)
	out := make([]int64, n)
	for i, v := range wide {
		out[i] = int64(v)
	}
	return out, nil
}

// Bools reads a's elements as bool.
func (e *Engine) Bools(a *array.Array) ([]bool, error) {
	raw, err := e.Bytes(a)
	if err != nil {
		return nil, err
	}
	n := a.NumElements()
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		out[i] = raw[i*a.DType().Size()] != 0
	}
	return out, nil
}

// Item reads the single element of a scalar array as float64.
func (e *Engine) Item(a *array.Array) (float64, error) {
	if a.NumElements() != 1 {
		return 0, fmt.Errorf("eval: Item requires a scalar, got shape %v", a.Shape())
	}
	vals, err := e.Float64s(a)
	if err != nil {
		return 0, err
	}
	return vals[0], nil
}

// NewFromBytes stages host data into a device buffer and wraps it as a
// materialized array. The write happens through the device's registered
// writer, so it works for accelerators as well as the CPU.
func (e *Engine) NewFromBytes(data []byte, shape array.Shape, dtype array.DataType, dev device.Device) (*array.Array, error) {
	if err := shape.Validate(); err != nil {
		return nil, &array.ShapeError{Op: "create", Shapes: []array.Shape{shape}, Msg: err.Error()}
	}
	want := shape.ByteSize(dtype)
	if len(data) != want {
		return nil, &array.ShapeError{
			Op:     "create",
			Shapes: []array.Shape{shape},
			Msg:    fmt.Sprintf("shape requires %d bytes, got %d", want, len(data)),
		}
	}
	size := want
	if size == 0 {
		size = 1
	}
	buf, err := e.alloc.Allocate(size, dev)
	if err != nil {
		return nil, err
	}
	writer, err := dispatch.WriterFor(dev)
	if err != nil {
		buf.Release()
		return nil, err
	}
	if err := writer(buf, data); err != nil {
		buf.Release()
		return nil, err
	}
	return array.FromBuffer(buf, shape, dtype, dev, nil), nil
}
