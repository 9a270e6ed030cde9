package prim

import (
	"fmt"

	"github.com/strand-ml/strand/internal/array"
	"github.com/strand-ml/strand/internal/device"
	"github.com/strand-ml/strand/internal/eval"
)

// Creation routines build already materialized arrays by encoding host
// data and handing it to the default engine's device writer. They are the
// leaves every lazy graph hangs off.

// FromSlice builds an array on dev from a Go slice, row-major under shape.
func FromSlice[T array.DType](data []T, shape array.Shape, dev device.Device) (*array.Array, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != len(data) {
		return nil, &array.ShapeError{
			Op:     "from_slice",
			Shapes: []array.Shape{shape},
			Msg:    fmt.Sprintf("shape wants %d elements, slice has %d", shape.NumElements(), len(data)),
		}
	}
	var zero T
	dt := array.InferDataType(zero)
	vals := make([]float64, len(data))
	for i, v := range data {
		vals[i] = numeric(v)
	}
	raw := make([]byte, shape.ByteSize(dt))
	array.EncodeFloat64s(raw, vals, dt)
	return eval.Default().NewFromBytes(raw, shape, dt, dev)
}

func numeric[T array.DType](v T) float64 {
	switch x := any(v).(type) {
	case bool:
		if x {
			return 1
		}
		return 0
	case float32:
		return float64(x)
	case float64:
		return x
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint8:
		return float64(x)
	default:
		panic(fmt.Sprintf("unsupported element type %T", v))
	}
}

// Full builds an array filled with a single value.
func Full(value float64, shape array.Shape, dt array.DataType, dev device.Device) (*array.Array, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	vals := make([]float64, shape.NumElements())
	for i := range vals {
		vals[i] = value
	}
	raw := make([]byte, shape.ByteSize(dt))
	array.EncodeFloat64s(raw, vals, dt)
	return eval.Default().NewFromBytes(raw, shape, dt, dev)
}

// Zeros builds an all-zero array.
func Zeros(shape array.Shape, dt array.DataType, dev device.Device) (*array.Array, error) {
	return Full(0, shape, dt, dev)
}

// Ones builds an all-one array.
func Ones(shape array.Shape, dt array.DataType, dev device.Device) (*array.Array, error) {
	return Full(1, shape, dt, dev)
}

// Scalar builds a rank-0 array holding one value.
func Scalar(value float64, dt array.DataType, dev device.Device) (*array.Array, error) {
	return Full(value, array.Shape{}, dt, dev)
}

// Arange builds a 1-D array [start, stop) with the given step.
func Arange(start, stop, step float64, dt array.DataType, dev device.Device) (*array.Array, error) {
	if step == 0 {
		return nil, fmt.Errorf("arange: step must be non-zero")
	}
	n := 0
	if (stop-start)/step > 0 {
		n = ceilDiv(stop-start, step)
	}
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = start + float64(i)*step
	}
	shape := array.Shape{n}
	raw := make([]byte, shape.ByteSize(dt))
	array.EncodeFloat64s(raw, vals, dt)
	return eval.Default().NewFromBytes(raw, shape, dt, dev)
}

func ceilDiv(span, step float64) int {
	n := int(span / step)
	if float64(n)*step != span {
		n++
	}
	if n < 0 {
		return 0
	}
	return n
}

// Eye builds an n x n identity matrix.
func Eye(n int, dt array.DataType, dev device.Device) (*array.Array, error) {
	if n < 0 {
		return nil, &array.ShapeError{Op: "eye", Msg: fmt.Sprintf("negative size %d", n)}
	}
	vals := make([]float64, n*n)
	for i := 0; i < n; i++ {
		vals[i*n+i] = 1
	}
	shape := array.Shape{n, n}
	raw := make([]byte, shape.ByteSize(dt))
	array.EncodeFloat64s(raw, vals, dt)
	return eval.Default().NewFromBytes(raw, shape, dt, dev)
}

// ZerosLike builds an all-zero array matching x's shape, dtype, and device.
func ZerosLike(x *array.Array) (*array.Array, error) {
	return Zeros(x.Shape(), x.DType(), x.Device())
}

// OnesLike builds an all-one array matching x's shape, dtype, and device.
func OnesLike(x *array.Array) (*array.Array, error) {
	return Ones(x.Shape(), x.DType(), x.Device())
}
