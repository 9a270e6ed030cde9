// Package array provides the lazy computation graph at the heart of the
// runtime: shapes, element types, the Array graph node, and the Primitive
// interface that operations implement.
package array

import (
	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// DType is a constraint for element types representable as Go scalars.
// Float16 and BFloat16 have no native Go scalar; arrays of those types are
// produced by casting and read back through the float32 accessors.
type DType interface {
	~float32 | ~float64 | ~int32 | ~int64 | ~uint8 | ~bool
}

// DataType is the runtime element type tag of an array.
type DataType int

// Supported element types.
const (
	Float32 DataType = iota
	Float64
	Float16
	BFloat16
	Int32
	Int64
	Uint8
	Bool
)

// Size returns the byte size of one element.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Float16, BFloat16:
		return 2
	case Uint8, Bool:
		return 1
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Float16:
		return "float16"
	case BFloat16:
		return "bfloat16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// IsFloat reports whether the type is a floating-point type.
func (dt DataType) IsFloat() bool {
	switch dt {
	case Float32, Float64, Float16, BFloat16:
		return true
	}
	return false
}

// IsInteger reports whether the type is an integer type.
func (dt DataType) IsInteger() bool {
	switch dt {
	case Int32, Int64, Uint8:
		return true
	}
	return false
}

// IsArithmetic reports whether arithmetic primitives accept the type.
func (dt DataType) IsArithmetic() bool {
	return dt.IsFloat() || dt.IsInteger()
}

// InferDataType maps a Go scalar type to its DataType tag.
func InferDataType[T DType](dummy T) DataType {
	switch any(dummy).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	case bool:
		return Bool
	default:
		panic("unsupported type")
	}
}

// DecodeFloat64s interprets n elements of raw dtype-encoded bytes as float64
// values. Used by readers and by the CPU cast kernels; half-precision types
// go through their conversion libraries.
func DecodeFloat64s(src []byte, dt DataType, n int) []float64 {
	out := make([]float64, n)
	switch dt {
	case Float32:
		for i, v := range AsFloat32(src, n) {
			out[i] = float64(v)
		}
	case Float64:
		copy(out, AsFloat64(src, n))
	case Float16:
		u16 := AsUint16(src, n)
		for i := range out {
			out[i] = float64(float16.Frombits(u16[i]).Float32())
		}
	case BFloat16:
		f32 := bfloat16.DecodeFloat32(src[:n*2])
		for i := range out {
			out[i] = float64(f32[i])
		}
	case Int32:
		for i, v := range AsInt32(src, n) {
			out[i] = float64(v)
		}
	case Int64:
		for i, v := range AsInt64(src, n) {
			out[i] = float64(v)
		}
	case Uint8:
		for i := 0; i < n; i++ {
			out[i] = float64(src[i])
		}
	case Bool:
		for i := 0; i < n; i++ {
			if src[i] != 0 {
				out[i] = 1
			}
		}
	default:
		panic("decode: unsupported dtype " + dt.String())
	}
	return out
}

// Rounder returns a function that narrows a float64 to the dtype's
// precision and widens it back. Interpreters that compute in float64 apply
// it after every step so intermediates match dtype-native arithmetic.
func (dt DataType) Rounder() func(float64) float64 {
	switch dt {
	case Float64:
		return func(v float64) float64 { return v }
	case Float32:
		return func(v float64) float64 { return float64(float32(v)) }
	case Float16:
		return func(v float64) float64 {
			return float64(float16.Fromfloat32(float32(v)).Float32())
		}
	case BFloat16:
		return func(v float64) float64 {
			buf := bfloat16.EncodeFloat32([]float32{float32(v)})
			return float64(bfloat16.DecodeFloat32(buf)[0])
		}
	default:
		panic("rounder: unsupported dtype " + dt.String())
	}
}

// EncodeFloat64s writes float64 values into dst using the dtype's encoding.
// dst must hold n*dt.Size() bytes.
func EncodeFloat64s(dst []byte, src []float64, dt DataType) {
	n := len(src)
	switch dt {
	case Float32:
		d := AsFloat32(dst, n)
		for i, v := range src {
			d[i] = float32(v)
		}
	case Float64:
		copy(AsFloat64(dst, n), src)
	case Float16:
		d := AsUint16(dst, n)
		for i, v := range src {
			d[i] = float16.Fromfloat32(float32(v)).Bits()
		}
	case BFloat16:
		f32 := make([]float32, n)
		for i, v := range src {
			f32[i] = float32(v)
		}
		copy(dst, bfloat16.EncodeFloat32(f32))
	case Int32:
		d := AsInt32(dst, n)
		for i, v := range src {
			d[i] = int32(v)
		}
	case Int64:
		d := AsInt64(dst, n)
		for i, v := range src {
			d[i] = int64(v)
		}
	case Uint8:
		for i, v := range src {
			dst[i] = uint8(v)
		}
	case Bool:
		for i, v := range src {
			if v != 0 {
				dst[i] = 1
			} else {
				dst[i] = 0
			}
		}
	default:
		panic("encode: unsupported dtype " + dt.String())
	}
}
