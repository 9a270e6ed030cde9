package array

import "unsafe"

// Zero-copy reinterpretation of raw buffer bytes as typed slices.
// Callers are responsible for matching the buffer's dtype; the evaluator and
// the CPU kernels check before calling.

// AsFloat32 interprets b as n float32 values.
func AsFloat32(b []byte, n int) []float32 {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), n)
}

// AsFloat64 interprets b as n float64 values.
func AsFloat64(b []byte, n int) []float64 {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&b[0])), n)
}

// AsInt32 interprets b as n int32 values.
func AsInt32(b []byte, n int) []int32 {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&b[0])), n)
}

// AsInt64 interprets b as n int64 values.
func AsInt64(b []byte, n int) []int64 {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*int64)(unsafe.Pointer(&b[0])), n)
}

// AsUint16 interprets b as n uint16 values (float16/bfloat16 raw bits).
func AsUint16(b []byte, n int) []uint16 {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&b[0])), n)
}

// AsBool interprets b as n bool values.
func AsBool(b []byte, n int) []bool {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*bool)(unsafe.Pointer(&b[0])), n)
}
