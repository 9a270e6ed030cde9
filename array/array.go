// Copyright 2025 Strand ML Runtime. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package array provides the public API for lazy n-dimensional arrays.
//
// Operations build a computation graph instead of computing immediately;
// the graph runs when a result is forced with Eval or one of the read
// helpers. Importing this package registers the CPU backend, so arrays on
// the default device work out of the box.
//
// Example:
//
//	x, _ := array.FromSlice([]float32{1, 2, 3, 4}, array.Shape{2, 2}, array.CPU)
//	y, _ := array.Mul(x, x)
//	s, _ := array.Sum(y)
//	v, _ := array.Item(s) // forces evaluation
package array

import (
	internal "github.com/strand-ml/strand/internal/array"
	_ "github.com/strand-ml/strand/internal/backend/cpu"
	"github.com/strand-ml/strand/internal/device"
)

// Array is a lazily evaluated n-dimensional array handle.
type Array = internal.Array

// Shape represents the dimensions of an array.
type Shape = internal.Shape

// DType is a constraint for Go scalar element types.
type DType = internal.DType

// DataType is the runtime element type tag of an array.
type DataType = internal.DataType

// Supported element types.
const (
	Float32  DataType = internal.Float32
	Float64  DataType = internal.Float64
	Float16  DataType = internal.Float16
	BFloat16 DataType = internal.BFloat16
	Int32    DataType = internal.Int32
	Int64    DataType = internal.Int64
	Uint8    DataType = internal.Uint8
	Bool     DataType = internal.Bool
)

// Device identifies where an array's data lives.
type Device = device.Device

// Supported devices. CPU always works; accelerator devices need their
// backend registered (see the backend packages).
const (
	CPU    Device = device.CPU
	WebGPU Device = device.WebGPU
	CUDA   Device = device.CUDA
	Metal  Device = device.Metal
)

// BroadcastShapes computes the NumPy-style broadcast of two shapes.
func BroadcastShapes(a, b Shape) (Shape, error) {
	return internal.BroadcastShapes(a, b)
}
