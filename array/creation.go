// Copyright 2025 Strand ML Runtime. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package array

import (
	internal "github.com/strand-ml/strand/internal/array"
	"github.com/strand-ml/strand/internal/prim"
)

// FromSlice builds an array on dev from a Go slice. The slice length must
// match the shape's element count.
func FromSlice[T internal.DType](data []T, shape Shape, dev Device) (*Array, error) {
	return prim.FromSlice(data, shape, dev)
}

// Full creates an array filled with a single value.
func Full(value float64, shape Shape, dt DataType, dev Device) (*Array, error) {
	return prim.Full(value, shape, dt, dev)
}

// Zeros creates a zero-filled array.
func Zeros(shape Shape, dt DataType, dev Device) (*Array, error) {
	return prim.Zeros(shape, dt, dev)
}

// Ones creates an array of ones.
func Ones(shape Shape, dt DataType, dev Device) (*Array, error) {
	return prim.Ones(shape, dt, dev)
}

// Scalar creates a rank-0 array holding one value.
func Scalar(value float64, dt DataType, dev Device) (*Array, error) {
	return prim.Scalar(value, dt, dev)
}

// Arange creates a 1-D array of evenly spaced values in [start, stop).
func Arange(start, stop, step float64, dt DataType, dev Device) (*Array, error) {
	return prim.Arange(start, stop, step, dt, dev)
}

// Eye creates an n x n identity matrix.
func Eye(n int, dt DataType, dev Device) (*Array, error) {
	return prim.Eye(n, dt, dev)
}

// ZerosLike creates a zero array with x's shape, dtype and device.
func ZerosLike(x *Array) (*Array, error) { return prim.ZerosLike(x) }

// OnesLike creates a ones array with x's shape, dtype and device.
func OnesLike(x *Array) (*Array, error) { return prim.OnesLike(x) }
