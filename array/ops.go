// Copyright 2025 Strand ML Runtime. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package array

import (
	"github.com/strand-ml/strand/internal/prim"
)

// Binary operations broadcast their operands NumPy-style and require equal
// dtypes; mixed-dtype operands need an explicit AsType.

// Add returns a + b element-wise.
func Add(a, b *Array) (*Array, error) { return prim.Add(a, b) }

// Sub returns a - b element-wise.
func Sub(a, b *Array) (*Array, error) { return prim.Sub(a, b) }

// Mul returns a * b element-wise.
func Mul(a, b *Array) (*Array, error) { return prim.Mul(a, b) }

// Div returns a / b element-wise.
func Div(a, b *Array) (*Array, error) { return prim.Div(a, b) }

// Maximum returns max(a, b) element-wise.
func Maximum(a, b *Array) (*Array, error) { return prim.Maximum(a, b) }

// Greater returns the bool array a > b element-wise.
func Greater(a, b *Array) (*Array, error) { return prim.Greater(a, b) }

// Neg returns -x element-wise.
func Neg(x *Array) (*Array, error) { return prim.Neg(x) }

// Exp returns e^x element-wise.
func Exp(x *Array) (*Array, error) { return prim.Exp(x) }

// Log returns the natural logarithm element-wise.
func Log(x *Array) (*Array, error) { return prim.Log(x) }

// Sin returns sin(x) element-wise.
func Sin(x *Array) (*Array, error) { return prim.Sin(x) }

// Cos returns cos(x) element-wise.
func Cos(x *Array) (*Array, error) { return prim.Cos(x) }

// Sqrt returns the square root element-wise.
func Sqrt(x *Array) (*Array, error) { return prim.Sqrt(x) }

// Tanh returns tanh(x) element-wise.
func Tanh(x *Array) (*Array, error) { return prim.Tanh(x) }

// Abs returns |x| element-wise.
func Abs(x *Array) (*Array, error) { return prim.Abs(x) }

// MatMul multiplies two matrices: (m, k) x (k, n) -> (m, n).
func MatMul(a, b *Array) (*Array, error) { return prim.MatMul(a, b) }

// Reshape views x under a new shape with the same element count. One
// dimension may be -1 and is inferred.
func Reshape(x *Array, shape Shape) (*Array, error) { return prim.Reshape(x, shape) }

// Transpose permutes the axes of x; a nil perm reverses them.
func Transpose(x *Array, perm []int) (*Array, error) { return prim.Transpose(x, perm) }

// BroadcastTo replicates x to the given shape.
func BroadcastTo(x *Array, shape Shape) (*Array, error) { return prim.BroadcastTo(x, shape) }

// Slice selects one index along an axis, removing the axis.
func Slice(x *Array, axis, index int) (*Array, error) { return prim.Slice(x, axis, index) }

// Stack joins same-shaped arrays along a new leading axis.
func Stack(xs []*Array) (*Array, error) { return prim.Stack(xs) }

// AsType casts x to another element type.
func AsType(x *Array, dt DataType) (*Array, error) { return prim.AsType(x, dt) }

// Sum reduces x to a scalar.
func Sum(x *Array) (*Array, error) { return prim.Sum(x) }

// SumAxis reduces x along one axis, removing it.
func SumAxis(x *Array, axis int) (*Array, error) { return prim.SumAxis(x, axis) }

// SumAxisKeepDim reduces x along one axis, keeping it with size 1.
func SumAxisKeepDim(x *Array, axis int) (*Array, error) { return prim.SumAxisKeepDim(x, axis) }

// MoveAxis moves one axis to a new position, preserving the rest.
func MoveAxis(x *Array, from, to int) (*Array, error) { return prim.MoveAxis(x, from, to) }

// ExpandDims inserts a size-1 axis at the given position.
func ExpandDims(x *Array, axis int) (*Array, error) { return prim.ExpandDims(x, axis) }
