// Copyright 2025 Strand ML Runtime. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package array

import (
	"github.com/strand-ml/strand/internal/eval"
)

// Eval forces the given arrays, scheduling every pending node they depend
// on and blocking until their buffers are materialized.
func Eval(outs ...*Array) error {
	return eval.Default().Evaluate(outs...)
}

// Bytes evaluates a and returns a copy of its raw buffer contents.
func Bytes(a *Array) ([]byte, error) {
	return eval.Default().Bytes(a)
}

// Float64s evaluates a and returns its elements widened to float64.
func Float64s(a *Array) ([]float64, error) {
	return eval.Default().Float64s(a)
}

// Float32s evaluates a float32 array and returns its elements.
func Float32s(a *Array) ([]float32, error) {
	return eval.Default().Float32s(a)
}

// Int64s evaluates a and returns its elements widened to int64.
func Int64s(a *Array) ([]int64, error) {
	return eval.Default().Int64s(a)
}

// Bools evaluates a bool array and returns its elements.
func Bools(a *Array) ([]bool, error) {
	return eval.Default().Bools(a)
}

// Item evaluates a rank-0 array and returns its value as float64.
func Item(a *Array) (float64, error) {
	return eval.Default().Item(a)
}

// Synchronize blocks until all queued work on every device has finished.
func Synchronize() error {
	return eval.Default().Synchronize()
}
