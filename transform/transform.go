// Copyright 2025 Strand ML Runtime. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package transform provides function transformations over array programs:
// reverse-mode and forward-mode differentiation, vectorized mapping, and
// trace compilation with kernel fusion.
//
// Transformations compose. Grad of a Grad-produced function yields second
// derivatives, and a Compiled wrapper caches the trace of whatever function
// it is given, differentiated or not.
//
// Example:
//
//	square := func(xs []*array.Array) (*array.Array, error) {
//		return array.Mul(xs[0], xs[0])
//	}
//	grads, err := transform.Grad(square)([]*array.Array{x})
package transform

import (
	"github.com/strand-ml/strand/array"
	internal "github.com/strand-ml/strand/internal/transform"
)

// NotDifferentiableError reports a primitive on the gradient path that has
// no differentiation rule.
type NotDifferentiableError = internal.NotDifferentiableError

// Compiled is a traced, replayable version of a function. See Compile.
type Compiled = internal.Compiled

// Option configures Compile.
type Option = internal.Option

// WithoutFusion disables elementwise kernel fusion on recorded traces.
func WithoutFusion() Option { return internal.WithoutFusion() }

// Grad returns a function computing the gradient of f with respect to each
// of its inputs. f must return a scalar floating-point array.
func Grad(f func([]*array.Array) (*array.Array, error)) func([]*array.Array) ([]*array.Array, error) {
	return internal.Grad(f)
}

// ValueAndGrad returns a function computing both f's value and its
// gradients in a single backward pass.
func ValueAndGrad(f func([]*array.Array) (*array.Array, error)) func([]*array.Array) (*array.Array, []*array.Array, error) {
	return internal.ValueAndGrad(f)
}

// VJP computes vector-Jacobian products: given outputs, the inputs they
// depend on, and one cotangent per output, it returns one gradient per
// input.
func VJP(outputs, inputs, cotangents []*array.Array) ([]*array.Array, error) {
	return internal.VJP(outputs, inputs, cotangents)
}

// JVP computes Jacobian-vector products: given outputs, the inputs they
// depend on, and one tangent per input, it returns one tangent per output.
func JVP(outputs, inputs, tangents []*array.Array) ([]*array.Array, error) {
	return internal.JVP(outputs, inputs, tangents)
}

// Vmap vectorizes f over a batch axis. inAxes gives the batch axis per
// input (negative for unbatched); outAxes the batch axis per output. A nil
// slice defaults every axis to 0.
func Vmap(f func([]*array.Array) ([]*array.Array, error), inAxes, outAxes []int) func([]*array.Array) ([]*array.Array, error) {
	return internal.Vmap(f, inAxes, outAxes)
}

// Compile wraps f so that each distinct input signature (device, dtype and
// shape per argument) is traced once and replayed thereafter.
func Compile(f func([]*array.Array) ([]*array.Array, error), opts ...Option) *Compiled {
	return internal.Compile(f, opts...)
}
