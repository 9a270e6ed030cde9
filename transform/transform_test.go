// Copyright 2025 Strand ML Runtime. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package transform_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strand-ml/strand/array"
	"github.com/strand-ml/strand/transform"
)

// The heavy lifting is tested against the internal packages; these tests
// pin the public surface: a training-step shaped composition of Grad,
// Compile and Vmap.

func TestGradThroughPublicAPI(t *testing.T) {
	square := func(xs []*array.Array) (*array.Array, error) {
		p, err := array.Mul(xs[0], xs[0])
		if err != nil {
			return nil, err
		}
		return array.Sum(p)
	}

	x, err := array.FromSlice([]float32{1, 2, 3}, array.Shape{3}, array.CPU)
	require.NoError(t, err)

	grads, err := transform.Grad(square)([]*array.Array{x})
	require.NoError(t, err)
	got, err := array.Float32s(grads[0])
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 4, 6}, got)
}

func TestCompiledTrainingStep(t *testing.T) {
	loss := func(xs []*array.Array) (*array.Array, error) {
		// Least squares against a captured target.
		diff, err := array.Sub(xs[0], xs[1])
		if err != nil {
			return nil, err
		}
		sq, err := array.Mul(diff, diff)
		if err != nil {
			return nil, err
		}
		return array.Sum(sq)
	}

	step := transform.Compile(func(xs []*array.Array) ([]*array.Array, error) {
		return transform.Grad(loss)(xs)
	})

	w, err := array.FromSlice([]float32{1, 2}, array.Shape{2}, array.CPU)
	require.NoError(t, err)
	target, err := array.FromSlice([]float32{3, 3}, array.Shape{2}, array.CPU)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		grads, err := step.Call([]*array.Array{w, target})
		require.NoError(t, err)

		// w -= 0.25 * grad
		scale, err := array.Scalar(0.25, array.Float32, array.CPU)
		require.NoError(t, err)
		upd, err := array.Mul(grads[0], scale)
		require.NoError(t, err)
		w, err = array.Sub(w, upd)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, step.CachedTraces())

	got, err := array.Float32s(w)
	require.NoError(t, err)
	// Gradient descent on (w-3)^2 halves the distance each step: after 3
	// steps from (1, 2) the weights are (2.75, 2.875).
	assert.InDelta(t, 2.75, got[0], 1e-5)
	assert.InDelta(t, 2.875, got[1], 1e-5)
}

func TestVmapPerExample(t *testing.T) {
	norm := func(xs []*array.Array) ([]*array.Array, error) {
		sq, err := array.Mul(xs[0], xs[0])
		if err != nil {
			return nil, err
		}
		s, err := array.Sum(sq)
		if err != nil {
			return nil, err
		}
		return []*array.Array{s}, nil
	}

	batch, err := array.FromSlice([]float32{3, 4, 6, 8}, array.Shape{2, 2}, array.CPU)
	require.NoError(t, err)

	outs, err := transform.Vmap(norm, nil, nil)([]*array.Array{batch})
	require.NoError(t, err)
	got, err := array.Float32s(outs[0])
	require.NoError(t, err)
	assert.Equal(t, []float32{25, 100}, got)
}
