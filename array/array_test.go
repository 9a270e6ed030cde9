// Copyright 2025 Strand ML Runtime. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package array_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strand-ml/strand/array"
)

func TestLazyConstruction(t *testing.T) {
	x, err := array.FromSlice([]float32{1, 2, 3, 4}, array.Shape{2, 2}, array.CPU)
	require.NoError(t, err)

	y, err := array.Mul(x, x)
	require.NoError(t, err)

	// Nothing has run yet; reading forces the graph.
	got, err := array.Float32s(y)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 4, 9, 16}, got)
}

func TestOpsComposition(t *testing.T) {
	a, err := array.Arange(0, 6, 1, array.Float32, array.CPU)
	require.NoError(t, err)
	m, err := array.Reshape(a, array.Shape{2, 3})
	require.NoError(t, err)

	mt, err := array.Transpose(m, nil)
	require.NoError(t, err)
	prod, err := array.MatMul(m, mt)
	require.NoError(t, err)
	total, err := array.Sum(prod)
	require.NoError(t, err)

	v, err := array.Item(total)
	require.NoError(t, err)
	// Gram matrix of [[0,1,2],[3,4,5]]: 5 + 14 + 14 + 50 = 83.
	assert.InDelta(t, 83, v, 1e-5)
}

func TestCreationHelpers(t *testing.T) {
	z, err := array.Zeros(array.Shape{3}, array.Float64, array.CPU)
	require.NoError(t, err)
	got, err := array.Float64s(z)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, got)

	o, err := array.OnesLike(z)
	require.NoError(t, err)
	got, err = array.Float64s(o)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1}, got)

	f, err := array.Full(2.5, array.Shape{2}, array.Float32, array.CPU)
	require.NoError(t, err)
	f32s, err := array.Float32s(f)
	require.NoError(t, err)
	assert.Equal(t, []float32{2.5, 2.5}, f32s)
}

func TestShapeErrorSurface(t *testing.T) {
	a, err := array.Zeros(array.Shape{2, 3}, array.Float32, array.CPU)
	require.NoError(t, err)
	b, err := array.Zeros(array.Shape{2, 4}, array.Float32, array.CPU)
	require.NoError(t, err)

	_, err = array.Add(a, b)
	var serr *array.ShapeError
	require.True(t, errors.As(err, &serr))
}

func TestDTypeErrorSurface(t *testing.T) {
	a, err := array.Zeros(array.Shape{2}, array.Float32, array.CPU)
	require.NoError(t, err)
	b, err := array.Zeros(array.Shape{2}, array.Float64, array.CPU)
	require.NoError(t, err)

	_, err = array.Add(a, b)
	var derr *array.DTypeError
	require.True(t, errors.As(err, &derr))

	// An explicit cast resolves it.
	bw, err := array.AsType(b, array.Float32)
	require.NoError(t, err)
	_, err = array.Add(a, bw)
	assert.NoError(t, err)
}

func TestUnsupportedDeviceSurface(t *testing.T) {
	// No CUDA backend is registered, so even staging data fails, with a
	// typed error naming the device.
	_, err := array.Zeros(array.Shape{2}, array.Float32, array.CUDA)
	require.Error(t, err)
	var uerr *array.UnsupportedOperationError
	assert.True(t, errors.As(err, &uerr))
}

func TestSynchronize(t *testing.T) {
	x, err := array.Ones(array.Shape{128}, array.Float32, array.CPU)
	require.NoError(t, err)
	y, err := array.Add(x, x)
	require.NoError(t, err)

	require.NoError(t, array.Eval(y))
	require.NoError(t, array.Synchronize())

	got, err := array.Float32s(y)
	require.NoError(t, err)
	assert.Equal(t, float32(2), got[0])
}
