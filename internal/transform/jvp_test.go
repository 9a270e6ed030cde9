package transform_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strand-ml/strand/internal/array"
	"github.com/strand-ml/strand/internal/prim"
	"github.com/strand-ml/strand/internal/transform"
)

// TestJVPProduct checks the forward-mode product rule:
// d(a*b) = da*b + a*db.
func TestJVPProduct(t *testing.T) {
	a := fromF32(t, []float32{1, 2}, array.Shape{2})
	b := fromF32(t, []float32{3, 4}, array.Shape{2})
	da := fromF32(t, []float32{1, 0}, array.Shape{2})
	db := fromF32(t, []float32{0, 1}, array.Shape{2})

	out, err := prim.Mul(a, b)
	require.NoError(t, err)

	tangents, err := transform.JVP(
		[]*array.Array{out},
		[]*array.Array{a, b},
		[]*array.Array{da, db},
	)
	require.NoError(t, err)
	// da*b + a*db = [1*3+1*0, 0*4+2*1] = [3, 2]
	assertClose(t, []float32{3, 2}, tangents[0])
}

// TestJVPChain pushes a tangent through a chain of unary ops:
// d exp(neg(x)) = -exp(-x) * dx.
func TestJVPChain(t *testing.T) {
	x := fromF32(t, []float32{0, 1}, array.Shape{2})
	dx := fromF32(t, []float32{1, 2}, array.Shape{2})

	n, err := prim.Neg(x)
	require.NoError(t, err)
	out, err := prim.Exp(n)
	require.NoError(t, err)

	tangents, err := transform.JVP(
		[]*array.Array{out}, []*array.Array{x}, []*array.Array{dx})
	require.NoError(t, err)
	assertClose(t, []float32{-1, float32(-2 * 0.3678794412)}, tangents[0])
}

// TestJVPUnseededInput: operands without a tangent contribute zero.
func TestJVPUnseededInput(t *testing.T) {
	a := fromF32(t, []float32{1, 2}, array.Shape{2})
	b := fromF32(t, []float32{3, 4}, array.Shape{2})
	da := fromF32(t, []float32{1, 1}, array.Shape{2})

	out, err := prim.Mul(a, b)
	require.NoError(t, err)

	tangents, err := transform.JVP(
		[]*array.Array{out}, []*array.Array{a}, []*array.Array{da})
	require.NoError(t, err)
	// da*b + a*0 = b
	assertClose(t, []float32{3, 4}, tangents[0])
}

// TestJVPIndependentOutput: outputs untouched by the seeds get zeros.
func TestJVPIndependentOutput(t *testing.T) {
	a := fromF32(t, []float32{1, 2}, array.Shape{2})
	b := fromF32(t, []float32{3, 4}, array.Shape{2})
	da := fromF32(t, []float32{1, 1}, array.Shape{2})

	onlyB, err := prim.Neg(b)
	require.NoError(t, err)

	tangents, err := transform.JVP(
		[]*array.Array{onlyB}, []*array.Array{a}, []*array.Array{da})
	require.NoError(t, err)
	assertClose(t, []float32{0, 0}, tangents[0])
}

func TestJVPSeedValidation(t *testing.T) {
	x := fromF32(t, []float32{1, 2}, array.Shape{2})
	out, err := prim.Neg(x)
	require.NoError(t, err)

	bad := fromF32(t, []float32{1, 2, 3}, array.Shape{3})
	_, err = transform.JVP([]*array.Array{out}, []*array.Array{x}, []*array.Array{bad})
	var serr *array.ShapeError
	require.True(t, errors.As(err, &serr))

	_, err = transform.JVP([]*array.Array{out}, []*array.Array{x}, nil)
	assert.Error(t, err)
}

// TestJVPMatchesVJPOnGradient: for scalar f, JVP with unit tangent in one
// coordinate equals that coordinate of the VJP gradient.
func TestJVPMatchesVJPOnGradient(t *testing.T) {
	build := func(x *array.Array) (*array.Array, error) {
		sq, err := prim.Mul(x, x)
		if err != nil {
			return nil, err
		}
		s, err := prim.Sin(sq)
		if err != nil {
			return nil, err
		}
		return prim.Sum(s)
	}

	x := fromF32(t, []float32{0.3, 1.1}, array.Shape{2})
	out, err := build(x)
	require.NoError(t, err)

	seed, err := prim.OnesLike(out)
	require.NoError(t, err)
	grads, err := transform.VJP([]*array.Array{out}, []*array.Array{x}, []*array.Array{seed})
	require.NoError(t, err)
	grad := readF32(t, grads[0])

	e0 := fromF32(t, []float32{1, 0}, array.Shape{2})
	tangents, err := transform.JVP([]*array.Array{out}, []*array.Array{x}, []*array.Array{e0})
	require.NoError(t, err)
	dir := readF32(t, tangents[0])

	assert.InDelta(t, grad[0], dir[0], 1e-5)
}
