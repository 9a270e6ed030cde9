package transform_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strand-ml/strand/internal/array"
	_ "github.com/strand-ml/strand/internal/backend/cpu"
	"github.com/strand-ml/strand/internal/device"
	"github.com/strand-ml/strand/internal/eval"
	"github.com/strand-ml/strand/internal/prim"
	"github.com/strand-ml/strand/internal/transform"
)

func fromF32(t *testing.T, vals []float32, shape array.Shape) *array.Array {
	t.Helper()
	a, err := prim.FromSlice(vals, shape, device.CPU)
	require.NoError(t, err)
	return a
}

func readF32(t *testing.T, a *array.Array) []float32 {
	t.Helper()
	got, err := eval.Default().Float32s(a)
	require.NoError(t, err)
	return got
}

func assertClose(t *testing.T, want []float32, a *array.Array) {
	t.Helper()
	got := readF32(t, a)
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-5)
	}
}

// TestGradProduct checks d/da sum(a*b) == b and d/db sum(a*b) == a.
func TestGradProduct(t *testing.T) {
	f := func(xs []*array.Array) (*array.Array, error) {
		p, err := prim.Mul(xs[0], xs[1])
		if err != nil {
			return nil, err
		}
		return prim.Sum(p)
	}

	a := fromF32(t, []float32{1, 2, 3}, array.Shape{3})
	b := fromF32(t, []float32{4, 5, 6}, array.Shape{3})

	grads, err := transform.Grad(f)([]*array.Array{a, b})
	require.NoError(t, err)
	require.Len(t, grads, 2)
	assertClose(t, []float32{4, 5, 6}, grads[0])
	assertClose(t, []float32{1, 2, 3}, grads[1])
}

// TestGradSharedNode checks cotangent accumulation: a node consumed twice
// has its rule run once, on the summed cotangent.
func TestGradSharedNode(t *testing.T) {
	// f(x) = sum(y + y) with y = x*x, so f = 2*x^2 and f' = 4x.
	f := func(xs []*array.Array) (*array.Array, error) {
		y, err := prim.Mul(xs[0], xs[0])
		if err != nil {
			return nil, err
		}
		z, err := prim.Add(y, y)
		if err != nil {
			return nil, err
		}
		return prim.Sum(z)
	}

	x := fromF32(t, []float32{1, 2, -3}, array.Shape{3})
	grads, err := transform.Grad(f)([]*array.Array{x})
	require.NoError(t, err)
	assertClose(t, []float32{4, 8, -12}, grads[0])
}

func TestValueAndGrad(t *testing.T) {
	f := func(xs []*array.Array) (*array.Array, error) {
		y, err := prim.Mul(xs[0], xs[0])
		if err != nil {
			return nil, err
		}
		return prim.Sum(y)
	}

	x := fromF32(t, []float32{3, 4}, array.Shape{2})
	val, grads, err := transform.ValueAndGrad(f)([]*array.Array{x})
	require.NoError(t, err)

	v, err := eval.Default().Item(val)
	require.NoError(t, err)
	assert.InDelta(t, 25, v, 1e-5)
	assertClose(t, []float32{6, 8}, grads[0])
}

// TestGradOfGrad checks second derivatives: f(x) = sum(x^3), f'' = 6x.
func TestGradOfGrad(t *testing.T) {
	f := func(xs []*array.Array) (*array.Array, error) {
		sq, err := prim.Mul(xs[0], xs[0])
		if err != nil {
			return nil, err
		}
		cube, err := prim.Mul(sq, xs[0])
		if err != nil {
			return nil, err
		}
		return prim.Sum(cube)
	}

	gradSum := func(xs []*array.Array) (*array.Array, error) {
		gs, err := transform.Grad(f)(xs)
		if err != nil {
			return nil, err
		}
		return prim.Sum(gs[0])
	}

	x := fromF32(t, []float32{1, 2}, array.Shape{2})
	second, err := transform.Grad(gradSum)([]*array.Array{x})
	require.NoError(t, err)
	assertClose(t, []float32{6, 12}, second[0])
}

func TestGradTranscendentals(t *testing.T) {
	// f(x) = sum(exp(x) + log(x) + sin(x)), f' = exp(x) + 1/x + cos(x).
	f := func(xs []*array.Array) (*array.Array, error) {
		e, err := prim.Exp(xs[0])
		if err != nil {
			return nil, err
		}
		l, err := prim.Log(xs[0])
		if err != nil {
			return nil, err
		}
		s, err := prim.Sin(xs[0])
		if err != nil {
			return nil, err
		}
		sum, err := prim.Add(e, l)
		if err != nil {
			return nil, err
		}
		sum, err = prim.Add(sum, s)
		if err != nil {
			return nil, err
		}
		return prim.Sum(sum)
	}

	x := fromF32(t, []float32{0.5, 1.5}, array.Shape{2})
	grads, err := transform.Grad(f)([]*array.Array{x})
	require.NoError(t, err)

	want := []float32{
		float32(1.6487212707 + 2.0 + 0.8775825619),     // exp(.5) + 1/.5 + cos(.5)
		float32(4.4816890703 + 1.0/1.5 + 0.0707372017), // exp(1.5) + 1/1.5 + cos(1.5)
	}
	assertClose(t, want, grads[0])
}

// TestGradMaximum checks the gradient flows to the larger operand only.
func TestGradMaximum(t *testing.T) {
	f := func(xs []*array.Array) (*array.Array, error) {
		m, err := prim.Maximum(xs[0], xs[1])
		if err != nil {
			return nil, err
		}
		return prim.Sum(m)
	}

	a := fromF32(t, []float32{1, 5}, array.Shape{2})
	b := fromF32(t, []float32{3, 2}, array.Shape{2})

	grads, err := transform.Grad(f)([]*array.Array{a, b})
	require.NoError(t, err)
	assertClose(t, []float32{0, 1}, grads[0])
	assertClose(t, []float32{1, 0}, grads[1])
}

// TestGradThroughBroadcast checks that broadcasting's adjoint sums over the
// broadcast dimensions.
func TestGradThroughBroadcast(t *testing.T) {
	// f(x, s) = sum(x * s) with scalar s broadcast over x.
	f := func(xs []*array.Array) (*array.Array, error) {
		p, err := prim.Mul(xs[0], xs[1])
		if err != nil {
			return nil, err
		}
		return prim.Sum(p)
	}

	x := fromF32(t, []float32{1, 2, 3}, array.Shape{3})
	s := fromF32(t, []float32{2}, array.Shape{})

	grads, err := transform.Grad(f)([]*array.Array{x, s})
	require.NoError(t, err)
	assertClose(t, []float32{2, 2, 2}, grads[0])
	// d/ds = sum(x) = 6, folded back to the scalar shape.
	require.True(t, grads[1].Shape().Equal(array.Shape{}))
	assertClose(t, []float32{6}, grads[1])
}

func TestGradMatMul(t *testing.T) {
	// f(a, b) = sum(a @ b); da = ones @ b^T, db = a^T @ ones.
	f := func(xs []*array.Array) (*array.Array, error) {
		m, err := prim.MatMul(xs[0], xs[1])
		if err != nil {
			return nil, err
		}
		return prim.Sum(m)
	}

	a := fromF32(t, []float32{1, 2, 3, 4}, array.Shape{2, 2})
	b := fromF32(t, []float32{5, 6, 7, 8}, array.Shape{2, 2})

	grads, err := transform.Grad(f)([]*array.Array{a, b})
	require.NoError(t, err)
	assertClose(t, []float32{11, 15, 11, 15}, grads[0])
	assertClose(t, []float32{4, 4, 6, 6}, grads[1])
}

// TestGradUnusedInput checks inputs the output does not depend on get
// explicit zeros.
func TestGradUnusedInput(t *testing.T) {
	f := func(xs []*array.Array) (*array.Array, error) {
		return prim.Sum(xs[0])
	}

	x := fromF32(t, []float32{1, 2}, array.Shape{2})
	unused := fromF32(t, []float32{7, 7, 7}, array.Shape{3})

	grads, err := transform.Grad(f)([]*array.Array{x, unused})
	require.NoError(t, err)
	assertClose(t, []float32{1, 1}, grads[0])
	assertClose(t, []float32{0, 0, 0}, grads[1])
}

// TestForwardOnlyMaskDoesNotFail: a comparison feeding a stop-gradient style
// cast is fine as long as no cotangent reaches it.
func TestForwardOnlyMaskDoesNotFail(t *testing.T) {
	f := func(xs []*array.Array) (*array.Array, error) {
		// relu(x) = maximum(x, 0) built from a comparison mask.
		zero, err := prim.ZerosLike(xs[0])
		if err != nil {
			return nil, err
		}
		mask, err := prim.Greater(xs[0], zero)
		if err != nil {
			return nil, err
		}
		maskF, err := prim.AsType(mask, xs[0].DType())
		if err != nil {
			return nil, err
		}
		gated, err := prim.Mul(xs[0], maskF)
		if err != nil {
			return nil, err
		}
		return prim.Sum(gated)
	}

	x := fromF32(t, []float32{-2, 3}, array.Shape{2})
	grads, err := transform.Grad(f)([]*array.Array{x})
	require.NoError(t, err)
	assertClose(t, []float32{0, 1}, grads[0])
}

// TestVJPNotDifferentiable: pulling a cotangent directly into a comparison
// fails at adjoint construction.
func TestVJPNotDifferentiable(t *testing.T) {
	a := fromF32(t, []float32{1, 2}, array.Shape{2})
	b := fromF32(t, []float32{2, 1}, array.Shape{2})
	g, err := prim.Greater(a, b)
	require.NoError(t, err)

	seed, err := prim.OnesLike(g)
	require.NoError(t, err)

	_, err = transform.VJP([]*array.Array{g}, []*array.Array{a}, []*array.Array{seed})
	require.Error(t, err)
	var nderr *transform.NotDifferentiableError
	require.True(t, errors.As(err, &nderr))
	assert.Equal(t, array.KindGreater, nderr.Kind)
}

func TestVJPSeedValidation(t *testing.T) {
	x := fromF32(t, []float32{1, 2}, array.Shape{2})
	y, err := prim.Neg(x)
	require.NoError(t, err)

	badShape := fromF32(t, []float32{1, 2, 3}, array.Shape{3})
	_, err = transform.VJP([]*array.Array{y}, []*array.Array{x}, []*array.Array{badShape})
	var serr *array.ShapeError
	require.True(t, errors.As(err, &serr))

	badCount := []*array.Array{}
	_, err = transform.VJP([]*array.Array{y}, []*array.Array{x}, badCount)
	assert.Error(t, err)
}

func TestGradRequiresScalarFloatOutput(t *testing.T) {
	vecF := func(xs []*array.Array) (*array.Array, error) {
		return prim.Neg(xs[0])
	}
	x := fromF32(t, []float32{1, 2}, array.Shape{2})
	_, err := transform.Grad(vecF)([]*array.Array{x})
	var serr *array.ShapeError
	require.True(t, errors.As(err, &serr))

	intF := func(xs []*array.Array) (*array.Array, error) {
		return prim.Sum(xs[0])
	}
	xi, err := prim.FromSlice([]int32{1, 2}, array.Shape{2}, device.CPU)
	require.NoError(t, err)
	_, err = transform.Grad(intF)([]*array.Array{xi})
	var derr *array.DTypeError
	require.True(t, errors.As(err, &derr))
}

// TestGradSliceStack checks structural adjoints: slicing scatters the
// cotangent back, stacking slices it apart.
func TestGradSliceStack(t *testing.T) {
	f := func(xs []*array.Array) (*array.Array, error) {
		row, err := prim.Slice(xs[0], 0, 1)
		if err != nil {
			return nil, err
		}
		return prim.Sum(row)
	}

	x := fromF32(t, []float32{1, 2, 3, 4, 5, 6}, array.Shape{2, 3})
	grads, err := transform.Grad(f)([]*array.Array{x})
	require.NoError(t, err)
	assertClose(t, []float32{0, 0, 0, 1, 1, 1}, grads[0])

	g := func(xs []*array.Array) (*array.Array, error) {
		st, err := prim.Stack(xs)
		if err != nil {
			return nil, err
		}
		first, err := prim.Slice(st, 0, 0)
		if err != nil {
			return nil, err
		}
		return prim.Sum(first)
	}

	a := fromF32(t, []float32{1, 2}, array.Shape{2})
	b := fromF32(t, []float32{3, 4}, array.Shape{2})
	grads, err = transform.Grad(g)([]*array.Array{a, b})
	require.NoError(t, err)
	assertClose(t, []float32{1, 1}, grads[0])
	assertClose(t, []float32{0, 0}, grads[1])
}

// TestGradSumAxisKeepDim: the axis kept at size 1 feeds a row-weighted
// product, so each input element's gradient is its row weight.
func TestGradSumAxisKeepDim(t *testing.T) {
	w := fromF32(t, []float32{10, 100}, array.Shape{2, 1})
	f := func(xs []*array.Array) (*array.Array, error) {
		rows, err := prim.SumAxisKeepDim(xs[0], 1)
		if err != nil {
			return nil, err
		}
		p, err := prim.Mul(rows, w)
		if err != nil {
			return nil, err
		}
		return prim.Sum(p)
	}

	x := fromF32(t, []float32{1, 2, 3, 4, 5, 6}, array.Shape{2, 3})
	grads, err := transform.Grad(f)([]*array.Array{x})
	require.NoError(t, err)
	assert.True(t, grads[0].Shape().Equal(array.Shape{2, 3}))
	assertClose(t, []float32{10, 10, 10, 100, 100, 100}, grads[0])
}
