package prim

import (
	"github.com/strand-ml/strand/internal/array"
)

// Binary elementwise primitives. Constructors broadcast operands first, so
// the node-level contract is equal shapes and dtypes.

// AddOp is element-wise addition.
type AddOp struct{}

func (AddOp) Kind() array.Kind { return array.KindAdd }

func (AddOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	return binaryInfer("add", shapes, dtypes)
}

// VJP: d(a+b)/da = 1, d(a+b)/db = 1.
func (AddOp) VJP(primals []*array.Array, output, ct *array.Array) ([]*array.Array, error) {
	return []*array.Array{ct, ct}, nil
}

func (AddOp) JVP(primals, tangents []*array.Array, output *array.Array) (*array.Array, error) {
	return Add(tangents[0], tangents[1])
}

func (p AddOp) Vmap(inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	return elementwiseBinaryVmap(p, inputs, bdims)
}

// SubOp is element-wise subtraction.
type SubOp struct{}

func (SubOp) Kind() array.Kind { return array.KindSub }

func (SubOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	return binaryInfer("sub", shapes, dtypes)
}

func (SubOp) VJP(primals []*array.Array, output, ct *array.Array) ([]*array.Array, error) {
	negCT, err := Neg(ct)
	if err != nil {
		return nil, err
	}
	return []*array.Array{ct, negCT}, nil
}

func (SubOp) JVP(primals, tangents []*array.Array, output *array.Array) (*array.Array, error) {
	return Sub(tangents[0], tangents[1])
}

func (p SubOp) Vmap(inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	return elementwiseBinaryVmap(p, inputs, bdims)
}

// MulOp is element-wise multiplication.
type MulOp struct{}

func (MulOp) Kind() array.Kind { return array.KindMul }

func (MulOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	return binaryInfer("mul", shapes, dtypes)
}

// VJP: d(a*b)/da = b, d(a*b)/db = a.
func (MulOp) VJP(primals []*array.Array, output, ct *array.Array) ([]*array.Array, error) {
	gradA, err := Mul(ct, primals[1])
	if err != nil {
		return nil, err
	}
	gradB, err := Mul(ct, primals[0])
	if err != nil {
		return nil, err
	}
	return []*array.Array{gradA, gradB}, nil
}

func (MulOp) JVP(primals, tangents []*array.Array, output *array.Array) (*array.Array, error) {
	left, err := Mul(tangents[0], primals[1])
	if err != nil {
		return nil, err
	}
	right, err := Mul(primals[0], tangents[1])
	if err != nil {
		return nil, err
	}
	return Add(left, right)
}

func (p MulOp) Vmap(inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	return elementwiseBinaryVmap(p, inputs, bdims)
}

// DivOp is element-wise division.
type DivOp struct{}

func (DivOp) Kind() array.Kind { return array.KindDiv }

func (DivOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	return binaryInfer("div", shapes, dtypes)
}

// VJP: d(a/b)/da = 1/b, d(a/b)/db = -a/b².
func (DivOp) VJP(primals []*array.Array, output, ct *array.Array) ([]*array.Array, error) {
	gradA, err := Div(ct, primals[1])
	if err != nil {
		return nil, err
	}
	// grad_b = -ct * out / b  (out = a/b avoids forming b² separately)
	tmp, err := Mul(ct, output)
	if err != nil {
		return nil, err
	}
	tmp, err = Div(tmp, primals[1])
	if err != nil {
		return nil, err
	}
	gradB, err := Neg(tmp)
	if err != nil {
		return nil, err
	}
	return []*array.Array{gradA, gradB}, nil
}

func (DivOp) JVP(primals, tangents []*array.Array, output *array.Array) (*array.Array, error) {
	// d(a/b) = (da - out*db) / b
	scaled, err := Mul(output, tangents[1])
	if err != nil {
		return nil, err
	}
	num, err := Sub(tangents[0], scaled)
	if err != nil {
		return nil, err
	}
	return Div(num, primals[1])
}

func (p DivOp) Vmap(inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	return elementwiseBinaryVmap(p, inputs, bdims)
}

// MaximumOp is element-wise maximum.
type MaximumOp struct{}

func (MaximumOp) Kind() array.Kind { return array.KindMaximum }

func (MaximumOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	return binaryInfer("maximum", shapes, dtypes)
}

// VJP routes the cotangent to the larger operand; ties go to the first.
func (MaximumOp) VJP(primals []*array.Array, output, ct *array.Array) ([]*array.Array, error) {
	mask, err := Greater(primals[1], primals[0])
	if err != nil {
		return nil, err
	}
	maskF, err := AsType(mask, ct.DType())
	if err != nil {
		return nil, err
	}
	gradB, err := Mul(ct, maskF)
	if err != nil {
		return nil, err
	}
	gradA, err := Sub(ct, gradB)
	if err != nil {
		return nil, err
	}
	return []*array.Array{gradA, gradB}, nil
}

func (MaximumOp) JVP(primals, tangents []*array.Array, output *array.Array) (*array.Array, error) {
	mask, err := Greater(primals[1], primals[0])
	if err != nil {
		return nil, err
	}
	maskF, err := AsType(mask, output.DType())
	if err != nil {
		return nil, err
	}
	// t_a + (t_b - t_a) * mask
	diff, err := Sub(tangents[1], tangents[0])
	if err != nil {
		return nil, err
	}
	routed, err := Mul(diff, maskF)
	if err != nil {
		return nil, err
	}
	return Add(tangents[0], routed)
}

func (p MaximumOp) Vmap(inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	return elementwiseBinaryVmap(p, inputs, bdims)
}

// GreaterOp is element-wise comparison a > b, producing a bool array.
// It has no gradient rule: comparisons are not differentiable, and a
// gradient request through one fails with NotDifferentiableError.
type GreaterOp struct{}

func (GreaterOp) Kind() array.Kind { return array.KindGreater }

func (GreaterOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	shape, _, err := binaryInfer("greater", shapes, dtypes)
	if err != nil {
		return nil, 0, err
	}
	return shape, array.Bool, nil
}

func (p GreaterOp) Vmap(inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	return elementwiseBinaryVmap(p, inputs, bdims)
}

// Constructors.

// Add returns a + b with NumPy-style broadcasting.
func Add(a, b *array.Array) (*array.Array, error) { return binary(AddOp{}, a, b) }

// Sub returns a - b with broadcasting.
func Sub(a, b *array.Array) (*array.Array, error) { return binary(SubOp{}, a, b) }

// Mul returns a * b with broadcasting.
func Mul(a, b *array.Array) (*array.Array, error) { return binary(MulOp{}, a, b) }

// Div returns a / b with broadcasting.
func Div(a, b *array.Array) (*array.Array, error) { return binary(DivOp{}, a, b) }

// Maximum returns max(a, b) element-wise with broadcasting.
func Maximum(a, b *array.Array) (*array.Array, error) { return binary(MaximumOp{}, a, b) }

// Greater returns the bool array a > b with broadcasting.
func Greater(a, b *array.Array) (*array.Array, error) { return binary(GreaterOp{}, a, b) }

func binary(p array.Primitive, a, b *array.Array) (*array.Array, error) {
	a2, b2, err := broadcastPair(p.Kind().String(), a, b)
	if err != nil {
		return nil, err
	}
	return array.NewPending(p, a2, b2)
}
