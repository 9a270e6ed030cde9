package prim

import (
	"fmt"

	"github.com/strand-ml/strand/internal/array"
)

// MatMulOp is 2-D matrix multiplication: (m, k) x (k, n) -> (m, n).
// Batched operands go through the generic per-element batching fallback,
// which slices the batch axis, multiplies, and restacks.
type MatMulOp struct{}

func (MatMulOp) Kind() array.Kind { return array.KindMatMul }

func (MatMulOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	if len(shapes) != 2 {
		return nil, 0, &array.ShapeError{Op: "matmul", Shapes: shapes, Msg: "expects exactly two operands"}
	}
	if dtypes[0] != dtypes[1] {
		return nil, 0, &array.DTypeError{Op: "matmul", DTypes: dtypes, Msg: "operand dtypes differ; cast explicitly"}
	}
	if !dtypes[0].IsFloat() {
		return nil, 0, &array.DTypeError{Op: "matmul", DTypes: dtypes, Msg: "operand dtype must be floating point"}
	}
	a, b := shapes[0], shapes[1]
	if len(a) != 2 || len(b) != 2 {
		return nil, 0, &array.ShapeError{Op: "matmul", Shapes: shapes, Msg: "operands must be rank 2"}
	}
	if a[1] != b[0] {
		return nil, 0, &array.ShapeError{
			Op:     "matmul",
			Shapes: shapes,
			Msg:    fmt.Sprintf("inner dimensions do not match: %d vs %d", a[1], b[0]),
		}
	}
	return array.Shape{a[0], b[1]}, dtypes[0], nil
}

// VJP: dA = ct @ Bᵀ, dB = Aᵀ @ ct.
func (MatMulOp) VJP(primals []*array.Array, output, ct *array.Array) ([]*array.Array, error) {
	bt, err := Transpose(primals[1], nil)
	if err != nil {
		return nil, err
	}
	gradA, err := MatMul(ct, bt)
	if err != nil {
		return nil, err
	}
	at, err := Transpose(primals[0], nil)
	if err != nil {
		return nil, err
	}
	gradB, err := MatMul(at, ct)
	if err != nil {
		return nil, err
	}
	return []*array.Array{gradA, gradB}, nil
}

func (MatMulOp) JVP(primals, tangents []*array.Array, output *array.Array) (*array.Array, error) {
	left, err := MatMul(tangents[0], primals[1])
	if err != nil {
		return nil, err
	}
	right, err := MatMul(primals[0], tangents[1])
	if err != nil {
		return nil, err
	}
	return Add(left, right)
}

// MatMul multiplies two matrices.
func MatMul(a, b *array.Array) (*array.Array, error) {
	return array.NewPending(MatMulOp{}, a, b)
}
