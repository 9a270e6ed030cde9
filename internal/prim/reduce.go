package prim

import (
	"fmt"

	"github.com/strand-ml/strand/internal/array"
)

// SumOp reduces every element to a scalar.
type SumOp struct{}

func (SumOp) Kind() array.Kind { return array.KindSum }

func (SumOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	if len(shapes) != 1 {
		return nil, 0, &array.ShapeError{Op: "sum", Shapes: shapes, Msg: "expects exactly one operand"}
	}
	if !dtypes[0].IsArithmetic() {
		return nil, 0, &array.DTypeError{Op: "sum", DTypes: dtypes, Msg: "operand dtype is not arithmetic"}
	}
	return array.Shape{}, dtypes[0], nil
}

// VJP: every input element contributed with weight 1, so the scalar
// cotangent replicates across the input shape.
func (SumOp) VJP(primals []*array.Array, output, ct *array.Array) ([]*array.Array, error) {
	g, err := BroadcastTo(ct, primals[0].Shape())
	if err != nil {
		return nil, err
	}
	return []*array.Array{g}, nil
}

func (SumOp) JVP(primals, tangents []*array.Array, output *array.Array) (*array.Array, error) {
	return Sum(tangents[0])
}

func (p SumOp) Vmap(inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	x, err := MoveAxis(inputs[0], bdims[0], 0)
	if err != nil {
		return nil, -1, false, err
	}
	// Reduce everything but the batch axis.
	for len(x.Shape()) > 1 {
		x, err = SumAxis(x, len(x.Shape())-1)
		if err != nil {
			return nil, -1, false, err
		}
	}
	return x, 0, true, nil
}

// SumAxisOp reduces along one axis, removing it or, with KeepDim, leaving
// it in place with size 1.
type SumAxisOp struct {
	Axis    int
	KeepDim bool
}

func (SumAxisOp) Kind() array.Kind { return array.KindSumAxis }

func (p SumAxisOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	if len(shapes) != 1 {
		return nil, 0, &array.ShapeError{Op: "sum_axis", Shapes: shapes, Msg: "expects exactly one operand"}
	}
	if !dtypes[0].IsArithmetic() {
		return nil, 0, &array.DTypeError{Op: "sum_axis", DTypes: dtypes, Msg: "operand dtype is not arithmetic"}
	}
	in := shapes[0]
	if p.Axis < 0 || p.Axis >= len(in) {
		return nil, 0, &array.ShapeError{
			Op:     "sum_axis",
			Shapes: []array.Shape{in},
			Msg:    fmt.Sprintf("axis %d out of range for rank %d", p.Axis, len(in)),
		}
	}
	if p.KeepDim {
		return in.Remove(p.Axis).Insert(p.Axis, 1), dtypes[0], nil
	}
	return in.Remove(p.Axis), dtypes[0], nil
}

func (p SumAxisOp) VJP(primals []*array.Array, output, ct *array.Array) ([]*array.Array, error) {
	g := ct
	var err error
	if !p.KeepDim {
		if g, err = ExpandDims(g, p.Axis); err != nil {
			return nil, err
		}
	}
	g, err = BroadcastTo(g, primals[0].Shape())
	if err != nil {
		return nil, err
	}
	return []*array.Array{g}, nil
}

func (p SumAxisOp) JVP(primals, tangents []*array.Array, output *array.Array) (*array.Array, error) {
	return array.NewPending(SumAxisOp{Axis: p.Axis, KeepDim: p.KeepDim}, tangents[0])
}

func (p SumAxisOp) Vmap(inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	x, err := MoveAxis(inputs[0], bdims[0], 0)
	if err != nil {
		return nil, -1, false, err
	}
	out, err := array.NewPending(SumAxisOp{Axis: p.Axis + 1, KeepDim: p.KeepDim}, x)
	if err != nil {
		return nil, -1, false, err
	}
	return out, 0, true, nil
}

// Sum reduces x to a scalar.
func Sum(x *array.Array) (*array.Array, error) {
	return array.NewPending(SumOp{}, x)
}

// SumAxis reduces x along axis, removing it.
func SumAxis(x *array.Array, axis int) (*array.Array, error) {
	return array.NewPending(SumAxisOp{Axis: axis}, x)
}

// SumAxisKeepDim reduces x along axis, keeping it with size 1.
func SumAxisKeepDim(x *array.Array, axis int) (*array.Array, error) {
	return array.NewPending(SumAxisOp{Axis: axis, KeepDim: true}, x)
}
