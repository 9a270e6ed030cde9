// Package prim is the primitive catalog: one descriptor type per operation,
// each carrying pure shape inference plus its gradient (vjp/jvp) and
// batching (vmap) rules, and the constructors that build pending graph
// nodes from them.
//
// Constructors validate eagerly and return ShapeError/DTypeError at graph
// construction; no computation happens until evaluation is forced.
package prim

import (
	"github.com/strand-ml/strand/internal/array"
)

// binaryInfer validates a same-shape, same-dtype arithmetic operand pair.
// Constructors insert explicit broadcast nodes first, so by the time a
// binary primitive sees its operands the shapes are equal.
func binaryInfer(op string, shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	if len(shapes) != 2 {
		return nil, 0, &array.ShapeError{Op: op, Shapes: shapes, Msg: "expects exactly two operands"}
	}
	if dtypes[0] != dtypes[1] {
		return nil, 0, &array.DTypeError{Op: op, DTypes: dtypes, Msg: "operand dtypes differ; cast explicitly"}
	}
	if !dtypes[0].IsArithmetic() {
		return nil, 0, &array.DTypeError{Op: op, DTypes: dtypes, Msg: "operand dtype is not arithmetic"}
	}
	if !shapes[0].Equal(shapes[1]) {
		return nil, 0, &array.ShapeError{Op: op, Shapes: shapes, Msg: "operand shapes differ"}
	}
	return shapes[0].Clone(), dtypes[0], nil
}

// unaryInfer validates a single floating-point operand.
func unaryInfer(op string, shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	if len(shapes) != 1 {
		return nil, 0, &array.ShapeError{Op: op, Shapes: shapes, Msg: "expects exactly one operand"}
	}
	if !dtypes[0].IsFloat() {
		return nil, 0, &array.DTypeError{Op: op, DTypes: dtypes, Msg: "operand dtype must be floating point"}
	}
	return shapes[0].Clone(), dtypes[0], nil
}

// broadcastPair aligns two operands for an elementwise binary op, inserting
// explicit broadcast nodes where needed. Keeping broadcasting out of the
// binary primitives means their gradient rules never have to reduce over
// broadcast dimensions; the broadcast node's own vjp does the summing.
func broadcastPair(op string, a, b *array.Array) (*array.Array, *array.Array, error) {
	if a.DType() != b.DType() {
		return nil, nil, &array.DTypeError{
			Op:     op,
			DTypes: []array.DataType{a.DType(), b.DType()},
			Msg:    "operand dtypes differ; cast explicitly",
		}
	}
	if a.Shape().Equal(b.Shape()) {
		return a, b, nil
	}
	target, err := array.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		return nil, nil, &array.ShapeError{
			Op:     op,
			Shapes: []array.Shape{a.Shape(), b.Shape()},
			Msg:    err.Error(),
		}
	}
	a2, err := BroadcastTo(a, target)
	if err != nil {
		return nil, nil, err
	}
	b2, err := BroadcastTo(b, target)
	if err != nil {
		return nil, nil, err
	}
	return a2, b2, nil
}
