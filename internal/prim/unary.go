package prim

import (
	"github.com/strand-ml/strand/internal/array"
)

// Unary elementwise primitives. All but Neg require a floating-point
// operand; their gradient rules are written in terms of the primal input
// and the primal output so the tape can reuse already-built nodes.

// NegOp is element-wise negation.
type NegOp struct{}

func (NegOp) Kind() array.Kind { return array.KindNeg }

func (NegOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	if len(shapes) != 1 {
		return nil, 0, &array.ShapeError{Op: "neg", Shapes: shapes, Msg: "expects exactly one operand"}
	}
	if !dtypes[0].IsArithmetic() {
		return nil, 0, &array.DTypeError{Op: "neg", DTypes: dtypes, Msg: "operand dtype is not arithmetic"}
	}
	return shapes[0].Clone(), dtypes[0], nil
}

func (NegOp) VJP(primals []*array.Array, output, ct *array.Array) ([]*array.Array, error) {
	g, err := Neg(ct)
	if err != nil {
		return nil, err
	}
	return []*array.Array{g}, nil
}

func (NegOp) JVP(primals, tangents []*array.Array, output *array.Array) (*array.Array, error) {
	return Neg(tangents[0])
}

func (p NegOp) Vmap(inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	return elementwiseUnaryVmap(p, inputs, bdims)
}

// ExpOp is the element-wise exponential.
type ExpOp struct{}

func (ExpOp) Kind() array.Kind { return array.KindExp }

func (ExpOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	return unaryInfer("exp", shapes, dtypes)
}

// VJP: d/dx exp(x) = exp(x) = output.
func (ExpOp) VJP(primals []*array.Array, output, ct *array.Array) ([]*array.Array, error) {
	g, err := Mul(ct, output)
	if err != nil {
		return nil, err
	}
	return []*array.Array{g}, nil
}

func (ExpOp) JVP(primals, tangents []*array.Array, output *array.Array) (*array.Array, error) {
	return Mul(tangents[0], output)
}

func (p ExpOp) Vmap(inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	return elementwiseUnaryVmap(p, inputs, bdims)
}

// LogOp is the element-wise natural logarithm.
type LogOp struct{}

func (LogOp) Kind() array.Kind { return array.KindLog }

func (LogOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	return unaryInfer("log", shapes, dtypes)
}

// VJP: d/dx log(x) = 1/x.
func (LogOp) VJP(primals []*array.Array, output, ct *array.Array) ([]*array.Array, error) {
	g, err := Div(ct, primals[0])
	if err != nil {
		return nil, err
	}
	return []*array.Array{g}, nil
}

func (LogOp) JVP(primals, tangents []*array.Array, output *array.Array) (*array.Array, error) {
	return Div(tangents[0], primals[0])
}

func (p LogOp) Vmap(inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	return elementwiseUnaryVmap(p, inputs, bdims)
}

// SinOp is the element-wise sine.
type SinOp struct{}

func (SinOp) Kind() array.Kind { return array.KindSin }

func (SinOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	return unaryInfer("sin", shapes, dtypes)
}

func (SinOp) VJP(primals []*array.Array, output, ct *array.Array) ([]*array.Array, error) {
	c, err := Cos(primals[0])
	if err != nil {
		return nil, err
	}
	g, err := Mul(ct, c)
	if err != nil {
		return nil, err
	}
	return []*array.Array{g}, nil
}

func (SinOp) JVP(primals, tangents []*array.Array, output *array.Array) (*array.Array, error) {
	c, err := Cos(primals[0])
	if err != nil {
		return nil, err
	}
	return Mul(tangents[0], c)
}

func (p SinOp) Vmap(inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	return elementwiseUnaryVmap(p, inputs, bdims)
}

// CosOp is the element-wise cosine.
type CosOp struct{}

func (CosOp) Kind() array.Kind { return array.KindCos }

func (CosOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	return unaryInfer("cos", shapes, dtypes)
}

func (CosOp) VJP(primals []*array.Array, output, ct *array.Array) ([]*array.Array, error) {
	s, err := Sin(primals[0])
	if err != nil {
		return nil, err
	}
	scaled, err := Mul(ct, s)
	if err != nil {
		return nil, err
	}
	g, err := Neg(scaled)
	if err != nil {
		return nil, err
	}
	return []*array.Array{g}, nil
}

func (CosOp) JVP(primals, tangents []*array.Array, output *array.Array) (*array.Array, error) {
	s, err := Sin(primals[0])
	if err != nil {
		return nil, err
	}
	scaled, err := Mul(tangents[0], s)
	if err != nil {
		return nil, err
	}
	return Neg(scaled)
}

func (p CosOp) Vmap(inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	return elementwiseUnaryVmap(p, inputs, bdims)
}

// SqrtOp is the element-wise square root.
type SqrtOp struct{}

func (SqrtOp) Kind() array.Kind { return array.KindSqrt }

func (SqrtOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	return unaryInfer("sqrt", shapes, dtypes)
}

// VJP: d/dx sqrt(x) = 1/(2*sqrt(x)) = 1/(output+output).
func (SqrtOp) VJP(primals []*array.Array, output, ct *array.Array) ([]*array.Array, error) {
	twice, err := Add(output, output)
	if err != nil {
		return nil, err
	}
	g, err := Div(ct, twice)
	if err != nil {
		return nil, err
	}
	return []*array.Array{g}, nil
}

func (SqrtOp) JVP(primals, tangents []*array.Array, output *array.Array) (*array.Array, error) {
	twice, err := Add(output, output)
	if err != nil {
		return nil, err
	}
	return Div(tangents[0], twice)
}

func (p SqrtOp) Vmap(inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	return elementwiseUnaryVmap(p, inputs, bdims)
}

// TanhOp is the element-wise hyperbolic tangent.
type TanhOp struct{}

func (TanhOp) Kind() array.Kind { return array.KindTanh }

func (TanhOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	return unaryInfer("tanh", shapes, dtypes)
}

// VJP: d/dx tanh(x) = 1 - tanh(x)², so grad = ct - ct*output².
func (TanhOp) VJP(primals []*array.Array, output, ct *array.Array) ([]*array.Array, error) {
	sq, err := Mul(output, output)
	if err != nil {
		return nil, err
	}
	damped, err := Mul(ct, sq)
	if err != nil {
		return nil, err
	}
	g, err := Sub(ct, damped)
	if err != nil {
		return nil, err
	}
	return []*array.Array{g}, nil
}

func (TanhOp) JVP(primals, tangents []*array.Array, output *array.Array) (*array.Array, error) {
	sq, err := Mul(output, output)
	if err != nil {
		return nil, err
	}
	damped, err := Mul(tangents[0], sq)
	if err != nil {
		return nil, err
	}
	return Sub(tangents[0], damped)
}

func (p TanhOp) Vmap(inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	return elementwiseUnaryVmap(p, inputs, bdims)
}

// AbsOp is the element-wise absolute value.
type AbsOp struct{}

func (AbsOp) Kind() array.Kind { return array.KindAbs }

func (AbsOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	return unaryInfer("abs", shapes, dtypes)
}

// VJP: d/dx |x| = sign(x) = x/|x|, undefined (and left as 0/0) at x == 0.
func (AbsOp) VJP(primals []*array.Array, output, ct *array.Array) ([]*array.Array, error) {
	sign, err := Div(primals[0], output)
	if err != nil {
		return nil, err
	}
	g, err := Mul(ct, sign)
	if err != nil {
		return nil, err
	}
	return []*array.Array{g}, nil
}

func (AbsOp) JVP(primals, tangents []*array.Array, output *array.Array) (*array.Array, error) {
	sign, err := Div(primals[0], output)
	if err != nil {
		return nil, err
	}
	return Mul(tangents[0], sign)
}

func (p AbsOp) Vmap(inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	return elementwiseUnaryVmap(p, inputs, bdims)
}

// Constructors.

// Neg returns -x.
func Neg(x *array.Array) (*array.Array, error) { return array.NewPending(NegOp{}, x) }

// Exp returns e^x element-wise.
func Exp(x *array.Array) (*array.Array, error) { return array.NewPending(ExpOp{}, x) }

// Log returns the natural logarithm element-wise.
func Log(x *array.Array) (*array.Array, error) { return array.NewPending(LogOp{}, x) }

// Sin returns sin(x) element-wise.
func Sin(x *array.Array) (*array.Array, error) { return array.NewPending(SinOp{}, x) }

// Cos returns cos(x) element-wise.
func Cos(x *array.Array) (*array.Array, error) { return array.NewPending(CosOp{}, x) }

// Sqrt returns the square root element-wise.
func Sqrt(x *array.Array) (*array.Array, error) { return array.NewPending(SqrtOp{}, x) }

// Tanh returns tanh(x) element-wise.
func Tanh(x *array.Array) (*array.Array, error) { return array.NewPending(TanhOp{}, x) }

// Abs returns |x| element-wise.
func Abs(x *array.Array) (*array.Array, error) { return array.NewPending(AbsOp{}, x) }
