package array

// Kind identifies a primitive operation. Kernel dispatch is keyed by
// (Kind, device kind).
type Kind int

// The primitive catalog.
const (
	KindAdd Kind = iota
	KindSub
	KindMul
	KindDiv
	KindMaximum
	KindNeg
	KindExp
	KindLog
	KindSin
	KindCos
	KindSqrt
	KindTanh
	KindAbs
	KindGreater
	KindMatMul
	KindReshape
	KindTranspose
	KindBroadcast
	KindSlice
	KindPadIndex
	KindStack
	KindAsType
	KindSum
	KindSumAxis
	KindFused
)

var kindNames = map[Kind]string{
	KindAdd:       "add",
	KindSub:       "sub",
	KindMul:       "mul",
	KindDiv:       "div",
	KindMaximum:   "maximum",
	KindNeg:       "neg",
	KindExp:       "exp",
	KindLog:       "log",
	KindSin:       "sin",
	KindCos:       "cos",
	KindSqrt:      "sqrt",
	KindTanh:      "tanh",
	KindAbs:       "abs",
	KindGreater:   "greater",
	KindMatMul:    "matmul",
	KindReshape:   "reshape",
	KindTranspose: "transpose",
	KindBroadcast: "broadcast",
	KindSlice:     "slice",
	KindPadIndex:  "pad_index",
	KindStack:     "stack",
	KindAsType:    "astype",
	KindSum:       "sum",
	KindSumAxis:   "sum_axis",
	KindFused:     "fused",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Primitive is a value-type descriptor of one operation: its kind, its static
// parameters, and pure shape inference. Primitives never own Arrays; Pending
// arrays reference them.
type Primitive interface {
	Kind() Kind
	// InferShape validates operand shapes/dtypes and returns the output
	// shape and dtype. It must be pure; it runs eagerly at construction so
	// user errors surface immediately as ShapeError/DTypeError.
	InferShape(shapes []Shape, dtypes []DataType) (Shape, DataType, error)
}

// VJPer is the reverse-mode capability of a primitive. VJP receives the
// node's primal inputs, its output, and the cotangent flowing into the
// output, and returns one cotangent per input (nil for inputs that receive
// no gradient, e.g. integer index operands).
//
// A primitive without this capability is not differentiable: requesting a
// gradient through it fails with NotDifferentiableError when the adjoint
// graph is constructed, never by silently producing zeros.
type VJPer interface {
	VJP(primals []*Array, output, cotangent *Array) ([]*Array, error)
}

// JVPer is the forward-mode capability: given primal inputs and their
// tangents (nil for non-differentiable operands), produce the output tangent.
type JVPer interface {
	JVP(primals, tangents []*Array, output *Array) (*Array, error)
}

// Vmapper is the analytic batching capability. bdims holds the batch-axis
// position per input, or -1 for unbatched inputs. Implementations return
// ok=false when no analytic rule applies, in which case the transform falls
// back to evaluating the unbatched operation per batch element.
type Vmapper interface {
	Vmap(inputs []*Array, bdims []int) (out *Array, outBdim int, ok bool, err error)
}
