package prim

import (
	"fmt"

	"github.com/strand-ml/strand/internal/array"
)

// Structural primitives rearrange data without computing on it. Their
// gradient rules are all structural too: the adjoint of a rearrangement is
// the inverse rearrangement.

// ReshapeOp reinterprets an array under a new shape with the same element
// count, in row-major order.
type ReshapeOp struct {
	To array.Shape
}

func (ReshapeOp) Kind() array.Kind { return array.KindReshape }

func (p ReshapeOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	if len(shapes) != 1 {
		return nil, 0, &array.ShapeError{Op: "reshape", Shapes: shapes, Msg: "expects exactly one operand"}
	}
	if err := p.To.Validate(); err != nil {
		return nil, 0, &array.ShapeError{Op: "reshape", Shapes: []array.Shape{p.To}, Msg: err.Error()}
	}
	if shapes[0].NumElements() != p.To.NumElements() {
		return nil, 0, &array.ShapeError{
			Op:     "reshape",
			Shapes: []array.Shape{shapes[0], p.To},
			Msg:    fmt.Sprintf("cannot reshape %d elements into %d", shapes[0].NumElements(), p.To.NumElements()),
		}
	}
	return p.To.Clone(), dtypes[0], nil
}

func (p ReshapeOp) VJP(primals []*array.Array, output, ct *array.Array) ([]*array.Array, error) {
	g, err := Reshape(ct, primals[0].Shape())
	if err != nil {
		return nil, err
	}
	return []*array.Array{g}, nil
}

func (p ReshapeOp) JVP(primals, tangents []*array.Array, output *array.Array) (*array.Array, error) {
	return Reshape(tangents[0], p.To)
}

func (p ReshapeOp) Vmap(inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	x, err := MoveAxis(inputs[0], bdims[0], 0)
	if err != nil {
		return nil, -1, false, err
	}
	n := x.Shape()[0]
	batched := append(array.Shape{n}, p.To...)
	out, err := Reshape(x, batched)
	if err != nil {
		return nil, -1, false, err
	}
	return out, 0, true, nil
}

// TransposeOp permutes axes. Perm is always a full explicit permutation;
// the Transpose constructor resolves a nil perm to reversed axes.
type TransposeOp struct {
	Perm []int
}

func (TransposeOp) Kind() array.Kind { return array.KindTranspose }

func (p TransposeOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	if len(shapes) != 1 {
		return nil, 0, &array.ShapeError{Op: "transpose", Shapes: shapes, Msg: "expects exactly one operand"}
	}
	in := shapes[0]
	if len(p.Perm) != len(in) {
		return nil, 0, &array.ShapeError{
			Op:     "transpose",
			Shapes: []array.Shape{in},
			Msg:    fmt.Sprintf("permutation length %d does not match rank %d", len(p.Perm), len(in)),
		}
	}
	seen := make([]bool, len(in))
	out := make(array.Shape, len(in))
	for i, ax := range p.Perm {
		if ax < 0 || ax >= len(in) || seen[ax] {
			return nil, 0, &array.ShapeError{
				Op:     "transpose",
				Shapes: []array.Shape{in},
				Msg:    fmt.Sprintf("invalid permutation %v", p.Perm),
			}
		}
		seen[ax] = true
		out[i] = in[ax]
	}
	return out, dtypes[0], nil
}

func (p TransposeOp) VJP(primals []*array.Array, output, ct *array.Array) ([]*array.Array, error) {
	inv := make([]int, len(p.Perm))
	for i, ax := range p.Perm {
		inv[ax] = i
	}
	g, err := Transpose(ct, inv)
	if err != nil {
		return nil, err
	}
	return []*array.Array{g}, nil
}

func (p TransposeOp) JVP(primals, tangents []*array.Array, output *array.Array) (*array.Array, error) {
	return Transpose(tangents[0], p.Perm)
}

func (p TransposeOp) Vmap(inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	x, err := MoveAxis(inputs[0], bdims[0], 0)
	if err != nil {
		return nil, -1, false, err
	}
	perm := make([]int, len(p.Perm)+1)
	perm[0] = 0
	for i, ax := range p.Perm {
		perm[i+1] = ax + 1
	}
	out, err := Transpose(x, perm)
	if err != nil {
		return nil, -1, false, err
	}
	return out, 0, true, nil
}

// BroadcastOp replicates an array to a larger shape under NumPy alignment
// rules: shapes align on trailing axes, and each input dim must equal the
// target dim or be 1.
type BroadcastOp struct {
	To array.Shape
}

func (BroadcastOp) Kind() array.Kind { return array.KindBroadcast }

func (p BroadcastOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	if len(shapes) != 1 {
		return nil, 0, &array.ShapeError{Op: "broadcast_to", Shapes: shapes, Msg: "expects exactly one operand"}
	}
	in := shapes[0]
	if len(in) > len(p.To) {
		return nil, 0, &array.ShapeError{
			Op:     "broadcast_to",
			Shapes: []array.Shape{in, p.To},
			Msg:    "cannot broadcast to lower rank",
		}
	}
	offset := len(p.To) - len(in)
	for i, d := range in {
		if d != p.To[offset+i] && d != 1 {
			return nil, 0, &array.ShapeError{
				Op:     "broadcast_to",
				Shapes: []array.Shape{in, p.To},
				Msg:    fmt.Sprintf("axis %d: %d does not broadcast to %d", i, d, p.To[offset+i]),
			}
		}
	}
	return p.To.Clone(), dtypes[0], nil
}

// VJP sums the cotangent over every replicated axis. Summing is the exact
// adjoint of replication.
func (p BroadcastOp) VJP(primals []*array.Array, output, ct *array.Array) ([]*array.Array, error) {
	in := primals[0].Shape()
	offset := len(p.To) - len(in)
	g := ct
	var err error
	// Leading axes that did not exist in the input.
	for i := 0; i < offset; i++ {
		g, err = SumAxis(g, 0)
		if err != nil {
			return nil, err
		}
	}
	// Size-1 axes that were replicated; sum from the back so axis
	// numbering stays valid.
	for i := len(in) - 1; i >= 0; i-- {
		if in[i] == 1 && p.To[offset+i] != 1 {
			g, err = SumAxis(g, i)
			if err != nil {
				return nil, err
			}
		}
	}
	g, err = Reshape(g, in)
	if err != nil {
		return nil, err
	}
	return []*array.Array{g}, nil
}

func (p BroadcastOp) JVP(primals, tangents []*array.Array, output *array.Array) (*array.Array, error) {
	return BroadcastTo(tangents[0], p.To)
}

func (p BroadcastOp) Vmap(inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	x, err := MoveAxis(inputs[0], bdims[0], 0)
	if err != nil {
		return nil, -1, false, err
	}
	n := x.Shape()[0]
	// Pad the unbatched part to the target rank so axes line up
	// positionally once the batch axis is prepended.
	inner := x.Shape()[1:]
	padded := make(array.Shape, 0, len(p.To)+1)
	padded = append(padded, n)
	for i := 0; i < len(p.To)-len(inner); i++ {
		padded = append(padded, 1)
	}
	padded = append(padded, inner...)
	x, err = Reshape(x, padded)
	if err != nil {
		return nil, -1, false, err
	}
	target := append(array.Shape{n}, p.To...)
	out, err := BroadcastTo(x, target)
	if err != nil {
		return nil, -1, false, err
	}
	return out, 0, true, nil
}

// SliceOp selects one index along an axis, removing that axis.
type SliceOp struct {
	Axis  int
	Index int
}

func (SliceOp) Kind() array.Kind { return array.KindSlice }

func (p SliceOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	if len(shapes) != 1 {
		return nil, 0, &array.ShapeError{Op: "slice", Shapes: shapes, Msg: "expects exactly one operand"}
	}
	in := shapes[0]
	if p.Axis < 0 || p.Axis >= len(in) {
		return nil, 0, &array.ShapeError{
			Op:     "slice",
			Shapes: []array.Shape{in},
			Msg:    fmt.Sprintf("axis %d out of range for rank %d", p.Axis, len(in)),
		}
	}
	if p.Index < 0 || p.Index >= in[p.Axis] {
		return nil, 0, &array.ShapeError{
			Op:     "slice",
			Shapes: []array.Shape{in},
			Msg:    fmt.Sprintf("index %d out of range for axis %d of size %d", p.Index, p.Axis, in[p.Axis]),
		}
	}
	return in.Remove(p.Axis), dtypes[0], nil
}

// VJP scatters the cotangent back into a zero array at the sliced index.
func (p SliceOp) VJP(primals []*array.Array, output, ct *array.Array) ([]*array.Array, error) {
	g, err := padIndex(ct, p.Axis, p.Index, primals[0].Shape()[p.Axis])
	if err != nil {
		return nil, err
	}
	return []*array.Array{g}, nil
}

func (p SliceOp) JVP(primals, tangents []*array.Array, output *array.Array) (*array.Array, error) {
	return Slice(tangents[0], p.Axis, p.Index)
}

func (p SliceOp) Vmap(inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	x, err := MoveAxis(inputs[0], bdims[0], 0)
	if err != nil {
		return nil, -1, false, err
	}
	out, err := Slice(x, p.Axis+1, p.Index)
	if err != nil {
		return nil, -1, false, err
	}
	return out, 0, true, nil
}

// PadIndexOp is the adjoint of SliceOp: it inserts an axis of size N that
// is zero everywhere except at Index, where the input is placed.
type PadIndexOp struct {
	Axis  int
	Index int
	N     int
}

func (PadIndexOp) Kind() array.Kind { return array.KindPadIndex }

func (p PadIndexOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	if len(shapes) != 1 {
		return nil, 0, &array.ShapeError{Op: "pad_index", Shapes: shapes, Msg: "expects exactly one operand"}
	}
	in := shapes[0]
	if p.Axis < 0 || p.Axis > len(in) {
		return nil, 0, &array.ShapeError{
			Op:     "pad_index",
			Shapes: []array.Shape{in},
			Msg:    fmt.Sprintf("axis %d out of range for rank %d", p.Axis, len(in)),
		}
	}
	if p.Index < 0 || p.Index >= p.N {
		return nil, 0, &array.ShapeError{
			Op:     "pad_index",
			Shapes: []array.Shape{in},
			Msg:    fmt.Sprintf("index %d out of range for size %d", p.Index, p.N),
		}
	}
	return in.Insert(p.Axis, p.N), dtypes[0], nil
}

func (p PadIndexOp) VJP(primals []*array.Array, output, ct *array.Array) ([]*array.Array, error) {
	g, err := Slice(ct, p.Axis, p.Index)
	if err != nil {
		return nil, err
	}
	return []*array.Array{g}, nil
}

func (p PadIndexOp) JVP(primals, tangents []*array.Array, output *array.Array) (*array.Array, error) {
	return padIndex(tangents[0], p.Axis, p.Index, p.N)
}

func (p PadIndexOp) Vmap(inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	x, err := MoveAxis(inputs[0], bdims[0], 0)
	if err != nil {
		return nil, -1, false, err
	}
	out, err := padIndex(x, p.Axis+1, p.Index, p.N)
	if err != nil {
		return nil, -1, false, err
	}
	return out, 0, true, nil
}

// StackOp joins same-shaped arrays along a new leading axis.
type StackOp struct{}

func (StackOp) Kind() array.Kind { return array.KindStack }

func (p StackOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	if len(shapes) == 0 {
		return nil, 0, &array.ShapeError{Op: "stack", Shapes: shapes, Msg: "expects at least one operand"}
	}
	for i := 1; i < len(shapes); i++ {
		if !shapes[i].Equal(shapes[0]) {
			return nil, 0, &array.ShapeError{Op: "stack", Shapes: shapes, Msg: "operand shapes differ"}
		}
		if dtypes[i] != dtypes[0] {
			return nil, 0, &array.DTypeError{Op: "stack", DTypes: dtypes, Msg: "operand dtypes differ"}
		}
	}
	return shapes[0].Insert(0, len(shapes)), dtypes[0], nil
}

// VJP slices the cotangent back apart.
func (p StackOp) VJP(primals []*array.Array, output, ct *array.Array) ([]*array.Array, error) {
	grads := make([]*array.Array, len(primals))
	for i := range primals {
		g, err := Slice(ct, 0, i)
		if err != nil {
			return nil, err
		}
		grads[i] = g
	}
	return grads, nil
}

func (p StackOp) JVP(primals, tangents []*array.Array, output *array.Array) (*array.Array, error) {
	return Stack(tangents)
}

// AsTypeOp casts elements to another dtype. Gradients flow only between
// floating-point dtypes; a cast through an integer type stops them.
type AsTypeOp struct {
	To array.DataType
}

func (AsTypeOp) Kind() array.Kind { return array.KindAsType }

func (p AsTypeOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	if len(shapes) != 1 {
		return nil, 0, &array.ShapeError{Op: "astype", Shapes: shapes, Msg: "expects exactly one operand"}
	}
	return shapes[0].Clone(), p.To, nil
}

func (p AsTypeOp) VJP(primals []*array.Array, output, ct *array.Array) ([]*array.Array, error) {
	src := primals[0].DType()
	if !src.IsFloat() || !p.To.IsFloat() {
		return []*array.Array{nil}, nil
	}
	g, err := AsType(ct, src)
	if err != nil {
		return nil, err
	}
	return []*array.Array{g}, nil
}

func (p AsTypeOp) JVP(primals, tangents []*array.Array, output *array.Array) (*array.Array, error) {
	src := primals[0].DType()
	if !src.IsFloat() || !p.To.IsFloat() {
		return nil, nil
	}
	return AsType(tangents[0], p.To)
}

func (p AsTypeOp) Vmap(inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	out, err := AsType(inputs[0], p.To)
	if err != nil {
		return nil, -1, false, err
	}
	return out, bdims[0], true, nil
}

// Constructors.

// Reshape returns x viewed under shape. One dimension may be -1 and is
// inferred from the element count.
func Reshape(x *array.Array, shape array.Shape) (*array.Array, error) {
	resolved, err := resolveShape(x.Shape(), shape)
	if err != nil {
		return nil, err
	}
	if x.Shape().Equal(resolved) {
		return x, nil
	}
	return array.NewPending(ReshapeOp{To: resolved}, x)
}

// Transpose permutes the axes of x. A nil perm reverses them.
func Transpose(x *array.Array, perm []int) (*array.Array, error) {
	if perm == nil {
		perm = make([]int, len(x.Shape()))
		for i := range perm {
			perm[i] = len(perm) - 1 - i
		}
	}
	return array.NewPending(TransposeOp{Perm: perm}, x)
}

// BroadcastTo replicates x to the given shape.
func BroadcastTo(x *array.Array, shape array.Shape) (*array.Array, error) {
	if x.Shape().Equal(shape) {
		return x, nil
	}
	return array.NewPending(BroadcastOp{To: shape.Clone()}, x)
}

// Slice selects index along axis, removing the axis.
func Slice(x *array.Array, axis, index int) (*array.Array, error) {
	return array.NewPending(SliceOp{Axis: axis, Index: index}, x)
}

// Stack joins same-shaped arrays along a new leading axis.
func Stack(xs []*array.Array) (*array.Array, error) {
	if len(xs) == 0 {
		return nil, &array.ShapeError{Op: "stack", Msg: "expects at least one operand"}
	}
	return array.NewPending(StackOp{}, xs...)
}

// AsType casts x to the given dtype.
func AsType(x *array.Array, dt array.DataType) (*array.Array, error) {
	if x.DType() == dt {
		return x, nil
	}
	return array.NewPending(AsTypeOp{To: dt}, x)
}

func padIndex(x *array.Array, axis, index, n int) (*array.Array, error) {
	return array.NewPending(PadIndexOp{Axis: axis, Index: index, N: n}, x)
}

// MoveAxis moves one axis of x to a new position, preserving the order of
// the others.
func MoveAxis(x *array.Array, from, to int) (*array.Array, error) {
	rank := len(x.Shape())
	if from < 0 || from >= rank || to < 0 || to >= rank {
		return nil, &array.ShapeError{
			Op:     "moveaxis",
			Shapes: []array.Shape{x.Shape()},
			Msg:    fmt.Sprintf("axes (%d, %d) out of range for rank %d", from, to, rank),
		}
	}
	if from == to {
		return x, nil
	}
	perm := make([]int, 0, rank)
	for i := 0; i < rank; i++ {
		if i != from {
			perm = append(perm, i)
		}
	}
	perm = append(perm[:to], append([]int{from}, perm[to:]...)...)
	return Transpose(x, perm)
}

// ExpandDims inserts a size-1 axis at the given position.
func ExpandDims(x *array.Array, axis int) (*array.Array, error) {
	return Reshape(x, x.Shape().Insert(axis, 1))
}

func resolveShape(in, want array.Shape) (array.Shape, error) {
	infer := -1
	known := 1
	for i, d := range want {
		switch {
		case d == -1:
			if infer >= 0 {
				return nil, &array.ShapeError{Op: "reshape", Shapes: []array.Shape{want}, Msg: "at most one dimension may be -1"}
			}
			infer = i
		case d < 0:
			return nil, &array.ShapeError{Op: "reshape", Shapes: []array.Shape{want}, Msg: fmt.Sprintf("invalid dimension %d", d)}
		default:
			known *= d
		}
	}
	out := want.Clone()
	if infer >= 0 {
		total := in.NumElements()
		if known == 0 || total%known != 0 {
			return nil, &array.ShapeError{
				Op:     "reshape",
				Shapes: []array.Shape{in, want},
				Msg:    fmt.Sprintf("cannot infer dimension: %d elements not divisible by %d", total, known),
			}
		}
		out[infer] = total / known
	}
	return out, nil
}
