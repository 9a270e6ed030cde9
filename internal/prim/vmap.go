package prim

import (
	"github.com/strand-ml/strand/internal/array"
)

// Elementwise ops commute with batching, so their vmap rules only need to
// align the batch axes of the operands at axis 0 and reapply the op.

func elementwiseUnaryVmap(p array.Primitive, inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	out, err := array.NewPending(p, inputs[0])
	if err != nil {
		return nil, -1, false, err
	}
	return out, bdims[0], true, nil
}

func elementwiseBinaryVmap(p array.Primitive, inputs []*array.Array, bdims []int) (*array.Array, int, bool, error) {
	a, b := inputs[0], inputs[1]
	ba, bb := bdims[0], bdims[1]
	if ba < 0 && bb < 0 {
		return nil, -1, false, nil
	}
	var err error
	if ba > 0 {
		if a, err = MoveAxis(a, ba, 0); err != nil {
			return nil, -1, false, err
		}
	}
	if bb > 0 {
		if b, err = MoveAxis(b, bb, 0); err != nil {
			return nil, -1, false, err
		}
	}
	// An unbatched operand gains a size-1 leading axis and is replicated
	// across the batch.
	switch {
	case ba < 0:
		if a, err = ExpandDims(a, 0); err != nil {
			return nil, -1, false, err
		}
		if a, err = BroadcastTo(a, b.Shape()); err != nil {
			return nil, -1, false, err
		}
	case bb < 0:
		if b, err = ExpandDims(b, 0); err != nil {
			return nil, -1, false, err
		}
		if b, err = BroadcastTo(b, a.Shape()); err != nil {
			return nil, -1, false, err
		}
	}
	out, err := array.NewPending(p, a, b)
	if err != nil {
		return nil, -1, false, err
	}
	return out, 0, true, nil
}
