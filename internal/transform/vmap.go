package transform

import (
	"fmt"

	"github.com/strand-ml/strand/internal/array"
	"github.com/strand-ml/strand/internal/prim"
)

// Vmap vectorizes f over a batch axis. inAxes gives the batch axis of each
// argument, -1 for arguments shared across the batch; outAxes gives where
// the batch axis lands in each output. Nil slices default to axis 0
// everywhere.
//
// Primitives with an analytic batching rule are rewritten in one step; the
// rest fall back to slice-apply-stack over the batch, which is always
// correct but costs one kernel per element.
func Vmap(f func([]*array.Array) ([]*array.Array, error), inAxes, outAxes []int) func([]*array.Array) ([]*array.Array, error) {
	return func(args []*array.Array) ([]*array.Array, error) {
		if inAxes == nil {
			inAxes = make([]int, len(args))
		}
		if len(inAxes) != len(args) {
			return nil, fmt.Errorf("vmap: %d arguments but %d input axes", len(args), len(inAxes))
		}

		n := -1
		params := make([]*array.Array, len(args))
		for i, arg := range args {
			ax := inAxes[i]
			if ax < 0 {
				params[i] = arg // shared across the batch, used as-is
				continue
			}
			shape := arg.Shape()
			if ax >= len(shape) {
				return nil, &array.ShapeError{
					Op:     "vmap",
					Shapes: []array.Shape{shape},
					Msg:    fmt.Sprintf("batch axis %d out of range for argument %d", ax, i),
				}
			}
			if n < 0 {
				n = shape[ax]
			} else if shape[ax] != n {
				return nil, &array.ShapeError{
					Op:     "vmap",
					Shapes: []array.Shape{shape},
					Msg:    fmt.Sprintf("argument %d batch size %d, want %d", i, shape[ax], n),
				}
			}
			params[i] = array.NewParam(shape.Remove(ax), arg.DType(), arg.Device())
		}
		if n < 0 {
			return nil, fmt.Errorf("vmap: no argument carries a batch axis")
		}

		outs, err := f(params)
		if err != nil {
			return nil, err
		}
		if outAxes == nil {
			outAxes = make([]int, len(outs))
		}
		if len(outAxes) != len(outs) {
			return nil, fmt.Errorf("vmap: %d outputs but %d output axes", len(outs), len(outAxes))
		}

		// Rewrite the traced graph bottom-up, replacing each node that
		// depends on a batched parameter with its batched counterpart.
		batched := make(map[*array.Array]*array.Array)
		bdim := make(map[*array.Array]int)
		for i, p := range params {
			if inAxes[i] >= 0 {
				batched[p] = args[i]
				bdim[p] = inAxes[i]
			}
		}

		for _, node := range array.Topsort(outs) {
			if _, done := batched[node]; done {
				continue
			}
			p := node.Prim()
			if p == nil {
				if node.IsParam() {
					return nil, fmt.Errorf("vmap: unbound parameter in traced function")
				}
				continue // materialized constant, shared across the batch
			}
			ins := node.Inputs()
			bins := make([]*array.Array, len(ins))
			bds := make([]int, len(ins))
			touched := false
			for i, in := range ins {
				if b, ok := batched[in]; ok {
					bins[i] = b
					bds[i] = bdim[in]
					touched = true
				} else {
					bins[i] = in
					bds[i] = -1
				}
			}
			if !touched {
				continue // untouched by the batch, reuse the node
			}

			if rule, ok := p.(array.Vmapper); ok {
				out, obd, handled, err := rule.Vmap(bins, bds)
				if err != nil {
					return nil, err
				}
				if handled {
					batched[node] = out
					bdim[node] = obd
					continue
				}
			}

			out, err := vmapFallback(p, bins, bds, n)
			if err != nil {
				return nil, err
			}
			batched[node] = out
			bdim[node] = 0
		}

		results := make([]*array.Array, len(outs))
		for i, out := range outs {
			b, ok := batched[out]
			if !ok {
				// Output independent of the batch: replicate it.
				expanded, err := prim.ExpandDims(out, outAxes[i])
				if err != nil {
					return nil, err
				}
				target := out.Shape().Insert(outAxes[i], n)
				if results[i], err = prim.BroadcastTo(expanded, target); err != nil {
					return nil, err
				}
				continue
			}
			moved, err := prim.MoveAxis(b, bdim[out], outAxes[i])
			if err != nil {
				return nil, err
			}
			results[i] = moved
		}
		return results, nil
	}
}

// vmapFallback batches a primitive with no analytic rule by slicing each
// batched operand per element, applying the primitive, and restacking.
func vmapFallback(p array.Primitive, inputs []*array.Array, bdims []int, n int) (*array.Array, error) {
	parts := make([]*array.Array, n)
	for k := 0; k < n; k++ {
		ins := make([]*array.Array, len(inputs))
		for i, in := range inputs {
			if bdims[i] < 0 {
				ins[i] = in
				continue
			}
			sliced, err := prim.Slice(in, bdims[i], k)
			if err != nil {
				return nil, err
			}
			ins[i] = sliced
		}
		out, err := array.NewPending(p, ins...)
		if err != nil {
			return nil, err
		}
		parts[k] = out
	}
	return prim.Stack(parts)
}
