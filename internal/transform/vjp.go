// Package transform implements function transformations over the lazy
// graph: reverse-mode (VJP, Grad) and forward-mode (JVP) differentiation,
// vectorization (Vmap), and tracing compilation (Compile). Transforms
// build new graph nodes; nothing is evaluated until the caller forces a
// result. Transforms compose: Grad of a Grad-produced function is second
// derivatives, Vmap of a Grad-produced function is per-example gradients.
package transform

import (
	"fmt"

	"github.com/strand-ml/strand/internal/array"
	"github.com/strand-ml/strand/internal/prim"
)

// VJP pulls cotangents back from outputs to inputs through the graph that
// produced outputs. cotangents[i] seeds outputs[i] and must match its shape
// and dtype. The result has one entry per requested input; inputs the
// outputs do not depend on get zero arrays.
//
// Each node's gradient rule runs exactly once, after every cotangent
// contribution flowing into the node has been summed. Contributions from a
// node consumed at several places accumulate by addition.
func VJP(outputs, inputs, cotangents []*array.Array) ([]*array.Array, error) {
	if len(outputs) != len(cotangents) {
		return nil, fmt.Errorf("vjp: %d outputs but %d cotangents", len(outputs), len(cotangents))
	}
	cot := make(map[*array.Array]*array.Array, len(outputs))
	for i, out := range outputs {
		ct := cotangents[i]
		if !ct.Shape().Equal(out.Shape()) {
			return nil, &array.ShapeError{
				Op:     "vjp",
				Shapes: []array.Shape{out.Shape(), ct.Shape()},
				Msg:    fmt.Sprintf("cotangent %d does not match output shape", i),
			}
		}
		if ct.DType() != out.DType() {
			return nil, &array.DTypeError{
				Op:     "vjp",
				DTypes: []array.DataType{out.DType(), ct.DType()},
				Msg:    fmt.Sprintf("cotangent %d does not match output dtype", i),
			}
		}
		if err := accumulate(cot, out, ct); err != nil {
			return nil, err
		}
	}

	// Reverse topological order: every consumer of a node appears before
	// the node itself, so by the time a node's rule runs its cotangent is
	// fully accumulated.
	order := array.Topsort(outputs)
	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		ct, ok := cot[node]
		if !ok {
			continue
		}
		p := node.Prim()
		if p == nil {
			continue // materialized leaf or parameter
		}
		primals := node.Inputs()
		rule, ok := p.(array.VJPer)
		if !ok {
			return nil, &NotDifferentiableError{Kind: p.Kind()}
		}
		grads, err := rule.VJP(primals, node, ct)
		if err != nil {
			return nil, err
		}
		if len(grads) != len(primals) {
			return nil, fmt.Errorf("vjp: %s rule returned %d gradients for %d inputs",
				p.Kind(), len(grads), len(primals))
		}
		for j, g := range grads {
			if g == nil {
				continue // gradient does not flow through this operand
			}
			if err := accumulate(cot, primals[j], g); err != nil {
				return nil, err
			}
		}
	}

	results := make([]*array.Array, len(inputs))
	for i, in := range inputs {
		if g, ok := cot[in]; ok {
			results[i] = g
			continue
		}
		z, err := prim.ZerosLike(in)
		if err != nil {
			return nil, err
		}
		results[i] = z
	}
	return results, nil
}

func accumulate(cot map[*array.Array]*array.Array, node, contribution *array.Array) error {
	prev, ok := cot[node]
	if !ok {
		cot[node] = contribution
		return nil
	}
	sum, err := prim.Add(prev, contribution)
	if err != nil {
		return err
	}
	cot[node] = sum
	return nil
}

// Grad returns the gradient function of a scalar-valued f with respect to
// all of its inputs. The returned function builds f's graph on the given
// inputs and pulls a unit cotangent back through it; the value of f itself
// is discarded (see ValueAndGrad to keep it).
func Grad(f func([]*array.Array) (*array.Array, error)) func([]*array.Array) ([]*array.Array, error) {
	return func(args []*array.Array) ([]*array.Array, error) {
		_, grads, err := valueAndGrad(f, args)
		return grads, err
	}
}

// ValueAndGrad is Grad, but also returns f's value. The value and the
// gradients share the forward graph, so evaluating both costs one forward
// pass.
func ValueAndGrad(f func([]*array.Array) (*array.Array, error)) func([]*array.Array) (*array.Array, []*array.Array, error) {
	return func(args []*array.Array) (*array.Array, []*array.Array, error) {
		return valueAndGrad(f, args)
	}
}

func valueAndGrad(f func([]*array.Array) (*array.Array, error), args []*array.Array) (*array.Array, []*array.Array, error) {
	out, err := f(args)
	if err != nil {
		return nil, nil, err
	}
	if out.NumElements() != 1 {
		return nil, nil, &array.ShapeError{
			Op:     "grad",
			Shapes: []array.Shape{out.Shape()},
			Msg:    "output must be a scalar",
		}
	}
	if !out.DType().IsFloat() {
		return nil, nil, &array.DTypeError{
			Op:     "grad",
			DTypes: []array.DataType{out.DType()},
			Msg:    "output dtype must be floating point",
		}
	}
	seed, err := prim.OnesLike(out)
	if err != nil {
		return nil, nil, err
	}
	grads, err := VJP([]*array.Array{out}, args, []*array.Array{seed})
	if err != nil {
		return nil, nil, err
	}
	return out, grads, nil
}
