package transform

import (
	"fmt"

	"github.com/strand-ml/strand/internal/array"
	"github.com/strand-ml/strand/internal/prim"
)

// JVP pushes tangents forward from inputs to outputs through the graph
// that produced outputs. tangents[i] pairs with inputs[i] and must match
// its shape and dtype. The result has one tangent per output; outputs that
// do not depend on any seeded input get zero arrays.
func JVP(outputs, inputs, tangents []*array.Array) ([]*array.Array, error) {
	if len(inputs) != len(tangents) {
		return nil, fmt.Errorf("jvp: %d inputs but %d tangents", len(inputs), len(tangents))
	}
	tan := make(map[*array.Array]*array.Array, len(inputs))
	for i, in := range inputs {
		t := tangents[i]
		if !t.Shape().Equal(in.Shape()) {
			return nil, &array.ShapeError{
				Op:     "jvp",
				Shapes: []array.Shape{in.Shape(), t.Shape()},
				Msg:    fmt.Sprintf("tangent %d does not match input shape", i),
			}
		}
		if t.DType() != in.DType() {
			return nil, &array.DTypeError{
				Op:     "jvp",
				DTypes: []array.DataType{in.DType(), t.DType()},
				Msg:    fmt.Sprintf("tangent %d does not match input dtype", i),
			}
		}
		tan[in] = t
	}

	for _, node := range array.Topsort(outputs) {
		p := node.Prim()
		if p == nil {
			continue
		}
		primals := node.Inputs()
		touched := false
		for _, in := range primals {
			if _, ok := tan[in]; ok {
				touched = true
				break
			}
		}
		if !touched {
			continue
		}
		rule, ok := p.(array.JVPer)
		if !ok {
			return nil, &NotDifferentiableError{Kind: p.Kind()}
		}
		// Rules see a full tangent vector; unseeded operands get zeros.
		ts := make([]*array.Array, len(primals))
		for i, in := range primals {
			if t, ok := tan[in]; ok {
				ts[i] = t
				continue
			}
			z, err := prim.ZerosLike(in)
			if err != nil {
				return nil, err
			}
			ts[i] = z
		}
		t, err := rule.JVP(primals, ts, node)
		if err != nil {
			return nil, err
		}
		if t != nil {
			tan[node] = t
		}
	}

	results := make([]*array.Array, len(outputs))
	for i, out := range outputs {
		if t, ok := tan[out]; ok {
			results[i] = t
			continue
		}
		z, err := prim.ZerosLike(out)
		if err != nil {
			return nil, err
		}
		results[i] = z
	}
	return results, nil
}
