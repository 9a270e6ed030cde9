package prim

import (
	"fmt"

	"github.com/strand-ml/strand/internal/array"
)

// FusedStep is one instruction of a fused elementwise program. Args index
// into the fused node's external inputs first (0..NumInputs-1), then into
// the results of earlier steps (NumInputs+j for step j).
type FusedStep struct {
	Kind array.Kind
	Args []int
}

// FusedOp is a straight-line program of elementwise operations executed as
// a single kernel launch. Compilation builds these from eligible chains;
// user code never constructs them directly. The final step's result is the
// node's output.
//
// FusedOp carries no gradient or batching rules: fusion runs on already
// transformed graphs.
type FusedOp struct {
	NumInputs int
	Steps     []FusedStep
	OutDType  array.DataType
}

func (FusedOp) Kind() array.Kind { return array.KindFused }

func (p FusedOp) InferShape(shapes []array.Shape, dtypes []array.DataType) (array.Shape, array.DataType, error) {
	if len(shapes) != p.NumInputs {
		return nil, 0, &array.ShapeError{
			Op:     "fused",
			Shapes: shapes,
			Msg:    fmt.Sprintf("program expects %d inputs, got %d", p.NumInputs, len(shapes)),
		}
	}
	if len(p.Steps) == 0 {
		return nil, 0, &array.ShapeError{Op: "fused", Shapes: shapes, Msg: "empty program"}
	}
	for i := 1; i < len(shapes); i++ {
		if !shapes[i].Equal(shapes[0]) {
			return nil, 0, &array.ShapeError{Op: "fused", Shapes: shapes, Msg: "fused inputs must share a shape"}
		}
	}
	for si, st := range p.Steps {
		for _, a := range st.Args {
			if a < 0 || a >= p.NumInputs+si {
				return nil, 0, &array.ShapeError{
					Op:     "fused",
					Shapes: shapes,
					Msg:    fmt.Sprintf("step %d references out-of-range value %d", si, a),
				}
			}
		}
	}
	return shapes[0].Clone(), p.OutDType, nil
}

// String renders the program for logs and cache diagnostics.
func (p FusedOp) String() string {
	s := fmt.Sprintf("fused[%d inputs", p.NumInputs)
	for _, st := range p.Steps {
		s += fmt.Sprintf("; %s%v", st.Kind, st.Args)
	}
	return s + "]"
}
