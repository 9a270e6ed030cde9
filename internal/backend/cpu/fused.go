package cpu

import (
	"fmt"
	"math"

	"github.com/strand-ml/strand/internal/array"
	"github.com/strand-ml/strand/internal/dispatch"
	"github.com/strand-ml/strand/internal/parallel"
	"github.com/strand-ml/strand/internal/prim"
)

// fusedKernel interprets a fused elementwise program. Every value in the
// program shares the output shape, so the interpreter runs a straight
// per-element loop over the whole program, touching each output element
// once instead of once per step.
func fusedKernel(c *dispatch.Call) error {
	p, ok := c.Prim.(prim.FusedOp)
	if !ok {
		return fmt.Errorf("fused kernel called with %T", c.Prim)
	}
	n := c.OutShape.NumElements()
	if n == 0 {
		return nil
	}

	ins := make([][]float64, len(c.Inputs))
	for i, buf := range c.Inputs {
		ins[i] = array.DecodeFloat64s(buf.Bytes(), c.InDTypes[i], n)
	}

	// Every step rounds through the chain dtype so the fused program computes
	// the same values, element for element, as the steps it replaced.
	round := c.OutDType.Rounder()
	out := make([]float64, n)
	parallel.ForRange(n, func(start, end int) {
		vals := make([]float64, p.NumInputs+len(p.Steps))
		for e := start; e < end; e++ {
			for i := range ins {
				vals[i] = ins[i][e]
			}
			for si, st := range p.Steps {
				vals[p.NumInputs+si] = round(evalStep(st, vals))
			}
			out[e] = vals[len(vals)-1]
		}
	}, cfg)

	array.EncodeFloat64s(c.Out.Bytes(), out, c.OutDType)
	return nil
}

func evalStep(st prim.FusedStep, vals []float64) float64 {
	switch st.Kind {
	case array.KindAdd:
		return vals[st.Args[0]] + vals[st.Args[1]]
	case array.KindSub:
		return vals[st.Args[0]] - vals[st.Args[1]]
	case array.KindMul:
		return vals[st.Args[0]] * vals[st.Args[1]]
	case array.KindDiv:
		return vals[st.Args[0]] / vals[st.Args[1]]
	case array.KindMaximum:
		return math.Max(vals[st.Args[0]], vals[st.Args[1]])
	case array.KindNeg:
		return -vals[st.Args[0]]
	case array.KindExp:
		return math.Exp(vals[st.Args[0]])
	case array.KindLog:
		return math.Log(vals[st.Args[0]])
	case array.KindSin:
		return math.Sin(vals[st.Args[0]])
	case array.KindCos:
		return math.Cos(vals[st.Args[0]])
	case array.KindSqrt:
		return math.Sqrt(vals[st.Args[0]])
	case array.KindTanh:
		return math.Tanh(vals[st.Args[0]])
	case array.KindAbs:
		return math.Abs(vals[st.Args[0]])
	default:
		panic("fused: unsupported step kind " + st.Kind.String())
	}
}
