package cpu

import (
	"github.com/strand-ml/strand/internal/array"
	"github.com/strand-ml/strand/internal/dispatch"
	"github.com/strand-ml/strand/internal/parallel"
)

// matmulKernel computes (m, k) x (k, n) row-parallel. Half-precision
// operands round-trip through float64 with float64 accumulation.
func matmulKernel(c *dispatch.Call) error {
	m, k := c.InShapes[0][0], c.InShapes[0][1]
	n := c.InShapes[1][1]
	if m == 0 || n == 0 {
		return nil
	}

	switch c.OutDType {
	case array.Float32:
		a := array.AsFloat32(c.Inputs[0].Bytes(), m*k)
		b := array.AsFloat32(c.Inputs[1].Bytes(), k*n)
		out := array.AsFloat32(c.Out.Bytes(), m*n)
		parallel.For(m, func(i int) {
			row := a[i*k : (i+1)*k]
			dst := out[i*n : (i+1)*n]
			for j := range dst {
				dst[j] = 0
			}
			for p, av := range row {
				if av == 0 {
					continue
				}
				brow := b[p*n : (p+1)*n]
				for j, bv := range brow {
					dst[j] += av * bv
				}
			}
		}, cfg)
	case array.Float64:
		a := array.AsFloat64(c.Inputs[0].Bytes(), m*k)
		b := array.AsFloat64(c.Inputs[1].Bytes(), k*n)
		out := array.AsFloat64(c.Out.Bytes(), m*n)
		parallel.For(m, func(i int) {
			row := a[i*k : (i+1)*k]
			dst := out[i*n : (i+1)*n]
			for j := range dst {
				dst[j] = 0
			}
			for p, av := range row {
				if av == 0 {
					continue
				}
				brow := b[p*n : (p+1)*n]
				for j, bv := range brow {
					dst[j] += av * bv
				}
			}
		}, cfg)
	default: // Float16, BFloat16
		a := array.DecodeFloat64s(c.Inputs[0].Bytes(), c.InDTypes[0], m*k)
		b := array.DecodeFloat64s(c.Inputs[1].Bytes(), c.InDTypes[1], k*n)
		out := make([]float64, m*n)
		parallel.For(m, func(i int) {
			row := a[i*k : (i+1)*k]
			dst := out[i*n : (i+1)*n]
			for p, av := range row {
				brow := b[p*n : (p+1)*n]
				for j, bv := range brow {
					dst[j] += av * bv
				}
			}
		}, cfg)
		array.EncodeFloat64s(c.Out.Bytes(), out, c.OutDType)
	}
	return nil
}
