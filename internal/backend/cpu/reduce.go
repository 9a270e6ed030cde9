package cpu

import (
	"fmt"

	"github.com/strand-ml/strand/internal/array"
	"github.com/strand-ml/strand/internal/device"
	"github.com/strand-ml/strand/internal/dispatch"
	"github.com/strand-ml/strand/internal/prim"
)

func registerReduce() {
	dispatch.Register(array.KindSum, device.CPU, sumKernel)
	dispatch.Register(array.KindSumAxis, device.CPU, sumAxisKernel)
}

func sumKernel(c *dispatch.Call) error {
	n := c.InShapes[0].NumElements()
	in := c.Inputs[0].Bytes()
	out := c.Out.Bytes()

	switch c.OutDType {
	case array.Float32:
		var acc float64
		for _, v := range array.AsFloat32(in, n) {
			acc += float64(v)
		}
		array.AsFloat32(out, 1)[0] = float32(acc)
	case array.Float64:
		var acc float64
		for _, v := range array.AsFloat64(in, n) {
			acc += v
		}
		array.AsFloat64(out, 1)[0] = acc
	case array.Int32:
		var acc int64
		for _, v := range array.AsInt32(in, n) {
			acc += int64(v)
		}
		array.AsInt32(out, 1)[0] = int32(acc)
	case array.Int64:
		var acc int64
		for _, v := range array.AsInt64(in, n) {
			acc += v
		}
		array.AsInt64(out, 1)[0] = acc
	case array.Uint8:
		var acc int64
		for i := 0; i < n; i++ {
			acc += int64(in[i])
		}
		out[0] = uint8(acc)
	default: // Float16, BFloat16
		var acc float64
		for _, v := range array.DecodeFloat64s(in, c.OutDType, n) {
			acc += v
		}
		array.EncodeFloat64s(out, []float64{acc}, c.OutDType)
	}
	return nil
}

// sumAxisKernel reduces one axis with the outer/dim/inner decomposition:
// out[o, i] = sum_d in[o, d, i].
func sumAxisKernel(c *dispatch.Call) error {
	p, ok := c.Prim.(prim.SumAxisOp)
	if !ok {
		return fmt.Errorf("sum_axis kernel called with %T", c.Prim)
	}
	inShape := c.InShapes[0]
	outer := 1
	for _, d := range inShape[:p.Axis] {
		outer *= d
	}
	inner := 1
	for _, d := range inShape[p.Axis+1:] {
		inner *= d
	}
	dim := inShape[p.Axis]

	in, out := c.Inputs[0].Bytes(), c.Out.Bytes()
	switch c.OutDType {
	case array.Float32:
		iv := array.AsFloat32(in, outer*dim*inner)
		ov := array.AsFloat32(out, outer*inner)
		sumAxisLoop(iv, ov, outer, dim, inner)
	case array.Float64:
		iv := array.AsFloat64(in, outer*dim*inner)
		ov := array.AsFloat64(out, outer*inner)
		sumAxisLoop(iv, ov, outer, dim, inner)
	case array.Int32:
		iv := array.AsInt32(in, outer*dim*inner)
		ov := array.AsInt32(out, outer*inner)
		sumAxisLoop(iv, ov, outer, dim, inner)
	case array.Int64:
		iv := array.AsInt64(in, outer*dim*inner)
		ov := array.AsInt64(out, outer*inner)
		sumAxisLoop(iv, ov, outer, dim, inner)
	default: // Float16, BFloat16, Uint8
		iv := array.DecodeFloat64s(in, c.OutDType, outer*dim*inner)
		ov := make([]float64, outer*inner)
		sumAxisLoop(iv, ov, outer, dim, inner)
		array.EncodeFloat64s(out, ov, c.OutDType)
	}
	return nil
}

func sumAxisLoop[T float32 | float64 | int32 | int64](in, out []T, outer, dim, inner int) {
	for o := 0; o < outer; o++ {
		dst := out[o*inner : (o+1)*inner]
		for i := range dst {
			dst[i] = 0
		}
		base := o * dim * inner
		for d := 0; d < dim; d++ {
			row := in[base+d*inner : base+(d+1)*inner]
			for i, v := range row {
				dst[i] += v
			}
		}
	}
}
