package cpu

import (
	"math"

	"github.com/strand-ml/strand/internal/array"
	"github.com/strand-ml/strand/internal/device"
	"github.com/strand-ml/strand/internal/dispatch"
	"github.com/strand-ml/strand/internal/parallel"
)

func registerElementwise() {
	binary := map[array.Kind]struct {
		f func(a, b float64) float64
		i func(a, b int64) int64
	}{
		array.KindAdd:     {func(a, b float64) float64 { return a + b }, func(a, b int64) int64 { return a + b }},
		array.KindSub:     {func(a, b float64) float64 { return a - b }, func(a, b int64) int64 { return a - b }},
		array.KindMul:     {func(a, b float64) float64 { return a * b }, func(a, b int64) int64 { return a * b }},
		array.KindDiv:     {func(a, b float64) float64 { return a / b }, func(a, b int64) int64 { return a / b }},
		array.KindMaximum: {math.Max, func(a, b int64) int64 { return max(a, b) }},
	}
	for kind, ops := range binary {
		dispatch.Register(kind, device.CPU, binaryKernel(ops.f, ops.i))
	}

	unary := map[array.Kind]func(float64) float64{
		array.KindNeg:  func(x float64) float64 { return -x },
		array.KindExp:  math.Exp,
		array.KindLog:  math.Log,
		array.KindSin:  math.Sin,
		array.KindCos:  math.Cos,
		array.KindSqrt: math.Sqrt,
		array.KindTanh: math.Tanh,
		array.KindAbs:  math.Abs,
	}
	for kind, op := range unary {
		dispatch.Register(kind, device.CPU, unaryKernel(op))
	}
	// Neg also applies to integer arrays.
	dispatch.Register(array.KindNeg, device.CPU, negKernel)

	dispatch.Register(array.KindGreater, device.CPU, greaterKernel)
	dispatch.Register(array.KindAsType, device.CPU, asTypeKernel)
}

// binaryKernel builds a same-shape elementwise kernel from a float64 rule
// and an int64 rule. Float32 and Float64 run in place over reinterpreted
// slices; half-precision types round-trip through float64.
func binaryKernel(opF func(a, b float64) float64, opI func(a, b int64) int64) dispatch.Kernel {
	return func(c *dispatch.Call) error {
		n := c.OutShape.NumElements()
		if n == 0 {
			return nil
		}
		a, b, out := c.Inputs[0].Bytes(), c.Inputs[1].Bytes(), c.Out.Bytes()
		switch c.OutDType {
		case array.Float32:
			av, bv, ov := array.AsFloat32(a, n), array.AsFloat32(b, n), array.AsFloat32(out, n)
			parallel.ForRange(n, func(s, e int) {
				for i := s; i < e; i++ {
					ov[i] = float32(opF(float64(av[i]), float64(bv[i])))
				}
			}, cfg)
		case array.Float64:
			av, bv, ov := array.AsFloat64(a, n), array.AsFloat64(b, n), array.AsFloat64(out, n)
			parallel.ForRange(n, func(s, e int) {
				for i := s; i < e; i++ {
					ov[i] = opF(av[i], bv[i])
				}
			}, cfg)
		case array.Int32:
			av, bv, ov := array.AsInt32(a, n), array.AsInt32(b, n), array.AsInt32(out, n)
			parallel.ForRange(n, func(s, e int) {
				for i := s; i < e; i++ {
					ov[i] = int32(opI(int64(av[i]), int64(bv[i])))
				}
			}, cfg)
		case array.Int64:
			av, bv, ov := array.AsInt64(a, n), array.AsInt64(b, n), array.AsInt64(out, n)
			parallel.ForRange(n, func(s, e int) {
				for i := s; i < e; i++ {
					ov[i] = opI(av[i], bv[i])
				}
			}, cfg)
		case array.Uint8:
			parallel.ForRange(n, func(s, e int) {
				for i := s; i < e; i++ {
					out[i] = uint8(opI(int64(a[i]), int64(b[i])))
				}
			}, cfg)
		default: // Float16, BFloat16
			av := array.DecodeFloat64s(a, c.OutDType, n)
			bv := array.DecodeFloat64s(b, c.OutDType, n)
			ov := make([]float64, n)
			for i := range ov {
				ov[i] = opF(av[i], bv[i])
			}
			array.EncodeFloat64s(out, ov, c.OutDType)
		}
		return nil
	}
}

// unaryKernel builds a float-only elementwise kernel from a float64 rule.
func unaryKernel(op func(float64) float64) dispatch.Kernel {
	return func(c *dispatch.Call) error {
		n := c.OutShape.NumElements()
		if n == 0 {
			return nil
		}
		in, out := c.Inputs[0].Bytes(), c.Out.Bytes()
		switch c.OutDType {
		case array.Float32:
			iv, ov := array.AsFloat32(in, n), array.AsFloat32(out, n)
			parallel.ForRange(n, func(s, e int) {
				for i := s; i < e; i++ {
					ov[i] = float32(op(float64(iv[i])))
				}
			}, cfg)
		case array.Float64:
			iv, ov := array.AsFloat64(in, n), array.AsFloat64(out, n)
			parallel.ForRange(n, func(s, e int) {
				for i := s; i < e; i++ {
					ov[i] = op(iv[i])
				}
			}, cfg)
		default: // Float16, BFloat16
			iv := array.DecodeFloat64s(in, c.OutDType, n)
			ov := make([]float64, n)
			for i := range ov {
				ov[i] = op(iv[i])
			}
			array.EncodeFloat64s(out, ov, c.OutDType)
		}
		return nil
	}
}

// negKernel covers both float and integer negation.
func negKernel(c *dispatch.Call) error {
	n := c.OutShape.NumElements()
	if n == 0 {
		return nil
	}
	in, out := c.Inputs[0].Bytes(), c.Out.Bytes()
	switch c.OutDType {
	case array.Int32:
		iv, ov := array.AsInt32(in, n), array.AsInt32(out, n)
		for i := range ov {
			ov[i] = -iv[i]
		}
	case array.Int64:
		iv, ov := array.AsInt64(in, n), array.AsInt64(out, n)
		for i := range ov {
			ov[i] = -iv[i]
		}
	case array.Uint8:
		for i := 0; i < n; i++ {
			out[i] = uint8(-int64(in[i]))
		}
	default:
		return unaryKernel(func(x float64) float64 { return -x })(c)
	}
	return nil
}

func greaterKernel(c *dispatch.Call) error {
	n := c.OutShape.NumElements()
	if n == 0 {
		return nil
	}
	a, b, out := c.Inputs[0].Bytes(), c.Inputs[1].Bytes(), c.Out.Bytes()
	set := func(i int, v bool) {
		if v {
			out[i] = 1
		} else {
			out[i] = 0
		}
	}
	switch c.InDTypes[0] {
	case array.Int32:
		av, bv := array.AsInt32(a, n), array.AsInt32(b, n)
		for i := 0; i < n; i++ {
			set(i, av[i] > bv[i])
		}
	case array.Int64:
		av, bv := array.AsInt64(a, n), array.AsInt64(b, n)
		for i := 0; i < n; i++ {
			set(i, av[i] > bv[i])
		}
	case array.Uint8:
		for i := 0; i < n; i++ {
			set(i, a[i] > b[i])
		}
	default:
		av := array.DecodeFloat64s(a, c.InDTypes[0], n)
		bv := array.DecodeFloat64s(b, c.InDTypes[0], n)
		for i := 0; i < n; i++ {
			set(i, av[i] > bv[i])
		}
	}
	return nil
}

// asTypeKernel converts through float64, which is exact for every pair the
// runtime supports except int64 values beyond 2^53.
func asTypeKernel(c *dispatch.Call) error {
	n := c.OutShape.NumElements()
	if n == 0 {
		return nil
	}
	vals := array.DecodeFloat64s(c.Inputs[0].Bytes(), c.InDTypes[0], n)
	array.EncodeFloat64s(c.Out.Bytes(), vals, c.OutDType)
	return nil
}
