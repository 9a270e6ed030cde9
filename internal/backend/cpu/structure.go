package cpu

import (
	"fmt"

	"github.com/strand-ml/strand/internal/array"
	"github.com/strand-ml/strand/internal/device"
	"github.com/strand-ml/strand/internal/dispatch"
	"github.com/strand-ml/strand/internal/prim"
)

func registerStructure() {
	dispatch.Register(array.KindReshape, device.CPU, reshapeKernel)
	dispatch.Register(array.KindTranspose, device.CPU, transposeKernel)
	dispatch.Register(array.KindBroadcast, device.CPU, broadcastKernel)
	dispatch.Register(array.KindSlice, device.CPU, sliceKernel)
	dispatch.Register(array.KindPadIndex, device.CPU, padIndexKernel)
	dispatch.Register(array.KindStack, device.CPU, stackKernel)
}

// reshapeKernel is a plain copy: row-major layout makes reshape a relabeling.
func reshapeKernel(c *dispatch.Call) error {
	nbytes := c.OutShape.ByteSize(c.OutDType)
	copy(c.Out.Bytes()[:nbytes], c.Inputs[0].Bytes())
	return nil
}

func transposeKernel(c *dispatch.Call) error {
	p, ok := c.Prim.(prim.TransposeOp)
	if !ok {
		return fmt.Errorf("transpose kernel called with %T", c.Prim)
	}
	es := c.OutDType.Size()
	in, out := c.Inputs[0].Bytes(), c.Out.Bytes()
	inStrides := c.InShapes[0].ComputeStrides()
	n := c.OutShape.NumElements()

	idx := make([]int, len(c.OutShape))
	for flat := 0; flat < n; flat++ {
		src := 0
		for d, i := range idx {
			src += i * inStrides[p.Perm[d]]
		}
		copy(out[flat*es:(flat+1)*es], in[src*es:(src+1)*es])
		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < c.OutShape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return nil
}

func broadcastKernel(c *dispatch.Call) error {
	es := c.OutDType.Size()
	in, out := c.Inputs[0].Bytes(), c.Out.Bytes()
	inShape := c.InShapes[0]
	inStrides := inShape.ComputeStrides()
	offset := len(c.OutShape) - len(inShape)
	n := c.OutShape.NumElements()

	idx := make([]int, len(c.OutShape))
	for flat := 0; flat < n; flat++ {
		src := 0
		for d := 0; d < len(inShape); d++ {
			if inShape[d] != 1 {
				src += idx[offset+d] * inStrides[d]
			}
		}
		copy(out[flat*es:(flat+1)*es], in[src*es:(src+1)*es])
		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < c.OutShape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return nil
}

func sliceKernel(c *dispatch.Call) error {
	p, ok := c.Prim.(prim.SliceOp)
	if !ok {
		return fmt.Errorf("slice kernel called with %T", c.Prim)
	}
	in, out := c.Inputs[0].Bytes(), c.Out.Bytes()
	inShape := c.InShapes[0]
	es := c.OutDType.Size()

	outer := 1
	for _, d := range inShape[:p.Axis] {
		outer *= d
	}
	inner := es
	for _, d := range inShape[p.Axis+1:] {
		inner *= d
	}
	dim := inShape[p.Axis]
	for o := 0; o < outer; o++ {
		src := (o*dim + p.Index) * inner
		copy(out[o*inner:(o+1)*inner], in[src:src+inner])
	}
	return nil
}

// padIndexKernel zeroes the output, then writes the input at the padded
// index. Output buffers come from the pool and may hold stale bytes.
func padIndexKernel(c *dispatch.Call) error {
	p, ok := c.Prim.(prim.PadIndexOp)
	if !ok {
		return fmt.Errorf("pad_index kernel called with %T", c.Prim)
	}
	in, out := c.Inputs[0].Bytes(), c.Out.Bytes()
	nbytes := c.OutShape.ByteSize(c.OutDType)
	clear(out[:nbytes])

	es := c.OutDType.Size()
	outer := 1
	for _, d := range c.OutShape[:p.Axis] {
		outer *= d
	}
	inner := es
	for _, d := range c.OutShape[p.Axis+1:] {
		inner *= d
	}
	for o := 0; o < outer; o++ {
		dst := (o*p.N + p.Index) * inner
		copy(out[dst:dst+inner], in[o*inner:(o+1)*inner])
	}
	return nil
}

func stackKernel(c *dispatch.Call) error {
	out := c.Out.Bytes()
	sz := c.InShapes[0].ByteSize(c.InDTypes[0])
	for i, in := range c.Inputs {
		copy(out[i*sz:(i+1)*sz], in.Bytes()[:sz])
	}
	return nil
}
