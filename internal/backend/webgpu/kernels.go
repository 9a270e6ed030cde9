package webgpu

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/strand-ml/strand/internal/array"
	"github.com/strand-ml/strand/internal/device"
	"github.com/strand-ml/strand/internal/dispatch"
	"github.com/strand-ml/strand/internal/prim"
)

func (b *Backend) registerKernels() {
	binaryShaders := map[array.Kind]string{
		array.KindAdd:     addShader,
		array.KindSub:     subShader,
		array.KindMul:     mulShader,
		array.KindDiv:     divShader,
		array.KindMaximum: maximumShader,
	}
	for kind, code := range binaryShaders {
		b.registerElementwise(kind, code, 2)
	}

	unaryShaders := map[array.Kind]string{
		array.KindNeg:  negShader,
		array.KindExp:  expShader,
		array.KindLog:  logShader,
		array.KindSin:  sinShader,
		array.KindCos:  cosShader,
		array.KindSqrt: sqrtShader,
		array.KindTanh: tanhShader,
		array.KindAbs:  absShader,
	}
	for kind, code := range unaryShaders {
		b.registerElementwise(kind, code, 1)
	}

	dispatch.Register(array.KindMatMul, device.WebGPU, b.matmulKernel)

	// Structural relabelings and copies need no shader.
	dispatch.Register(array.KindReshape, device.WebGPU, b.copyKernel)
	dispatch.Register(array.KindStack, device.WebGPU, b.stackKernel)
	dispatch.Register(array.KindSlice, device.WebGPU, b.sliceKernel)
}

func (b *Backend) registerElementwise(kind array.Kind, code string, arity int) {
	name := kind.String()
	dispatch.Register(kind, device.WebGPU, func(c *dispatch.Call) error {
		if c.OutDType != array.Float32 {
			return &dispatch.UnsupportedOperationError{
				Kind: kind, Device: device.WebGPU,
				What: "dtype " + c.OutDType.String(),
			}
		}
		n := c.OutShape.NumElements()
		if n == 0 {
			return nil
		}

		bufs := make([]*wgpu.Buffer, 0, arity+1)
		for i := 0; i < arity; i++ {
			h, err := gpuBuffer(c.Inputs[i])
			if err != nil {
				return err
			}
			bufs = append(bufs, h)
		}
		out, err := gpuBuffer(c.Out)
		if err != nil {
			return err
		}
		bufs = append(bufs, out)

		params := make([]byte, 16)
		binary.LittleEndian.PutUint32(params[0:4], uint32(n))

		workgroups := uint32((n + workgroupSize - 1) / workgroupSize)
		return b.dispatchCompute(name, code, bufs, uint64(n)*4, params, workgroups, 1)
	})
}

func (b *Backend) matmulKernel(c *dispatch.Call) error {
	if c.OutDType != array.Float32 {
		return &dispatch.UnsupportedOperationError{
			Kind: array.KindMatMul, Device: device.WebGPU,
			What: "dtype " + c.OutDType.String(),
		}
	}
	m := uint32(c.InShapes[0][0])
	k := uint32(c.InShapes[0][1])
	n := uint32(c.InShapes[1][1])
	if m == 0 || n == 0 {
		return nil
	}

	a, err := gpuBuffer(c.Inputs[0])
	if err != nil {
		return err
	}
	bb, err := gpuBuffer(c.Inputs[1])
	if err != nil {
		return err
	}
	out, err := gpuBuffer(c.Out)
	if err != nil {
		return err
	}

	params := make([]byte, 16)
	binary.LittleEndian.PutUint32(params[0:4], m)
	binary.LittleEndian.PutUint32(params[4:8], k)
	binary.LittleEndian.PutUint32(params[8:12], n)

	// 16x16 threads per workgroup over the output matrix.
	wx := (n + 15) / 16
	wy := (m + 15) / 16
	return b.dispatchComputeSized("matmul", matmulShader,
		[]*wgpu.Buffer{a, bb, out},
		[]uint64{uint64(m) * uint64(k) * 4, uint64(k) * uint64(n) * 4, uint64(m) * uint64(n) * 4},
		params, wx, wy)
}

// dispatchCompute runs one compute pass where every storage binding shares
// the same byte size.
func (b *Backend) dispatchCompute(name, code string, bufs []*wgpu.Buffer, size uint64, params []byte, wx, wy uint32) error {
	sizes := make([]uint64, len(bufs))
	for i := range sizes {
		sizes[i] = size
	}
	return b.dispatchComputeSized(name, code, bufs, sizes, params, wx, wy)
}

func (b *Backend) dispatchComputeSized(name, code string, bufs []*wgpu.Buffer, sizes []uint64, params []byte, wx, wy uint32) error {
	pipeline := b.pipeline(name, code)

	paramBuf := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             uint64(len(params)),
		MappedAtCreation: wgpu.True,
	})
	defer paramBuf.Release()
	copyToMapped(paramBuf, params)

	entries := make([]wgpu.BindGroupEntry, 0, len(bufs)+1)
	for i, buf := range bufs {
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), buf, 0, sizes[i]))
	}
	entries = append(entries, wgpu.BufferBindingEntry(uint32(len(bufs)), paramBuf, 0, uint64(len(params))))

	bindGroup := b.device.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), entries)
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(wx, wy, 1)
	pass.End()
	b.queue.Submit(encoder.Finish(nil))
	return nil
}

// copyKernel relabels: a whole-buffer device copy.
func (b *Backend) copyKernel(c *dispatch.Call) error {
	src, err := gpuBuffer(c.Inputs[0])
	if err != nil {
		return err
	}
	dst, err := gpuBuffer(c.Out)
	if err != nil {
		return err
	}
	size := uint64(c.OutShape.ByteSize(c.OutDType))
	if size == 0 {
		return nil
	}
	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, dst, 0, size)
	b.queue.Submit(encoder.Finish(nil))
	return nil
}

// stackKernel concatenates same-sized operands with device copies.
func (b *Backend) stackKernel(c *dispatch.Call) error {
	sz := uint64(c.InShapes[0].ByteSize(c.InDTypes[0]))
	dst, err := gpuBuffer(c.Out)
	if err != nil {
		return err
	}
	encoder := b.device.CreateCommandEncoder(nil)
	for i, in := range c.Inputs {
		src, err := gpuBuffer(in)
		if err != nil {
			return err
		}
		if sz > 0 {
			encoder.CopyBufferToBuffer(src, 0, dst, uint64(i)*sz, sz)
		}
	}
	b.queue.Submit(encoder.Finish(nil))
	return nil
}

// sliceKernel selects one index along an axis with strided device copies.
func (b *Backend) sliceKernel(c *dispatch.Call) error {
	p, ok := c.Prim.(prim.SliceOp)
	if !ok {
		return fmt.Errorf("webgpu: slice kernel called with %T", c.Prim)
	}
	axis, index := p.Axis, p.Index
	in := c.InShapes[0]
	es := uint64(c.OutDType.Size())
	outer := uint64(1)
	for _, d := range in[:axis] {
		outer *= uint64(d)
	}
	inner := es
	for _, d := range in[axis+1:] {
		inner *= uint64(d)
	}
	dim := uint64(in[axis])

	src, err := gpuBuffer(c.Inputs[0])
	if err != nil {
		return err
	}
	dst, err := gpuBuffer(c.Out)
	if err != nil {
		return err
	}
	encoder := b.device.CreateCommandEncoder(nil)
	for o := uint64(0); o < outer; o++ {
		encoder.CopyBufferToBuffer(src, (o*dim+uint64(index))*inner, dst, o*inner, inner)
	}
	b.queue.Submit(encoder.Finish(nil))
	return nil
}

func copyToMapped(buf *wgpu.Buffer, data []byte) {
	size := uint64(len(data))
	mapped := unsafe.Slice((*byte)(buf.GetMappedRange(0, size)), size)
	copy(mapped, data)
	buf.Unmap()
}
