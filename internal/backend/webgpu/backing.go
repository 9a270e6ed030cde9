package webgpu

import (
	"fmt"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/strand-ml/strand/internal/alloc"
	"github.com/strand-ml/strand/internal/device"
	"github.com/strand-ml/strand/internal/dispatch"
)

// install wires the backend into the dispatch registry: storage-buffer
// memory backing, host transfer hooks, and the float32 kernels.
func (b *Backend) install() {
	dispatch.RegisterBacking(device.WebGPU, backing{b})
	dispatch.RegisterReader(device.WebGPU, b.read)
	dispatch.RegisterWriter(device.WebGPU, b.write)
	b.registerKernels()
}

// backing allocates storage buffers for the pooled allocator. The handle is
// the *wgpu.Buffer; there is no host-visible mapping, so transfers go
// through the reader and writer.
type backing struct {
	b *Backend
}

func (bk backing) Alloc(size int) (any, []byte, error) {
	buf := bk.b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  uint64(size),
	})
	if buf == nil {
		return nil, nil, fmt.Errorf("webgpu: buffer allocation of %d bytes failed", size)
	}
	return buf, nil, nil
}

func (bk backing) Free(handle any, _ []byte) {
	if buf, ok := handle.(*wgpu.Buffer); ok && buf != nil {
		buf.Release()
	}
}

func gpuBuffer(buf *alloc.Buffer) (*wgpu.Buffer, error) {
	h, ok := buf.Handle().(*wgpu.Buffer)
	if !ok || h == nil {
		return nil, fmt.Errorf("webgpu: buffer has no device handle")
	}
	return h, nil
}

// read copies a storage buffer to host memory through a staging buffer;
// storage buffers cannot be mapped directly.
func (b *Backend) read(buf *alloc.Buffer, dst []byte) error {
	src, err := gpuBuffer(buf)
	if err != nil {
		return err
	}
	size := uint64(len(dst))

	staging := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	b.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return fmt.Errorf("webgpu: failed to map staging buffer: %w", err)
	}
	mapped := unsafe.Slice((*byte)(staging.GetMappedRange(0, size)), size)
	copy(dst, mapped)
	staging.Unmap()
	return nil
}

// write uploads host memory into a storage buffer via a mapped-at-creation
// staging buffer.
func (b *Backend) write(buf *alloc.Buffer, src []byte) error {
	dst, err := gpuBuffer(buf)
	if err != nil {
		return err
	}
	size := uint64(len(src))

	staging := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	defer staging.Release()
	mapped := unsafe.Slice((*byte)(staging.GetMappedRange(0, size)), size)
	copy(mapped, src)
	staging.Unmap()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, dst, 0, size)
	b.queue.Submit(encoder.Finish(nil))
	return nil
}
