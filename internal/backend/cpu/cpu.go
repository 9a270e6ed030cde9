// Package cpu implements the host backend: a kernel per primitive operating
// on the allocator's host memory, registered with the dispatch table at
// init. The CPU backend is always available and needs no device setup.
package cpu

import (
	"github.com/strand-ml/strand/internal/alloc"
	"github.com/strand-ml/strand/internal/array"
	"github.com/strand-ml/strand/internal/device"
	"github.com/strand-ml/strand/internal/dispatch"
	"github.com/strand-ml/strand/internal/parallel"
)

var cfg = parallel.DefaultConfig()

func init() {
	dispatch.RegisterReader(device.CPU, func(buf *alloc.Buffer, dst []byte) error {
		copy(dst, buf.Bytes())
		return nil
	})
	dispatch.RegisterWriter(device.CPU, func(buf *alloc.Buffer, src []byte) error {
		copy(buf.Bytes(), src)
		return nil
	})

	registerElementwise()
	registerStructure()
	registerReduce()
	dispatch.Register(array.KindMatMul, device.CPU, matmulKernel)
	dispatch.Register(array.KindFused, device.CPU, fusedKernel)
}
