// Package webgpu implements the WebGPU backend: float32 kernels running as
// WGSL compute shaders through go-webgpu's zero-CGO bindings. The backend
// registers with the dispatch table on demand via Register; machines
// without a usable adapter simply never register, and arrays placed on
// device.WebGPU then fail with UnsupportedOperationError.
package webgpu

import (
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/rs/zerolog"

	"github.com/strand-ml/strand/internal/logging"
)

// Backend owns the WebGPU instance, device, queue, and the shader and
// pipeline caches shared by all kernels.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	info     *wgpu.AdapterInfoGo
	log      zerolog.Logger

	mu        sync.RWMutex
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
}

var (
	registerOnce sync.Once
	registered   *Backend
	registerErr  error
)

// Register initializes WebGPU and installs the backend's kernels, memory
// backing, and transfer hooks. Safe to call more than once; initialization
// runs once and later calls return the first outcome.
func Register() (*Backend, error) {
	registerOnce.Do(func() {
		registered, registerErr = newBackend()
		if registerErr != nil {
			return
		}
		registered.install()
	})
	return registered, registerErr
}

// IsAvailable reports whether a WebGPU adapter can be acquired.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()
	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return false
	}
	defer instance.Release()
	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

func newBackend() (b *Backend, err error) {
	// The native library loads lazily and panics when missing.
	defer func() {
		if r := recover(); r != nil {
			b = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return nil, fmt.Errorf("webgpu: failed to create instance: %w", instanceErr)
	}
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", adapterErr)
	}
	info, infoErr := adapter.GetInfo()
	if infoErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get adapter info: %w", infoErr)
	}

	dev, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", deviceErr)
	}
	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	b = &Backend{
		instance:  instance,
		adapter:   adapter,
		device:    dev,
		queue:     queue,
		info:      info,
		log:       logging.New("webgpu"),
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
	}
	b.log.Info().Str("adapter", info.Device).Str("vendor", info.Vendor).Msg("webgpu backend ready")
	return b, nil
}

// Name describes the adapter behind the backend.
func (b *Backend) Name() string {
	return fmt.Sprintf("WebGPU (%s %s)", b.info.Device, b.info.Vendor)
}

// pipeline returns the cached compute pipeline for a shader, compiling it
// on first use.
func (b *Backend) pipeline(name, code string) *wgpu.ComputePipeline {
	b.mu.RLock()
	p, ok := b.pipelines[name]
	b.mu.RUnlock()
	if ok {
		return p
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok = b.pipelines[name]; ok {
		return p
	}
	shader := b.device.CreateShaderModuleWGSL(code)
	b.shaders[name] = shader
	p = b.device.CreateComputePipelineSimple(nil, shader, "main")
	b.pipelines[name] = p
	return p
}

// Release frees all WebGPU resources. The backend must not be used after.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.pipelines {
		p.Release()
	}
	b.pipelines = nil
	for _, s := range b.shaders {
		s.Release()
	}
	b.shaders = nil
	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}
