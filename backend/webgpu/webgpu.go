// Copyright 2025 Strand ML Runtime. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides GPU-accelerated kernels via the WebGPU compute
// API. It works wherever a wgpu-native library and a compatible GPU are
// present: Vulkan on Linux, Metal on macOS, D3D12 on Windows.
//
// Example:
//
//	if webgpu.IsAvailable() {
//	    gpu, err := webgpu.Register()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer gpu.Release()
//	}
//	x, _ := array.Zeros(array.Shape{1024, 1024}, array.Float32, array.WebGPU)
//
// Only Float32 arrays are supported on the GPU; other dtypes fail with an
// UnsupportedOperationError.
package webgpu

import (
	internal "github.com/strand-ml/strand/internal/backend/webgpu"
)

// Backend owns the WebGPU device, queue and compiled pipeline cache.
type Backend = internal.Backend

// Register initializes the WebGPU device and installs its allocator
// backing and kernels for the WebGPU device target. Call Release on the
// returned Backend to free GPU resources.
func Register() (*Backend, error) {
	return internal.Register()
}

// IsAvailable reports whether a WebGPU adapter can be initialized on this
// system. Useful for graceful fallback to the CPU backend.
func IsAvailable() bool {
	return internal.IsAvailable()
}
