// Copyright 2025 Strand ML Runtime. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu registers the pure Go CPU backend.
//
// The CPU backend is the default execution target and is registered
// automatically when the array package is imported; importing this package
// directly is only needed by programs that avoid the array facade.
//
// Kernels run over raw buffers with chunked parallelism across
// runtime.NumCPU() workers. All element types are supported; Float16 and
// BFloat16 compute through float32/float64 intermediates.
package cpu

import (
	_ "github.com/strand-ml/strand/internal/backend/cpu"
)
