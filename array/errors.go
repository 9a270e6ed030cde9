// Copyright 2025 Strand ML Runtime. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package array

import (
	"github.com/strand-ml/strand/internal/alloc"
	internal "github.com/strand-ml/strand/internal/array"
	"github.com/strand-ml/strand/internal/dispatch"
	"github.com/strand-ml/strand/internal/sched"
)

// ShapeError reports incompatible operand shapes.
type ShapeError = internal.ShapeError

// DTypeError reports an invalid or mismatched element type.
type DTypeError = internal.DTypeError

// UnsupportedOperationError reports a primitive with no kernel registered
// for the requested device or dtype.
type UnsupportedOperationError = dispatch.UnsupportedOperationError

// OutOfMemoryError reports an allocation the device could not satisfy.
type OutOfMemoryError = alloc.OutOfMemoryError

// DeviceError wraps a failure raised by a device backend during execution.
type DeviceError = sched.DeviceError
