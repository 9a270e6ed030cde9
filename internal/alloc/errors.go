package alloc

import (
	"fmt"

	"github.com/strand-ml/strand/internal/device"
)

// OutOfMemoryError is returned when neither a pooled nor a fresh block can
// satisfy an allocation request within the configured device limit.
type OutOfMemoryError struct {
	Device    device.Device
	Requested int64
	InUse     int64
	Limit     int64
}

func (e *OutOfMemoryError) Error() string {
	return fmt.Sprintf("alloc: out of memory on %s: requested %d bytes, %d in use, limit %d",
		e.Device, e.Requested, e.InUse, e.Limit)
}
