package sched

import (
	"fmt"

	"github.com/strand-ml/strand/internal/device"
)

// DeviceError records an asynchronous kernel failure. It is reported at the
// next Synchronize (or read) that observes the failed stream; once a stream
// has failed, its subsequent queued tasks are skipped.
type DeviceError struct {
	Device device.Device
	Stream int
	Op     string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("sched: %s stream %d failed running %s: %v", e.Device, e.Stream, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}
