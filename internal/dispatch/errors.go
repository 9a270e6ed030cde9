package dispatch

import (
	"fmt"

	"github.com/strand-ml/strand/internal/array"
	"github.com/strand-ml/strand/internal/device"
)

// UnsupportedOperationError reports a missing backend registration, naming
// the primitive and the device so the failure is actionable.
type UnsupportedOperationError struct {
	Kind   array.Kind
	Device device.Device
	What   string // non-kernel registrations (buffer read/write)
}

func (e *UnsupportedOperationError) Error() string {
	if e.What != "" {
		return fmt.Sprintf("dispatch: no %s registered for device %s", e.What, e.Device)
	}
	return fmt.Sprintf("dispatch: no kernel registered for primitive %q on device %s", e.Kind, e.Device)
}
