// Package device defines the compute device kinds known to the runtime.
package device

// Device identifies a kind of compute device.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	WebGPU
	CUDA
	Metal
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case WebGPU:
		return "WebGPU"
	case CUDA:
		return "CUDA"
	case Metal:
		return "Metal"
	default:
		return "Unknown"
	}
}
