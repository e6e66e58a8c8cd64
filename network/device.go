package network

import G "gorgonia.org/gorgonia"

// Device denotes the hardware that tape machines run forward and
// backward passes on
type Device string

const (
	CPU  Device = "cpu"
	CUDA Device = "cuda"
)

// DetectDevice returns the device that networks will run on. CUDA is
// selected only when the binary was built with CUDA support, otherwise
// all computation stays on the CPU.
func DetectDevice() Device {
	if G.CUDA {
		return CUDA
	}
	return CPU
}
