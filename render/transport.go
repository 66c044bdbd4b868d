package render

// Transport delivers rendered quanta to an audio device. Its whole contract
// with the scheduler is "fill this buffer before the deadline or leave it
// silent"; everything device-specific stays behind this interface.
type Transport interface {
	Start() error
	Stop() error
}
