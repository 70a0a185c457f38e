package transport

// BufferNum is IPTS_BUFFER_NUM: the number of page-aligned buffers the
// driver's shared-memory ring is divided into.
const BufferNum = 16

// BufferSize is the fixed size of each ring buffer, large enough to
// hold one IPTSDataHeader-prefixed frame.
const BufferSize = 64 * 1024

// DeviceInfo is the probed sensor identity the driver returns once at
// connect time (IPTSDeviceInfo), used to select a per-device config
// file.
type DeviceInfo struct {
	VendorID, ProductID uint16
}

// Ring is the narrow upstream/downstream boundary the pipeline sits
// behind: a blocking read of the next frame, a single atomic HID
// report send, and a sensor reset. Frame-local truncation and
// transport-fatal errors are distinguished by the caller: ReadFrame
// only returns an error for a fatal transport condition, never for a
// malformed frame (that is the parser's job).
type Ring interface {
	Info() DeviceInfo
	ReadFrame() ([]byte, error)
	SendReport(data []byte) error
	Reset() error
	Close() error
}
