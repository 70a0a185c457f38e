//go:build linux

package transport

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DevicePath is the well-known IPTS character device this module
// reads frames from and writes HID reports to.
const DevicePath = "/dev/ipts0"

// ioctl request numbers for the narrow driver control surface this
// module needs. These are this module's own convention, not numbers
// taken from a real kernel UAPI header.
const (
	ioctlGetDeviceInfo = 0x8004_6901
	ioctlReset         = 0x0000_6902
)

// charDeviceRing is the Linux implementation of Ring: it maps the
// driver's buffer pool read-only and issues one blocking read(2) per
// frame to learn which buffer holds the next one.
type charDeviceRing struct {
	fd      int
	info    DeviceInfo
	buffers [][]byte
}

// OpenRing opens and maps the IPTS character device, returning a Ring
// ready for the main loop.
func OpenRing(path string) (Ring, error) {
	if path == "" {
		path = DevicePath
	}

	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", path, err)
	}

	r := &charDeviceRing{fd: fd, buffers: make([][]byte, BufferNum)}

	for i := 0; i < BufferNum; i++ {
		buf, err := unix.Mmap(fd, int64(i*BufferSize), BufferSize, unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("transport: mmap buffer %d: %w", i, err)
		}
		r.buffers[i] = buf
	}

	var raw [4]byte
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(ioctlGetDeviceInfo), uintptr(unsafe.Pointer(&raw[0]))); errno != 0 {
		r.Close()
		return nil, fmt.Errorf("transport: get device info: %w", errno)
	}
	r.info = DeviceInfo{
		VendorID:  binary.LittleEndian.Uint16(raw[0:2]),
		ProductID: binary.LittleEndian.Uint16(raw[2:4]),
	}

	return r, nil
}

func (r *charDeviceRing) Info() DeviceInfo { return r.info }

// ReadFrame blocks until the driver has a frame ready, then returns a
// read-only view of that buffer's contents.
func (r *charDeviceRing) ReadFrame() ([]byte, error) {
	var idxBuf [4]byte
	n, err := unix.Read(r.fd, idxBuf[:])
	if err != nil {
		return nil, fmt.Errorf("transport: receive input: %w", err)
	}
	if n != 4 {
		return nil, fmt.Errorf("transport: short buffer-index read (%d bytes)", n)
	}

	idx := binary.LittleEndian.Uint32(idxBuf[:])
	if int(idx) >= len(r.buffers) {
		return nil, fmt.Errorf("transport: buffer index %d out of range", idx)
	}
	return r.buffers[idx], nil
}

// SendReport writes one complete HID report in a single syscall, so
// a frame's report reaches the driver atomically.
func (r *charDeviceRing) SendReport(data []byte) error {
	_, err := unix.Write(r.fd, data)
	if err != nil {
		return fmt.Errorf("transport: send hid report: %w", err)
	}
	return nil
}

// Reset asks the driver to reset the touch sensor (SIGUSR1 handling).
func (r *charDeviceRing) Reset() error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(r.fd), uintptr(ioctlReset), 0); errno != 0 {
		return fmt.Errorf("transport: reset: %w", errno)
	}
	return nil
}

func (r *charDeviceRing) Close() error {
	for _, b := range r.buffers {
		if b != nil {
			unix.Munmap(b)
		}
	}
	if r.fd >= 0 {
		return unix.Close(r.fd)
	}
	return nil
}
