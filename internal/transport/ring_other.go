//go:build !linux

package transport

import "errors"

// OpenRing is unsupported outside Linux: the IPTS character device
// this module talks to is a Linux-specific kernel interface.
func OpenRing(path string) (Ring, error) {
	return nil, errors.New("transport: IPTS ring unsupported on this platform")
}
