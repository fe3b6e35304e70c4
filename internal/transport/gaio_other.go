//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package transport

import (
	ncerr "netchain/internal/errors"
	"netchain/internal/reactor"
)

// GaioDriver is unavailable on this platform.
type GaioDriver struct {
	*NetpollDriver
}

// NewGaioDriver reports ErrUnsupported outside unix systems.
func NewGaioDriver(_ *reactor.Context) (*GaioDriver, error) {
	return nil, ncerr.ErrUnsupported
}
