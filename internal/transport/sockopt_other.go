//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package transport

import (
	"net"

	ncerr "netchain/internal/errors"
)

func reusePortControl(_ *net.ListenConfig) error {
	return ncerr.ErrUnsupported
}
